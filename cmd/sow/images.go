package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

var imagesCommand = command{
	help: "list imported Images",
	run: func(cfg *Config, _ *pflag.FlagSet, args []string) error {
		if len(args) != 0 {
			return fmt.Errorf("unexpected argument: %s", args[0])
		}
		catalog, err := cfg.imageCatalog()
		if err != nil {
			return err
		}
		images, err := catalog.List()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION")
		for _, img := range images {
			fmt.Fprintf(w, "%s\t%s\n", img.Name, img.Version)
		}
		return w.Flush()
	},
}

var importCommand = command{
	usage: "PATH",
	help:  "import a {name}[_{version}].tar.zst archive",
	run: func(cfg *Config, _ *pflag.FlagSet, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("expected exactly one archive path")
		}
		catalog, err := cfg.imageCatalog()
		if err != nil {
			return err
		}
		img, err := catalog.Import(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported %s\n", img)
		return nil
	},
}
