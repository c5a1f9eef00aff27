package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/barley-project/barley/internal/cert"
)

var fieldsCommand = command{
	help: "list Fields, most recent last",
	run: func(cfg *Config, _ *pflag.FlagSet, args []string) error {
		if len(args) != 0 {
			return fmt.Errorf("unexpected argument: %s", args[0])
		}
		catalog, err := cfg.fieldCatalog()
		if err != nil {
			return err
		}
		fields, err := catalog.List()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tMODIFIED")
		for _, f := range fields {
			fmt.Fprintf(w, "%s\t%s\n", f.Name, f.Modified.Format(time.DateTime))
		}
		return w.Flush()
	},
}

var newCommand = command{
	usage: "NAME",
	help:  "create a Field with a new root CA",
	flags: func(flags *pflag.FlagSet) {
		flags.String("key", "", "admin public key (default <ssh.dir>/id_ed25519.pub)")
	},
	run: func(cfg *Config, flags *pflag.FlagSet, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("expected exactly one Field name")
		}
		adminKey, _ := flags.GetString("key")
		if adminKey == "" {
			adminKey = filepath.Join(cfg.SSH.Dir, "id_ed25519.pub")
		}

		catalog, err := cfg.fieldCatalog()
		if err != nil {
			return err
		}
		f, password, err := catalog.Create(args[0], adminKey, cert.New(nil))
		if err != nil {
			return err
		}

		fmt.Printf("Created Field %s in %s\n", f.Name, f.Store().Home())
		fmt.Printf("Root CA password (shown only once): %s\n", password)
		return nil
	},
}
