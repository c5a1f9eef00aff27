// sow is the operator CLI: it manages Fields and Images and provisions
// Machines on Seeds or on the local host.
package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/pflag"
)

var AppVersion string

type command struct {
	usage string
	help  string
	flags func(*pflag.FlagSet)
	run   func(cfg *Config, flags *pflag.FlagSet, args []string) error
}

var commands = map[string]command{
	"fields": fieldsCommand,
	"new":    newCommand,
	"images": imagesCommand,
	"import": importCommand,
	"start":  startCommand,
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage()
		return nil
	}
	if args[0] == "--version" {
		fmt.Println("sow", AppVersion)
		return nil
	}

	cmd, ok := commands[args[0]]
	if !ok {
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	flags := pflag.NewFlagSet("sow "+args[0], pflag.ContinueOnError)
	flags.String("home", "", "barley data directory (default ~/.barley)")
	if cmd.flags != nil {
		cmd.flags(flags)
	}
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sow %s %s\n\n%s\n\n", args[0], cmd.usage, cmd.help)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := InitConfig(flags)
	if err != nil {
		return err
	}
	return cmd.run(cfg, flags, flags.Args())
}

func printUsage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(os.Stderr, "Usage: sow <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", name, commands[name].help)
	}
}
