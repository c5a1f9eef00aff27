package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/barley-project/barley/internal/cert"
	"github.com/barley-project/barley/internal/machine"
	"github.com/barley-project/barley/internal/machine/nspawn"
	"github.com/barley-project/barley/internal/runner"
)

const sshTimeout = 10 * time.Second

var startCommand = command{
	usage: "IMAGE",
	help:  "provision a Machine from the latest version of IMAGE",
	flags: func(flags *pflag.FlagSet) {
		flags.String("version", "", "image version (default latest)")
		flags.String("field", "", "Field to provision into (default most recent, env BARLEY_FIELD)")
		flags.String("seed", "", "Seed host to run the Machine on")
		flags.Bool("local", false, "run the Machine on this host")
		flags.StringArray("network", nil, "override line for the [Network] section, repeatable")
		flags.Bool("ca", false, "install a Machine identity and pin its SSH CA")
	},
	run: func(cfg *Config, flags *pflag.FlagSet, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("expected exactly one image name")
		}
		options := machine.Options{Image: args[0], Field: cfg.Field}
		options.Version, _ = flags.GetString("version")
		options.Seed, _ = flags.GetString("seed")
		options.Local, _ = flags.GetBool("local")
		options.Network, _ = flags.GetStringArray("network")
		options.CA, _ = flags.GetBool("ca")

		images, err := cfg.imageCatalog()
		if err != nil {
			return err
		}
		fields, err := cfg.fieldCatalog()
		if err != nil {
			return err
		}

		authority := cert.New(&cert.Options{Password: promptPassword})
		connect := nspawn.Connect(func(host string) runner.Runner {
			return runner.SSHRunner{
				Host:           host,
				User:           cfg.SSH.User,
				KeyPath:        cfg.SSH.Key,
				KnownHostsPath: cfg.SSH.KnownHosts,
				Timeout:        sshTimeout,
			}
		})

		p, err := machine.New(cfg.machineConfig(), options, images, fields, authority, connect)
		if err != nil {
			return err
		}
		fmt.Printf("Provisioning %s in Field %s on %s\n", p.Image(), p.Field().Name, p.Target())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		name, err := p.Provision(ctx)
		if err != nil {
			if name != "" {
				return fmt.Errorf("provisioning %s stopped, inspect it before retrying: %w", name, err)
			}
			return err
		}
		fmt.Printf("Started %s\n", name)
		return nil
	},
}
