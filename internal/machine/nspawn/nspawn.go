// Package nspawn drives systemd-nspawn containers through machinectl on the
// execution target.
package nspawn

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/barley-project/barley/internal/machine"
	"github.com/barley-project/barley/internal/runner"
)

const (
	Owner     = "barley"
	ConfigDir = "/etc/systemd/nspawn"
)

type Supervisor struct {
	runner runner.Runner
}

var _ machine.Supervisor = (*Supervisor)(nil)

func New(r runner.Runner) *Supervisor {
	return &Supervisor{runner: r}
}

// Connect returns a machine.Connector choosing the runner once per Target.
func Connect(remote func(host string) runner.Runner) machine.Connector {
	return func(target machine.Target) (machine.Supervisor, error) {
		if target.Local {
			return New(runner.NewLocalRunner()), nil
		}
		return New(remote(target.Host)), nil
	}
}

func (s *Supervisor) Import(ctx context.Context, name string, archive io.Reader) error {
	_, err := s.runner.Run(ctx, "machinectl -q import-tar - "+quote(name), archive)
	return err
}

func (s *Supervisor) Install(ctx context.Context, name string, file machine.File) error {
	path := machine.TrustDir + "/" + file.Name
	inner := fmt.Sprintf("install -m %o -o %s -g %s /dev/null %s && cat > %s",
		file.Mode.Perm(), Owner, Owner, quote(path), quote(path))
	script := fmt.Sprintf("systemd-nspawn -M %s -UPq sh -c %s", quote(name), quote(inner))
	_, err := s.runner.Run(ctx, script, bytes.NewReader(file.Data))
	return err
}

func (s *Supervisor) ConfigureNetwork(ctx context.Context, name string, stanza string) error {
	script := fmt.Sprintf("mkdir -p %s && cat > %s", ConfigDir, quote(ConfigDir+"/"+name+".nspawn"))
	_, err := s.runner.Run(ctx, script, strings.NewReader(stanza))
	return err
}

func (s *Supervisor) Start(ctx context.Context, name string) error {
	_, err := s.runner.Run(ctx, "machinectl start "+quote(name), nil)
	return err
}

func (s *Supervisor) Running(ctx context.Context, name string) error {
	_, err := s.runner.Run(ctx, "machinectl show --property=State --value "+quote(name)+" | grep -q running", nil)
	return err
}

func (s *Supervisor) Exec(ctx context.Context, name string) error {
	_, err := s.runner.Run(ctx, "systemd-run -M "+quote(name)+" -Pq --wait true", nil)
	return err
}

func (s *Supervisor) Fetch(ctx context.Context, name, file string) (string, error) {
	inner := "cat " + quote(machine.TrustDir+"/"+file)
	return s.runner.Run(ctx, "systemd-run -M "+quote(name)+" -Pq --wait sh -c "+quote(inner), nil)
}

func quote(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
