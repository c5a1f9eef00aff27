// Package runner executes shell scripts on a provisioning target, either on
// the local host through sudo or on a remote host over SSH.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

var ErrCommand = errors.New("command failed")

// Runner runs script with stdin attached and returns its standard output.
// A non-zero exit wraps ErrCommand along with whatever the script wrote to
// standard error.
type Runner interface {
	Run(ctx context.Context, script string, stdin io.Reader) (string, error)
	String() string
}

// LocalRunner runs scripts with /bin/sh on this host, as root when Sudo is
// set.
type LocalRunner struct {
	Sudo bool
}

func NewLocalRunner() LocalRunner {
	return LocalRunner{Sudo: true}
}

func (r LocalRunner) Run(ctx context.Context, script string, stdin io.Reader) (string, error) {
	args := []string{"/bin/sh", "-c", script}
	if r.Sudo {
		args = append([]string{"sudo"}, args...)
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("Running local script", "script", script, "sudo", r.Sudo)
	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), commandError(script, exitErr.ExitCode(), stderr.String())
	}
	return stdout.String(), fmt.Errorf("failed to start %s: %w", args[0], err)
}

func (r LocalRunner) String() string {
	return "local"
}

func commandError(script string, code int, stderr string) error {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		return fmt.Errorf("%w: %q exited with status %d", ErrCommand, script, code)
	}
	return fmt.Errorf("%w: %q exited with status %d: %s", ErrCommand, script, code, msg)
}
