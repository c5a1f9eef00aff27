// Package machine provisions Machines: it resolves an Image and a Field,
// then drives a Supervisor through import, identity installation, network
// configuration, start, readiness wait and trust pinning.
package machine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/retry"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/ssh"

	"github.com/barley-project/barley/internal/cert"
	"github.com/barley-project/barley/internal/field"
	"github.com/barley-project/barley/internal/image"
	"github.com/barley-project/barley/internal/store"
)

var (
	ErrNoTarget          = errors.New("unable to pick a Seed for this machine, use --seed <host> or --local")
	ErrConflictingTarget = errors.New("--local and --seed cannot be used together")
	ErrNetwork           = errors.New("network precheck failed")
	ErrTimeout           = errors.New("timed out waiting for machine")
)

const (
	imageFile       = "image"
	targetFile      = "target"
	machineKeyFile  = "machine.key"
	machineCertFile = "machine.crt"
)

type Provisioner struct {
	config     Config
	options    Options
	image      image.Image
	field      *field.Field
	target     Target
	images     *image.Catalog
	authority  cert.Authority
	supervisor Supervisor
}

// New resolves the Image version, the Field and the execution target, and
// connects to the target. Nothing is mutated until Provision is called.
func New(config Config, options Options, images *image.Catalog, fields *field.Catalog, authority cert.Authority, connect Connector) (*Provisioner, error) {
	config = config.withDefaults()

	img, err := resolveImage(images, options.Image, options.Version)
	if err != nil {
		return nil, err
	}

	var f *field.Field
	if options.Field == "" {
		f, err = fields.Latest()
	} else {
		f, err = fields.Get(options.Field)
	}
	if err != nil {
		return nil, err
	}

	target, err := resolveTarget(options)
	if err != nil {
		return nil, err
	}

	supervisor, err := connect(target)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}

	return &Provisioner{
		config:     config,
		options:    options,
		image:      img,
		field:      f,
		target:     target,
		images:     images,
		authority:  authority,
		supervisor: supervisor,
	}, nil
}

func resolveImage(images *image.Catalog, name, version string) (image.Image, error) {
	if version == "" {
		return images.Latest(name)
	}
	img := image.Image{Name: name, Version: version}
	if !images.Exists(img) {
		return image.Image{}, fmt.Errorf("%w for '%s'", image.ErrNoImages, img)
	}
	return img, nil
}

func resolveTarget(options Options) (Target, error) {
	host := strings.TrimSpace(options.Seed)
	if options.Local {
		if host != "" {
			return Target{}, ErrConflictingTarget
		}
		return Target{Local: true}, nil
	}
	if host == "" {
		return Target{}, ErrNoTarget
	}
	return Target{Host: host}, nil
}

func (p *Provisioner) Image() image.Image {
	return p.image
}

func (p *Provisioner) Field() *field.Field {
	return p.field
}

func (p *Provisioner) Target() Target {
	return p.target
}

// Provision runs every step in order and stops at the first failure. Steps
// already applied are left in place.
func (p *Provisioner) Provision(ctx context.Context) (string, error) {
	if p.target.Local && len(p.options.Network) == 0 {
		if err := p.checkBridge(); err != nil {
			return "", err
		}
	}

	name, err := p.reserve()
	if err != nil {
		return "", err
	}
	log := slog.With("machine", name, "image", p.image.String(), "target", p.target.String())

	log.Info("Importing image")
	if err := p.importImage(ctx, name); err != nil {
		return name, err
	}

	if p.options.CA {
		log.Info("Installing machine identity")
		if err := p.installIdentity(ctx, name); err != nil {
			return name, err
		}
	}

	log.Info("Configuring network")
	if err := p.supervisor.ConfigureNetwork(ctx, name, networkStanza(p.config.Bridge, p.options.Network)); err != nil {
		return name, fmt.Errorf("failed to configure network of %s: %w", name, err)
	}

	log.Info("Starting machine")
	if err := p.supervisor.Start(ctx, name); err != nil {
		return name, fmt.Errorf("failed to start %s: %w", name, err)
	}

	if !p.options.CA {
		return name, nil
	}

	log.Info("Waiting for machine")
	if err := p.waitFor(ctx, name, "running", p.supervisor.Running); err != nil {
		return name, err
	}
	if err := p.waitFor(ctx, name, "exec", p.supervisor.Exec); err != nil {
		return name, err
	}

	log.Info("Pinning machine SSH CA", "known_hosts", p.config.KnownHostsPath)
	if err := p.pinHostCA(ctx, name); err != nil {
		return name, err
	}

	log.Info("Machine provisioned")
	return name, nil
}

func (p *Provisioner) checkBridge() error {
	path := filepath.Join(p.config.SysClassNet, p.config.Bridge, "operstate")
	state, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: cannot read %s state: %w", ErrNetwork, p.config.Bridge, err)
	}
	if strings.TrimSpace(string(state)) != "up" {
		return fmt.Errorf("%w: %s is %s, expected up", ErrNetwork, p.config.Bridge, strings.TrimSpace(string(state)))
	}
	return nil
}

// reserve records the Machine under its Field.
func (p *Provisioner) reserve() (string, error) {
	fs := p.field.Store()
	name, err := fs.Reserve(p.image.Name)
	if err != nil {
		return "", err
	}
	ms, err := fs.Sub(name)
	if err != nil {
		return "", err
	}
	if err := ms.Write(imageFile, p.image.String()); err != nil {
		return "", err
	}
	if err := ms.Write(targetFile, p.target.String()); err != nil {
		return "", err
	}
	return name, nil
}

func (p *Provisioner) importImage(ctx context.Context, name string) error {
	archive, err := os.Open(p.images.Path(p.image))
	if err != nil {
		return fmt.Errorf("%w: failed to open image %s: %w", store.ErrIO, p.image, err)
	}
	defer archive.Close()

	decoder, err := zstd.NewReader(archive)
	if err != nil {
		return fmt.Errorf("failed to read image %s: %w", p.image, err)
	}
	defer decoder.Close()

	if err := p.supervisor.Import(ctx, name, decoder.IOReadCloser()); err != nil {
		return fmt.Errorf("failed to import %s as %s: %w", p.image, name, err)
	}
	return nil
}

func (p *Provisioner) installIdentity(ctx context.Context, name string) error {
	fs := p.field.Store()
	rootCert, err := fs.ReadBytes(field.RootCertFile)
	if err != nil {
		return err
	}
	rootKey, err := fs.ReadBytes(field.RootKeyFile)
	if err != nil {
		return err
	}
	adminKey, err := fs.ReadBytes(field.AdminKeyFile)
	if err != nil {
		return err
	}

	key, err := p.authority.GenerateKey()
	if err != nil {
		return err
	}
	crt, err := p.authority.SignLeafCertificate(name, rootCert, rootKey, key, cert.IntermediateTemplate(name))
	if err != nil {
		return err
	}

	ms, err := fs.Sub(name)
	if err != nil {
		return err
	}
	if err := ms.WriteBytes(machineKeyFile, key, 0600); err != nil {
		return err
	}
	if err := ms.WriteBytes(machineCertFile, crt, 0644); err != nil {
		return err
	}

	files := []File{
		{Name: machineKeyFile, Mode: 0600, Data: key},
		{Name: machineCertFile, Mode: 0644, Data: crt},
		{Name: field.RootCertFile, Mode: 0644, Data: rootCert},
		{Name: field.AdminKeyFile, Mode: 0644, Data: adminKey},
	}
	for _, file := range files {
		if err := p.supervisor.Install(ctx, name, file); err != nil {
			return fmt.Errorf("failed to install %s into %s: %w", file.Name, name, err)
		}
	}
	return nil
}

func networkStanza(bridge string, lines []string) string {
	var b strings.Builder
	b.WriteString("[Network]\n")
	if len(lines) == 0 {
		b.WriteString("Bridge=" + bridge + "\n")
		return b.String()
	}
	for _, line := range lines {
		b.WriteString(line + "\n")
	}
	return b.String()
}

// waitFor retries check with doubling delays, failing with ErrTimeout once
// WaitAttempts are used up.
func (p *Provisioner) waitFor(ctx context.Context, name, what string, check func(context.Context, string) error) error {
	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			lastErr = check(ctx, name)
			return lastErr
		},
		NotifyFunc: func(err error, attempt int) {
			slog.Debug("Machine not ready", "machine", name, "check", what, "attempt", attempt, "error", err)
		},
		Attempts:    WaitAttempts,
		Delay:       p.config.WaitUnit / 100,
		BackoffFunc: retry.DoubleDelay,
		Clock:       p.config.Clock,
		Stop:        ctx.Done(),
	})
	if retry.IsAttemptsExceeded(err) {
		return fmt.Errorf("%w %s (%s): %w", ErrTimeout, name, what, lastErr)
	}
	if err != nil {
		return fmt.Errorf("failed waiting for %s (%s): %w", name, what, err)
	}
	return nil
}

func (p *Provisioner) pinHostCA(ctx context.Context, name string) error {
	caPub, err := p.supervisor.Fetch(ctx, name, HostCAPub)
	if err != nil {
		return fmt.Errorf("failed to fetch SSH CA of %s: %w", name, err)
	}
	line, err := PinLine(caPub, p.image.Version)
	if err != nil {
		return err
	}
	ms, err := p.field.Store().Sub(name)
	if err != nil {
		return err
	}
	if err := ms.Write(HostCAPub, caPub); err != nil {
		return err
	}
	return appendLine(p.config.KnownHostsPath, line)
}

// PinLine builds the known_hosts entry trusting the Machine's SSH CA for any
// host. The key comment is suffixed with the image version so several
// versions of one image can be pinned side by side.
func PinLine(caPub, version string) (string, error) {
	caPub = strings.TrimSpace(caPub)
	if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(caPub)); err != nil {
		return "", fmt.Errorf("%w: invalid SSH CA public key: %w", cert.ErrCert, err)
	}
	return fmt.Sprintf("@cert-authority * %s-%s\n", caPub, version), nil
}

func appendLine(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("%w: failed to create %s: %w", store.ErrIO, filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %w", store.ErrIO, path, err)
	}
	if _, err := io.WriteString(f, line); err != nil {
		f.Close()
		return fmt.Errorf("%w: failed to write %s: %w", store.ErrIO, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: failed to write %s: %w", store.ErrIO, path, err)
	}
	return nil
}
