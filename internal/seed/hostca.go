package seed

import (
	"log/slog"

	"github.com/barley-project/barley/internal/cert"
)

// EnsureHostCA creates the SSH CA used to sign Seed host keys unless the
// trust directory already holds one.
func (r *Registry) EnsureHostCA(comment string) error {
	if r.trust.Exists(HostCAFile) {
		return nil
	}
	private, public, err := cert.GenerateSSHKey(comment)
	if err != nil {
		return err
	}
	if err := r.trust.WriteBytes(HostCAFile, private, 0600); err != nil {
		return err
	}
	if err := r.trust.Write(HostCAPub, public); err != nil {
		return err
	}
	slog.Info("Generated SSH host CA", "path", r.trust.File(HostCAFile))
	return nil
}
