// Package seed implements the bootstrap protocol for freshly booted nodes.
//
// A Seed is reserved and offered a boot descriptor, fetches its one-time
// password over the boot channel, and redeems the password exactly once for
// an SSH host certificate and a TLS certificate chained to the Field root.
package seed

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"regexp"
	"strings"

	"github.com/barley-project/barley/internal/cert"
	"github.com/barley-project/barley/internal/observability"
	"github.com/barley-project/barley/internal/store"
)

const (
	Prefix = "seed"

	OTPFile      = "otp"
	IPFile       = "ip"
	SSHKeyFile   = "ssh.pub"
	SSHCertFile  = "ssh-cert.pub"
	CSRFile      = "csr"
	CertFile     = "crt"
	AdminKeyFile = "admin.pub"
	HostCAFile   = "ca"
	HostCAPub    = "ca.pub"
	RootCertFile = "root.crt"
	SignCertFile = "machine.crt"
	SignKeyFile  = "machine.key"
)

var ErrOTP = errors.New("otp error")

var nameRegexp = regexp.MustCompile(`^` + Prefix + `-[0-9a-z]{1,8}$`)

// ValidateName rejects anything that is not a reserved Seed name, which also
// keeps request paths from escaping the seed directory.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid seed name %q", name)
	}
	return nil
}

type Config struct {
	// Address is the coordinator address handed to booting Seeds.
	Address string
}

type Registration struct {
	OTP string
	IP  netip.Addr
	SSH string
	CSR string
}

type Certs struct {
	Admin string
	Host  string
	CA    string
	Cert  string
}

type Registry struct {
	seeds     *store.Store
	trust     *store.Store
	authority cert.Authority
	config    Config
}

// NewRegistry keeps Seed records under seeds and signs with the material in
// trust (admin.pub, ca, root.crt, machine.crt, machine.key).
func NewRegistry(seeds, trust *store.Store, authority cert.Authority, config Config) *Registry {
	return &Registry{
		seeds:     seeds,
		trust:     trust,
		authority: authority,
		config:    config,
	}
}

// Reserve allocates a new Seed and creates its record.
func (r *Registry) Reserve() (string, error) {
	name, err := r.seeds.Reserve(Prefix)
	if err != nil {
		return "", err
	}
	slog.Info("Reserved seed", "seed", name)
	return name, nil
}

// Offer mints the Seed's OTP and returns its boot descriptor. Failing to
// persist the OTP is logged only: the node has not booted yet, and its
// registration will fail on its own.
func (r *Registry) Offer(name string) string {
	otp, err := cert.RandomPassword()
	if err == nil {
		err = r.writeOTP(name, otp)
	}
	if err != nil {
		slog.Error("Failed to store OTP, booting seed anyway", "seed", name, "error", err)
	}
	observability.RecordSeedOffer()
	return BootDescriptor(name)
}

func (r *Registry) writeOTP(name, otp string) error {
	s, err := r.seeds.Sub(name)
	if err != nil {
		return err
	}
	return s.WriteBytes(OTPFile, []byte(otp), 0600)
}

// Boot reserves a Seed and offers it in one step.
func (r *Registry) Boot() (string, string, error) {
	name, err := r.Reserve()
	if err != nil {
		return "", "", err
	}
	return name, r.Offer(name), nil
}

// Init returns the environment file relayed to the booting node.
func (r *Registry) Init(name string) (string, error) {
	s, err := r.open(name)
	if err != nil {
		return "", err
	}
	otp, err := s.Read(OTPFile)
	if err != nil {
		return "", err
	}
	observability.RecordSeedInit()
	return fmt.Sprintf("SOWER=%s\nOTP=%s\n", r.config.Address, otp), nil
}

// Register redeems the Seed's OTP for its certificates. The OTP is claimed
// before any other side effect, so a failure further down leaves the Seed
// unable to register again.
func (r *Registry) Register(name string, reg Registration) (*Certs, error) {
	certs, err := r.register(name, reg)
	switch {
	case err == nil:
		observability.RecordSeedRegistration("ok")
	case errors.Is(err, ErrOTP):
		observability.RecordSeedRegistration("otp_mismatch")
	default:
		observability.RecordSeedRegistration("error")
	}
	return certs, err
}

func (r *Registry) register(name string, reg Registration) (*Certs, error) {
	s, err := r.open(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown seed %s", ErrOTP, name)
		}
		return nil, err
	}

	if err := r.claimOTP(name, s, reg.OTP); err != nil {
		return nil, err
	}

	if err := s.Write(IPFile, reg.IP.String()); err != nil {
		return nil, err
	}

	host, err := r.signSSH(name, s, reg.SSH)
	if err != nil {
		return nil, err
	}

	leaf, err := r.signTLS(name, s, reg.CSR)
	if err != nil {
		return nil, err
	}

	adminKey, err := r.trust.Read(AdminKeyFile)
	if err != nil {
		return nil, err
	}

	ca, err := r.trust.Read(RootCertFile)
	if err != nil {
		return nil, err
	}
	intermediate, err := r.trust.Read(SignCertFile)
	if err != nil {
		return nil, err
	}

	slog.Info("Registered seed", "seed", name, "ip", reg.IP.String())
	return &Certs{
		Admin: cert.AdminAuthorizedKeys(adminKey),
		Host:  host,
		CA:    ca,
		Cert:  leaf + intermediate,
	}, nil
}

func (r *Registry) open(name string) (*store.Store, error) {
	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: %w: %w", store.ErrData, store.ErrNotFound, err)
	}
	return r.seeds.Sub(name)
}

// claimOTP checks the submitted OTP and consumes the stored one. Only the
// caller whose removal succeeds may proceed; a mismatch leaves the stored OTP
// in place for the genuine node.
func (r *Registry) claimOTP(name string, s *store.Store, otp string) error {
	stored, err := s.Read(OTPFile)
	if err != nil {
		slog.Warn("No OTP stored for seed", "seed", name, "error", err)
		return fmt.Errorf("%w: no pending OTP for %s", ErrOTP, name)
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(stored)), []byte(otp)) != 1 {
		slog.Warn("OTP mismatch", "seed", name)
		return fmt.Errorf("%w: OTP mismatch for %s", ErrOTP, name)
	}
	if err := s.Remove(OTPFile); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("OTP already claimed", "seed", name)
			return fmt.Errorf("%w: OTP for %s already used", ErrOTP, name)
		}
		return err
	}
	return nil
}

func (r *Registry) signSSH(name string, s *store.Store, publicKey string) (string, error) {
	if err := s.Write(SSHKeyFile, publicKey); err != nil {
		return "", err
	}
	caKey, err := r.trust.ReadBytes(HostCAFile)
	if err != nil {
		return "", err
	}
	host, err := r.authority.SignHostCertificate(name, caKey, publicKey)
	if err != nil {
		return "", err
	}
	if err := s.Write(SSHCertFile, host); err != nil {
		return "", err
	}
	return host, nil
}

func (r *Registry) signTLS(name string, s *store.Store, csr string) (string, error) {
	if err := s.Write(CSRFile, csr); err != nil {
		return "", err
	}
	caCert, err := r.trust.ReadBytes(SignCertFile)
	if err != nil {
		return "", err
	}
	caKey, err := r.trust.ReadBytes(SignKeyFile)
	if err != nil {
		return "", err
	}
	leaf, err := r.authority.SignLeafCertificate(name, caCert, caKey, []byte(csr), cert.LeafTemplate(name))
	if err != nil {
		return "", err
	}
	if err := s.WriteBytes(CertFile, leaf, 0644); err != nil {
		return "", err
	}
	return string(leaf), nil
}
