// Package cert issues the X.509 and SSH certificates that tie Seeds and
// Machines to the root CA of their Field.
package cert

import (
	"crypto/x509"
	"errors"
	"time"
)

var ErrCert = errors.New("certificate error")

const (
	RootValidityDays = 1825
	LeafValidityDays = 365

	DefaultScryptWorkFactor = 18
)

// Template carries the per-issuance knobs for SignLeafCertificate.
type Template struct {
	ValidityDays int
	IsCA         bool
	ExtKeyUsage  []x509.ExtKeyUsage
	DNSNames     []string
}

// LeafTemplate is used for per-Seed TLS certificates.
func LeafTemplate(name string) Template {
	return Template{
		ValidityDays: LeafValidityDays,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     []string{name},
	}
}

// IntermediateTemplate is used for per-Machine signing certificates.
func IntermediateTemplate(name string) Template {
	return Template{
		ValidityDays: LeafValidityDays,
		IsCA:         true,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     []string{name},
	}
}

// Authority is the signing capability required by the seed registry and the
// machine provisioner. All key and certificate material is PEM text.
type Authority interface {
	// GenerateRootCA creates a password protected self-signed CA. The
	// password is returned once and never stored.
	GenerateRootCA(identity string) (password string, key, cert []byte, err error)
	GenerateKey() ([]byte, error)
	SignHostCertificate(identity string, caKey []byte, publicKey string) (string, error)
	SignLeafCertificate(identity string, caCert, caKey, request []byte, tmpl Template) ([]byte, error)
}

// PasswordFunc supplies the password protecting the CA identified by
// issuer. It is only called when an encrypted CA key is used.
type PasswordFunc func(issuer string) (string, error)

type Service struct {
	Password         PasswordFunc
	ScryptWorkFactor int
	Now              func() time.Time
}

type Options struct {
	Password         PasswordFunc
	ScryptWorkFactor int
}

func New(opts *Options) *Service {
	s := &Service{
		ScryptWorkFactor: DefaultScryptWorkFactor,
		Now:              time.Now,
	}
	if opts != nil {
		s.Password = opts.Password
		if opts.ScryptWorkFactor > 0 {
			s.ScryptWorkFactor = opts.ScryptWorkFactor
		}
	}
	return s
}

var _ Authority = (*Service)(nil)
