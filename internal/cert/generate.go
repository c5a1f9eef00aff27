package cert

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"log/slog"
	"math/big"
	"time"
)

func (s *Service) GenerateRootCA(identity string) (string, []byte, []byte, error) {
	slog.Info("Generating root CA", "identity", identity)

	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, nil, fmt.Errorf("%w: failed to generate CA key: %w", ErrCert, err)
	}

	serialNumber, err := newSerialNumber()
	if err != nil {
		return "", nil, nil, err
	}

	now := s.Now()
	caTemplate := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName: identity,
		},
		NotBefore:             now,
		NotAfter:              now.Add(RootValidityDays * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	caCertBytes, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, pub, key)
	if err != nil {
		return "", nil, nil, fmt.Errorf("%w: failed to create CA certificate: %w", ErrCert, err)
	}

	keyPEM, err := KeyToPEM(key)
	if err != nil {
		return "", nil, nil, err
	}

	password, err := RandomPassword()
	if err != nil {
		return "", nil, nil, err
	}

	sealed, err := sealKey(keyPEM, password, s.ScryptWorkFactor)
	if err != nil {
		return "", nil, nil, err
	}

	return password, sealed, derToPEM(caCertBytes), nil
}

func (s *Service) GenerateKey() ([]byte, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate key: %w", ErrCert, err)
	}
	return KeyToPEM(key)
}

// SignLeafCertificate issues a certificate for the public key carried by
// request, which is either a PEM certificate request or a PEM private key.
func (s *Service) SignLeafCertificate(identity string, caCert, caKey, request []byte, tmpl Template) ([]byte, error) {
	issuer, err := ParseCertificate(caCert)
	if err != nil {
		return nil, err
	}

	signer, err := s.loadSigner(issuer.Subject.CommonName, caKey)
	if err != nil {
		return nil, err
	}

	pub, err := requestPublicKey(request)
	if err != nil {
		return nil, err
	}

	serialNumber, err := newSerialNumber()
	if err != nil {
		return nil, err
	}

	validity := tmpl.ValidityDays
	if validity <= 0 {
		validity = LeafValidityDays
	}

	now := s.Now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName: identity,
		},
		NotBefore:             now,
		NotAfter:              now.Add(time.Duration(validity) * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           tmpl.ExtKeyUsage,
		BasicConstraintsValid: true,
		IsCA:                  tmpl.IsCA,
		DNSNames:              tmpl.DNSNames,
	}
	if tmpl.IsCA {
		template.KeyUsage |= x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, template, issuer, pub, signer)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create certificate for %s: %w", ErrCert, identity, err)
	}

	slog.Info("Issued certificate", "identity", identity, "issuer", issuer.Subject.CommonName, "ca", tmpl.IsCA)
	return derToPEM(certBytes), nil
}

func (s *Service) loadSigner(issuer string, caKey []byte) (crypto.Signer, error) {
	keyPEM := caKey
	if isSealed(caKey) {
		if s.Password == nil {
			return nil, fmt.Errorf("%w: key for %s is password protected and no password source is configured", ErrCert, issuer)
		}
		password, err := s.Password(issuer)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read password for %s: %w", ErrCert, issuer, err)
		}
		keyPEM, err = unsealKey(caKey, password)
		if err != nil {
			return nil, err
		}
	}
	return ParsePrivateKey(keyPEM)
}

func newSerialNumber() (*big.Int, error) {
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate serial number: %w", ErrCert, err)
	}
	return serialNumber, nil
}
