package cert

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/ssh"
)

// SignHostCertificate signs publicKey, in authorized_keys format, as an SSH
// host certificate for identity. caKey is an OpenSSH private key.
func (s *Service) SignHostCertificate(identity string, caKey []byte, publicKey string) (string, error) {
	signer, err := ssh.ParsePrivateKey(caKey)
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse SSH CA key: %w", ErrCert, err)
	}

	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey))
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse SSH public key: %w", ErrCert, err)
	}

	var serial [8]byte
	if _, err := rand.Read(serial[:]); err != nil {
		return "", fmt.Errorf("%w: failed to generate serial: %w", ErrCert, err)
	}

	certificate := &ssh.Certificate{
		Key:             pub,
		Serial:          binary.BigEndian.Uint64(serial[:]),
		CertType:        ssh.HostCert,
		KeyId:           identity,
		ValidPrincipals: []string{identity},
		ValidAfter:      0,
		ValidBefore:     ssh.CertTimeInfinity,
	}
	if err := certificate.SignCert(rand.Reader, signer); err != nil {
		return "", fmt.Errorf("%w: failed to sign host certificate for %s: %w", ErrCert, identity, err)
	}

	slog.Info("Signed SSH host certificate", "identity", identity, "serial", certificate.Serial)
	return string(ssh.MarshalAuthorizedKey(certificate)), nil
}

// GenerateSSHKey creates an ed25519 key pair, returning the OpenSSH private
// key and the authorized_keys line carrying comment.
func GenerateSSHKey(comment string) ([]byte, string, error) {
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to generate SSH key: %w", ErrCert, err)
	}
	block, err := ssh.MarshalPrivateKey(key, comment)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to marshal SSH key: %w", ErrCert, err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to convert SSH public key: %w", ErrCert, err)
	}
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	if comment != "" {
		line += " " + comment
	}
	return pem.EncodeToMemory(block), line + "\n", nil
}

// AdminAuthorizedKeys grants the admin key direct access and trusts it as a
// user certificate authority.
func AdminAuthorizedKeys(adminKey string) string {
	key := strings.TrimSpace(adminKey)
	return key + "\ncert-authority " + key + "\n"
}
