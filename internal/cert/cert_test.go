package cert

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func newTestService(password *string) *Service {
	return New(&Options{
		ScryptWorkFactor: 10,
		Password: func(string) (string, error) {
			if password == nil {
				return "", errors.New("no password")
			}
			return *password, nil
		},
	})
}

func newCSR(t *testing.T, cn string) []byte {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	der, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject: pkix.Name{CommonName: cn},
	}, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der})
}

func TestGenerateRootCA(t *testing.T) {
	s := newTestService(nil)

	password, key, certPEM, err := s.GenerateRootCA("lab")
	require.NoError(t, err)
	assert.Len(t, password, 32)
	assert.True(t, isSealed(key))
	assert.NotContains(t, string(key), "PRIVATE KEY")

	root, err := ParseCertificate(certPEM)
	require.NoError(t, err)
	assert.True(t, root.IsCA)
	assert.Equal(t, "lab", root.Subject.CommonName)
	assert.WithinDuration(t, root.NotBefore.AddDate(0, 0, RootValidityDays), root.NotAfter, 0)

	keyPEM, err := unsealKey(key, password)
	require.NoError(t, err)
	_, err = ParsePrivateKey(keyPEM)
	require.NoError(t, err)
}

func TestUnsealWrongPassword(t *testing.T) {
	s := newTestService(nil)
	_, key, _, err := s.GenerateRootCA("lab")
	require.NoError(t, err)

	_, err = unsealKey(key, "wrong")
	assert.ErrorIs(t, err, ErrCert)
}

func TestIntermediateChainsToRoot(t *testing.T) {
	var password string
	s := newTestService(&password)

	pw, rootKey, rootPEM, err := s.GenerateRootCA("lab")
	require.NoError(t, err)
	password = pw

	machineKey, err := s.GenerateKey()
	require.NoError(t, err)

	machinePEM, err := s.SignLeafCertificate("cryptpad-1", rootPEM, rootKey, machineKey, IntermediateTemplate("cryptpad-1"))
	require.NoError(t, err)

	leafPEM, err := s.SignLeafCertificate("seed-1", machinePEM, machineKey, newCSR(t, "ignored"), LeafTemplate("seed-1"))
	require.NoError(t, err)

	root, err := ParseCertificate(rootPEM)
	require.NoError(t, err)
	intermediate, err := ParseCertificate(machinePEM)
	require.NoError(t, err)
	leaf, err := ParseCertificate(leafPEM)
	require.NoError(t, err)

	assert.True(t, intermediate.IsCA)
	assert.False(t, leaf.IsCA)
	assert.Equal(t, "seed-1", leaf.Subject.CommonName)

	roots := x509.NewCertPool()
	roots.AddCert(root)
	intermediates := x509.NewCertPool()
	intermediates.AddCert(intermediate)
	_, err = leaf.Verify(x509.VerifyOptions{
		DNSName:       "seed-1",
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	assert.NoError(t, err)
}

func TestSignWithSealedKeyNeedsPassword(t *testing.T) {
	s := newTestService(nil)
	_, rootKey, rootPEM, err := s.GenerateRootCA("lab")
	require.NoError(t, err)

	_, err = s.SignLeafCertificate("m", rootPEM, rootKey, newCSR(t, "m"), LeafTemplate("m"))
	assert.ErrorIs(t, err, ErrCert)
}

func TestSignRejectsGarbageRequest(t *testing.T) {
	var password string
	s := newTestService(&password)
	pw, rootKey, rootPEM, err := s.GenerateRootCA("lab")
	require.NoError(t, err)
	password = pw

	_, err = s.SignLeafCertificate("m", rootPEM, rootKey, []byte("not pem"), LeafTemplate("m"))
	assert.ErrorIs(t, err, ErrCert)
}

func TestSignHostCertificate(t *testing.T) {
	s := newTestService(nil)

	caKey, caPub, err := GenerateSSHKey("cryptpad-1")
	require.NoError(t, err)
	_, hostPub, err := GenerateSSHKey("")
	require.NoError(t, err)

	certText, err := s.SignHostCertificate("seed-7", caKey, hostPub)
	require.NoError(t, err)

	parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(certText))
	require.NoError(t, err)
	certificate, ok := parsed.(*ssh.Certificate)
	require.True(t, ok)
	assert.Equal(t, uint32(ssh.HostCert), certificate.CertType)
	assert.Equal(t, "seed-7", certificate.KeyId)

	authority, _, _, _, err := ssh.ParseAuthorizedKey([]byte(caPub))
	require.NoError(t, err)
	assert.Equal(t, authority.Marshal(), certificate.SignatureKey.Marshal())
}

func TestSignHostCertificateBadKey(t *testing.T) {
	s := newTestService(nil)
	caKey, _, err := GenerateSSHKey("ca")
	require.NoError(t, err)

	_, err = s.SignHostCertificate("seed-7", caKey, "ssh-ed25519 garbage")
	assert.ErrorIs(t, err, ErrCert)
}

func TestGenerateSSHKeyComment(t *testing.T) {
	_, pub, err := GenerateSSHKey("cryptpad-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(pub, "ssh-ed25519 "))
	assert.True(t, strings.HasSuffix(pub, " cryptpad-1\n"))
}

func TestAdminAuthorizedKeys(t *testing.T) {
	line := AdminAuthorizedKeys("ssh-ed25519 AAAA admin@host\n")
	assert.Equal(t, "ssh-ed25519 AAAA admin@host\ncert-authority ssh-ed25519 AAAA admin@host\n", line)
}
