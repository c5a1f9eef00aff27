package cert

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// RandomPassword returns 128 random bits as lowercase hex.
func RandomPassword() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random password: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func KeyToPEM(key crypto.PrivateKey) ([]byte, error) {
	keyBytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal key: %w", ErrCert, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes}), nil
}

func derToPEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func ParseCertificate(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%w: failed to decode certificate PEM", ErrCert)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse certificate: %w", ErrCert, err)
	}
	return cert, nil
}

func ParsePrivateKey(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: failed to decode key PEM", ErrCert)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse key: %w", ErrCert, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: key of type %T cannot sign", ErrCert, key)
	}
	return signer, nil
}

func requestPublicKey(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: failed to decode request PEM", ErrCert)
	}
	switch block.Type {
	case "CERTIFICATE REQUEST", "NEW CERTIFICATE REQUEST":
		csr, err := x509.ParseCertificateRequest(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse certificate request: %w", ErrCert, err)
		}
		if err := csr.CheckSignature(); err != nil {
			return nil, fmt.Errorf("%w: invalid certificate request signature: %w", ErrCert, err)
		}
		return csr.PublicKey, nil
	case "PRIVATE KEY":
		signer, err := ParsePrivateKey(data)
		if err != nil {
			return nil, err
		}
		return signer.Public(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported request type %q", ErrCert, block.Type)
	}
}

func isSealed(data []byte) bool {
	return strings.HasPrefix(strings.TrimSpace(string(data)), armor.Header)
}

func sealKey(keyPEM []byte, password string, workFactor int) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(password)
	if err != nil {
		return nil, fmt.Errorf("%w: creating scrypt recipient: %w", ErrCert, err)
	}
	recipient.SetWorkFactor(workFactor)

	var buf bytes.Buffer
	armored := armor.NewWriter(&buf)
	writer, err := age.Encrypt(armored, recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: creating age encryptor: %w", ErrCert, err)
	}
	if _, err := writer.Write(keyPEM); err != nil {
		return nil, fmt.Errorf("%w: writing key to age encryptor: %w", ErrCert, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: finalizing age encryption: %w", ErrCert, err)
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("%w: finalizing armor: %w", ErrCert, err)
	}
	return buf.Bytes(), nil
}

func unsealKey(sealed []byte, password string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(password)
	if err != nil {
		return nil, fmt.Errorf("%w: creating scrypt identity: %w", ErrCert, err)
	}
	reader, err := age.Decrypt(armor.NewReader(bytes.NewReader(sealed)), identity)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decrypt CA key: %w", ErrCert, err)
	}
	keyPEM, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read decrypted CA key: %w", ErrCert, err)
	}
	return keyPEM, nil
}
