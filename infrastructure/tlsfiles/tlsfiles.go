// Package tlsfiles provides listener certificates from PEM files.
package tlsfiles

import (
	"fmt"
	"os"

	"github.com/spinlet-dev/spinlet/domain/ports"
)

// Files reads a certificate chain and private key from disk. The files are
// read on each call so a restart picks up renewed material.
type Files struct {
	CertPath string
	KeyPath  string
}

var _ ports.TLSProvider = Files{}

// New returns a provider for the given PEM files.
func New(certPath, keyPath string) Files {
	return Files{CertPath: certPath, KeyPath: keyPath}
}

// CertificatePEM implements ports.TLSProvider.
func (f Files) CertificatePEM() ([]byte, error) {
	return read("certificate", f.CertPath)
}

// PrivateKeyPEM implements ports.TLSProvider.
func (f Files) PrivateKeyPEM() ([]byte, error) {
	return read("private key", f.KeyPath)
}

func read(what, path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("no %s file configured", what)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", what, err)
	}
	return data, nil
}

// Static serves PEM material held in memory.
type Static struct {
	Cert []byte
	Key  []byte
}

var _ ports.TLSProvider = Static{}

// CertificatePEM implements ports.TLSProvider.
func (s Static) CertificatePEM() ([]byte, error) { return s.Cert, nil }

// PrivateKeyPEM implements ports.TLSProvider.
func (s Static) PrivateKeyPEM() ([]byte, error) { return s.Key, nil }
