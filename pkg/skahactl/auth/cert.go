package auth

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/opencadc/skahactl/pkg/skahactl/config"
)

// LoadCertificate reads a PEM proxy certificate and returns an X509
// credential whose expiry is the leaf certificate's NotAfter. Proxy files
// often carry the private key first, so every PEM block is scanned.
func LoadCertificate(path string) (*config.X509Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	block, rest := pem.Decode(data)
	for block != nil && block.Type != "CERTIFICATE" {
		block, rest = pem.Decode(rest)
	}
	if block == nil {
		return nil, errors.New("no certificate found in PEM file")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return &config.X509Credential{
		Path:   path,
		Expiry: float64(cert.NotAfter.Unix()),
	}, nil
}
