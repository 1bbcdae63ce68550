package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestCertificate(t *testing.T, notAfter time.Time, keyFirst bool) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-user"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	content := append(certPEM, keyPEM...)
	if keyFirst {
		content = append(keyPEM, certPEM...)
	}
	path := filepath.Join(t.TempDir(), "proxy.pem")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestLoadCertificate(t *testing.T) {
	notAfter := time.Now().Add(10 * 24 * time.Hour).Truncate(time.Second)
	path := writeTestCertificate(t, notAfter, false)

	cred, err := LoadCertificate(path)
	require.NoError(t, err)
	assert.Equal(t, path, cred.Path)
	assert.Equal(t, float64(notAfter.Unix()), cred.Expiry)
	assert.True(t, cred.Valid())
	assert.False(t, cred.Expired())
}

func TestLoadCertificateKeyBlockFirst(t *testing.T) {
	notAfter := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	path := writeTestCertificate(t, notAfter, true)

	cred, err := LoadCertificate(path)
	require.NoError(t, err)
	assert.Equal(t, float64(notAfter.Unix()), cred.Expiry)
}

func TestLoadCertificateExpired(t *testing.T) {
	path := writeTestCertificate(t, time.Now().Add(-time.Hour), false)

	cred, err := LoadCertificate(path)
	require.NoError(t, err)
	assert.True(t, cred.Expired())
	assert.False(t, cred.Valid())
}

func TestLoadCertificateErrors(t *testing.T) {
	_, err := LoadCertificate(filepath.Join(t.TempDir(), "missing.pem"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(path, []byte("not pem at all"), 0o600))
	_, err = LoadCertificate(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no certificate")
}
