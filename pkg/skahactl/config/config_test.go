package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Server = Server{Name: "CANFAR", URI: "ivo://cadc.nrc.ca/skaha", URL: "https://ws-uv.canfar.net/skaha"}
	cfg.Auth = Auth{
		Mode: AuthModeOIDC,
		OIDC: &OIDCCredential{
			IssuerURL:    "https://ska-iam.stfc.ac.uk",
			ClientID:     "abc",
			ClientSecret: "def",
			AccessToken:  "tok",
			RefreshToken: "ref",
			ExpiryAccess: 4100000000,
		},
	}

	require.NoError(t, Save(path, &cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server, loaded.Server)
	require.NotNil(t, loaded.Auth.OIDC)
	assert.Equal(t, "tok", loaded.Auth.OIDC.AccessToken)
	assert.Equal(t, float64(4100000000), loaded.Auth.OIDC.ExpiryAccess)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{bad: [yaml"), 0o600))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestSaveNil(t *testing.T) {
	require.Error(t, Save(filepath.Join(t.TempDir(), "config.yaml"), nil))
}

func TestValidate(t *testing.T) {
	t.Run("default is valid", func(t *testing.T) {
		cfg := DefaultConfig()
		require.NoError(t, cfg.Validate())
	})

	t.Run("unknown auth mode", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Auth.Mode = "kerberos"
		require.Error(t, cfg.Validate())
	})

	t.Run("mode without credential", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Auth.Mode = AuthModeOIDC
		require.Error(t, cfg.Validate())

		cfg.Auth.Mode = AuthModeX509
		require.Error(t, cfg.Validate())
	})

	t.Run("registry missing url", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Registries = append(cfg.Registries, Registry{Name: "broken"})
		require.Error(t, cfg.Validate())
	})
}

func TestOIDCCredentialPredicates(t *testing.T) {
	now := float64(time.Now().Unix())

	var nilCred *OIDCCredential
	assert.False(t, nilCred.Valid())
	assert.True(t, nilCred.Expired())
	assert.True(t, nilCred.RefreshExpired())

	cred := &OIDCCredential{AccessToken: "tok", ExpiryAccess: now + 3600, RefreshToken: "ref", ExpiryRefresh: now + 7200}
	assert.True(t, cred.Valid())
	assert.False(t, cred.Expired())
	assert.False(t, cred.RefreshExpired())

	cred.ExpiryAccess = now - 10
	assert.True(t, cred.Expired())
	assert.False(t, cred.Valid())

	cred.RefreshToken = ""
	assert.True(t, cred.RefreshExpired())
}

func TestX509CredentialPredicates(t *testing.T) {
	now := float64(time.Now().Unix())

	var nilCred *X509Credential
	assert.False(t, nilCred.Valid())
	assert.True(t, nilCred.Expired())

	path := filepath.Join(t.TempDir(), "proxy.pem")
	require.NoError(t, os.WriteFile(path, []byte("pem"), 0o600))

	cred := &X509Credential{Path: path, Expiry: now + 3600}
	assert.True(t, cred.Valid())
	assert.False(t, cred.Expired())

	// Validity requires the file to exist.
	missing := &X509Credential{Path: filepath.Join(t.TempDir(), "gone.pem"), Expiry: now + 3600}
	assert.False(t, missing.Valid())

	cred.Expiry = now - 10
	assert.True(t, cred.Expired())
	assert.False(t, cred.Valid())
}

func TestTimeout(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.Timeout())

	cfg.Settings.Timeout = "5s"
	assert.Equal(t, 5*time.Second, cfg.Timeout())

	cfg.Settings.Timeout = "bogus"
	assert.Equal(t, 30*time.Second, cfg.Timeout())
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("SKAHA_CONFIG", "/tmp/custom.yaml")
	assert.Equal(t, "/tmp/custom.yaml", DefaultConfigPath())

	t.Setenv("SKAHA_CONFIG", "")
	assert.NotEmpty(t, DefaultConfigPath())
}
