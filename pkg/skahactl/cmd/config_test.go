package cmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencadc/skahactl/pkg/skahactl/config"
)

func TestConfigInit(t *testing.T) {
	path := tempConfigPath(t)

	out, err := execute(t, path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = execute(t, path, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "use --force")

	_, err = execute(t, path, "config", "init", "--force")
	require.NoError(t, err)
}

func TestConfigViewRedactsSecrets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Auth = config.Auth{
		Mode: config.AuthModeOIDC,
		OIDC: &config.OIDCCredential{
			IssuerURL:    "https://ska-iam.stfc.ac.uk",
			ClientID:     "public-id",
			ClientSecret: "very-secret",
			AccessToken:  "access-secret",
			RefreshToken: "refresh-secret",
		},
	}
	path := writeConfig(t, cfg)

	out, err := execute(t, path, "config", "view")
	require.NoError(t, err)
	assert.Contains(t, out, "public-id")
	assert.Contains(t, out, "REDACTED")
	assert.NotContains(t, out, "very-secret")
	assert.NotContains(t, out, "access-secret")
	assert.NotContains(t, out, "refresh-secret")

	// The file itself is untouched.
	persisted, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "very-secret", persisted.Auth.OIDC.ClientSecret)
}

func TestConfigPathCommand(t *testing.T) {
	path := tempConfigPath(t)
	out, err := execute(t, path, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, path)
}
