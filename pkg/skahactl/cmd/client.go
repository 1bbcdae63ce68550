package cmd

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/opencadc/skahactl/pkg/skahactl/auth"
	"github.com/opencadc/skahactl/pkg/skahactl/client"
	"github.com/opencadc/skahactl/pkg/skahactl/config"
)

func buildClient(rt *runtimeState) (*client.Client, error) {
	// Runtime bearer/cert overrides bypass config and managed refresh.
	if rt.serverOverride != "" && rt.tokenOverride != "" {
		return client.New(
			client.WithServer(rt.serverOverride),
			client.WithToken(rt.tokenOverride),
			client.WithUserAgent("skahactl"),
			client.WithLogger(rt.Logger()),
		)
	}
	if rt.serverOverride != "" && rt.certOverride != "" {
		return client.New(
			client.WithServer(rt.serverOverride),
			client.WithUserAgent("skahactl"),
			client.WithClientCertificate(rt.certOverride),
			client.WithLogger(rt.Logger()),
		)
	}

	if err := rt.EnsureConfigLoaded(); err != nil {
		return nil, err
	}
	server := rt.resolveServer()
	if server == "" {
		return nil, errors.New(`no server selected; run "skahactl server use"`)
	}

	options := []client.Option{
		client.WithServer(server),
		client.WithUserAgent("skahactl"),
		client.WithTimeout(rt.cfg.Timeout()),
		client.WithLogger(rt.Logger()),
	}

	switch rt.cfg.Auth.Mode {
	case config.AuthModeX509:
		cred := rt.cfg.Auth.X509
		if cred == nil || !cred.Valid() {
			return nil, errors.New(`certificate missing or expired; run "skahactl auth cert"`)
		}
		options = append(options, client.WithClientCertificate(cred.Path))
	case config.AuthModeOIDC:
		if rt.cfg.Auth.OIDC == nil {
			return nil, fmt.Errorf("%w", auth.ErrAuthentication)
		}
		if err := loadStoredTokens(rt); err != nil {
			return nil, err
		}
		refresher := &auth.Refresher{
			Config:     rt.cfg,
			ConfigPath: rt.configPathValue(),
			HTTP:       &http.Client{Timeout: rt.cfg.Timeout()},
			Persist:    persistCredential(rt),
			Log:        rt.Logger(),
		}
		options = append(options, client.WithTransport(refresher))
	default:
		return nil, errors.New(`not authenticated; run "skahactl auth login"`)
	}

	return client.New(options...)
}

// persistCredential writes the credential back after a refresh. With the
// keychain backend the token pair goes to the keyring and is scrubbed from
// the YAML before it hits disk.
func persistCredential(rt *runtimeState) func() error {
	if rt.cfg.Settings.TokenStorage != "keychain" {
		return nil
	}
	return func() error {
		cred := rt.cfg.Auth.OIDC
		store := &auth.KeyringStore{Account: cred.IssuerURL}
		if err := store.Save(cred.AccessToken, cred.RefreshToken); err != nil {
			return err
		}
		scrubbed := *rt.cfg
		oidcCopy := *cred
		oidcCopy.AccessToken = ""
		oidcCopy.RefreshToken = ""
		scrubbed.Auth.OIDC = &oidcCopy
		return config.Save(rt.configPathValue(), &scrubbed)
	}
}

// loadStoredTokens pulls the token pair out of the OS keychain when the
// keychain backend is configured; the config file carries them otherwise.
func loadStoredTokens(rt *runtimeState) error {
	if rt.cfg.Settings.TokenStorage != "keychain" {
		return nil
	}
	cred := rt.cfg.Auth.OIDC
	store := &auth.KeyringStore{Account: cred.IssuerURL}
	access, refresh, ok, err := store.Load()
	if err != nil {
		return fmt.Errorf("failed to read keychain: %w", err)
	}
	if !ok {
		return errors.New(`no keychain entry; run "skahactl auth login"`)
	}
	cred.AccessToken = access
	cred.RefreshToken = refresh
	return nil
}
