package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/opencadc/skahactl/pkg/skahactl/config"
)

// ErrAuthentication is the single error shape every refresh failure wraps
// into, so HTTP-calling code has one thing to catch. The message carries the
// remediation.
var ErrAuthentication = errors.New(`authentication failed; run "skahactl auth login"`)

// Refresher keeps the stored OIDC access token fresh. Installed as the
// transport of the owning client it runs immediately before each outgoing
// request, so refresh is transparent to the session methods. EnsureFresh is
// also usable directly as the blocking variant.
//
// The refresher is the single writer of the credential file: the on-disk
// state is only written after the in-memory credential is fully updated.
type Refresher struct {
	Config     *config.Config
	ConfigPath string
	// Base is the transport requests continue on; http.DefaultTransport
	// when nil.
	Base http.RoundTripper
	// HTTP performs the token exchange itself, reusing the flow's pooled
	// connections when set.
	HTTP *http.Client
	// Persist overrides the default config.Save, e.g. to route tokens to
	// the OS keychain.
	Persist func() error
	Log     *zap.SugaredLogger

	mu sync.Mutex
}

func (r *Refresher) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := r.EnsureFresh(req.Context()); err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	if cred := r.credential(); cred != nil && cred.AccessToken != "" {
		clone.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	}
	return r.base().RoundTrip(clone)
}

func (r *Refresher) base() http.RoundTripper {
	if r.Base != nil {
		return r.Base
	}
	return http.DefaultTransport
}

func (r *Refresher) credential() *config.OIDCCredential {
	if r.Config == nil || r.Config.Auth.Mode != config.AuthModeOIDC {
		return nil
	}
	return r.Config.Auth.OIDC
}

// EnsureFresh exchanges the refresh token for a new access token when the
// current one has expired. It is a no-op outside OIDC mode and while the
// access token is still valid. An expired refresh token fails without a
// network call.
func (r *Refresher) EnsureFresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred := r.credential()
	if cred == nil {
		return nil
	}
	if !cred.Expired() {
		return nil
	}
	if cred.RefreshExpired() {
		return fmt.Errorf("%w: refresh token expired", ErrAuthentication)
	}

	oauthCfg := oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cred.Endpoints.Token,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	if r.HTTP != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTP)
	}
	source := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	cred.AccessToken = token.AccessToken
	if exp, expErr := ExpiryFromToken(token.AccessToken); expErr == nil {
		cred.ExpiryAccess = exp
	} else {
		cred.ExpiryAccess = float64(token.Expiry.Unix())
	}
	if token.RefreshToken != "" && token.RefreshToken != cred.RefreshToken {
		cred.RefreshToken = token.RefreshToken
		if exp, expErr := ExpiryFromToken(token.RefreshToken); expErr == nil {
			cred.ExpiryRefresh = exp
		}
	}

	persist := r.Persist
	if persist == nil && r.ConfigPath != "" {
		persist = func() error { return config.Save(r.ConfigPath, r.Config) }
	}
	if persist != nil {
		if err := persist(); err != nil {
			return fmt.Errorf("%w: failed to persist refreshed credential: %v", ErrAuthentication, err)
		}
	}
	if r.Log != nil {
		r.Log.Debugw("refreshed access token",
			"expires", time.Unix(int64(cred.ExpiryAccess), 0).UTC().Format(time.RFC3339))
	}
	return nil
}
