package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const (
	clientName      = "skahactl"
	deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"
	loginScope      = "openid profile offline_access"

	// Fallback refresh-token lifetime when the provider neither embeds an
	// exp claim nor reports refresh_expires_in.
	defaultRefreshLifetime = 14 * 24 * time.Hour
)

// ErrLoginTimeout is returned when the device authorization expires before
// the user approves the login in their browser.
var ErrLoginTimeout = errors.New("device authorization expired before login was approved")

// Endpoints are the provider URLs taken from the OIDC discovery document.
type Endpoints struct {
	DeviceAuthorizationEndpoint string `json:"device_authorization_endpoint"`
	TokenEndpoint               string `json:"token_endpoint"`
	RegistrationEndpoint        string `json:"registration_endpoint"`
	UserinfoEndpoint            string `json:"userinfo_endpoint"`
}

// ClientRegistration is the identity issued once by dynamic client
// registration and persisted alongside the token set.
type ClientRegistration struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// DeviceAuthorization is a single-use device grant. It is discarded once the
// poll loop terminates.
type DeviceAuthorization struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	TokenType        string `json:"token_type,omitempty"`
	ExpiresIn        int    `json:"expires_in,omitempty"`
	RefreshExpiresIn int    `json:"refresh_expires_in,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDesc        string `json:"error_description,omitempty"`
}

// TokenSet is a complete credential: both tokens plus both decoded
// expiries, never partially populated.
type TokenSet struct {
	Access        string
	Refresh       string
	ExpiryAccess  float64
	ExpiryRefresh float64
}

type LoginConfig struct {
	IssuerURL string
	// Client is threaded through every sub-call so connections are reused.
	// When nil one is created and closed internally.
	Client    *http.Client
	Out       io.Writer
	NoBrowser bool
}

type LoginResult struct {
	Endpoints    Endpoints
	Registration ClientRegistration
	Tokens       TokenSet
	// Subject is a best-effort display name from the userinfo endpoint.
	Subject string
}

// Login drives the full device-authorization sequence: discover, register,
// authorize, poll. Discovery, registration, and authorization are
// single-shot; only polling retries. No partial credential ever escapes a
// failed flow.
func Login(ctx context.Context, cfg LoginConfig) (*LoginResult, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer url is required")
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
		defer client.CloseIdleConnections()
	}

	endpoints, err := DiscoverEndpoints(ctx, client, cfg.IssuerURL)
	if err != nil {
		return nil, err
	}
	if endpoints.DeviceAuthorizationEndpoint == "" {
		return nil, errors.New("device authorization endpoint not advertised")
	}
	if endpoints.TokenEndpoint == "" {
		return nil, errors.New("token endpoint not advertised")
	}
	if endpoints.RegistrationEndpoint == "" {
		return nil, errors.New("registration endpoint not advertised")
	}

	registration, err := RegisterClient(ctx, client, endpoints.RegistrationEndpoint)
	if err != nil {
		return nil, err
	}

	device, err := RequestDeviceAuthorization(ctx, client, endpoints.DeviceAuthorizationEndpoint, registration.ClientID, registration.ClientSecret)
	if err != nil {
		return nil, err
	}

	verificationURL := device.VerificationURIComplete
	if verificationURL == "" {
		verificationURL = device.VerificationURI
	}
	_, _ = fmt.Fprintf(out, "Visit %s and enter code: %s\n", device.VerificationURI, device.UserCode)
	if verificationURL != "" && !cfg.NoBrowser && !strings.EqualFold(os.Getenv("SKAHA_NO_BROWSER"), "true") {
		_ = openBrowser(verificationURL)
	}

	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	spin.Suffix = " waiting for browser approval"
	spin.Start()
	tokens, err := pollForTokens(ctx, client, endpoints.TokenEndpoint, registration.ClientID, registration.ClientSecret, device)
	spin.Stop()
	if err != nil {
		return nil, err
	}

	result := &LoginResult{
		Endpoints:    *endpoints,
		Registration: *registration,
		Tokens:       newTokenSet(tokens),
	}
	// Userinfo is display-only, never fatal.
	if subject, err := fetchSubject(ctx, client, cfg.IssuerURL, tokens.AccessToken); err == nil {
		result.Subject = subject
	}
	return result, nil
}

// DiscoverEndpoints fetches the provider metadata document. Non-2xx
// responses propagate as errors; there is no retry at this layer.
func DiscoverEndpoints(ctx context.Context, client *http.Client, issuerURL string) (*Endpoints, error) {
	discoveryURL := strings.TrimRight(issuerURL, "/") + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("discovery failed: %s", string(body))
	}
	var endpoints Endpoints
	if err := json.NewDecoder(resp.Body).Decode(&endpoints); err != nil {
		return nil, err
	}
	return &endpoints, nil
}

// RegisterClient performs dynamic client registration. A failure here is
// fatal to the login attempt.
func RegisterClient(ctx context.Context, client *http.Client, endpoint string) (*ClientRegistration, error) {
	payload := map[string]any{
		"client_name":                clientName,
		"grant_types":                []string{deviceGrantType, "refresh_token"},
		"response_types":             []string{"token"},
		"token_endpoint_auth_method": "client_secret_basic",
		"scope":                      loginScope,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("client registration failed: %s", string(body))
	}
	var registration ClientRegistration
	if err := json.NewDecoder(resp.Body).Decode(&registration); err != nil {
		return nil, err
	}
	if registration.ClientID == "" {
		return nil, errors.New("registration response missing client_id")
	}
	return &registration, nil
}

// RequestDeviceAuthorization obtains a device code for the registered
// client.
func RequestDeviceAuthorization(ctx context.Context, client *http.Client, endpoint, clientID, clientSecret string) (*DeviceAuthorization, error) {
	values := url.Values{}
	values.Set("client_id", clientID)
	values.Set("scope", loginScope)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(clientID, clientSecret)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("device authorization failed: %s", string(body))
	}
	var device DeviceAuthorization
	if err := json.NewDecoder(resp.Body).Decode(&device); err != nil {
		return nil, err
	}
	if device.DeviceCode == "" {
		return nil, errors.New("device authorization response missing device_code")
	}
	return &device, nil
}

type pollOutcome int

const (
	pollSuccess pollOutcome = iota
	pollPending
	pollSlowDown
	pollFatal
)

type pollResult struct {
	outcome pollOutcome
	tokens  *tokenResponse
	reason  string
}

// pollDeviceToken issues one token request and classifies the response.
// Expected provider answers (pending, slow_down) are outcomes, not errors;
// only transport failures return an error.
func pollDeviceToken(ctx context.Context, client *http.Client, endpoint, clientID, clientSecret, deviceCode string) (pollResult, error) {
	values := url.Values{}
	values.Set("grant_type", deviceGrantType)
	values.Set("device_code", deviceCode)
	values.Set("client_id", clientID)
	values.Set("client_secret", clientSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return pollResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(clientID, clientSecret)
	resp, err := client.Do(req)
	if err != nil {
		return pollResult{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return pollResult{}, err
	}
	switch payload.Error {
	case "":
		if payload.AccessToken == "" {
			return pollResult{outcome: pollFatal, reason: "token response missing access_token"}, nil
		}
		return pollResult{outcome: pollSuccess, tokens: &payload}, nil
	case "authorization_pending":
		return pollResult{outcome: pollPending}, nil
	case "slow_down":
		return pollResult{outcome: pollSlowDown}, nil
	default:
		reason := payload.Error
		if payload.ErrorDesc != "" {
			reason = fmt.Sprintf("%s: %s", payload.Error, payload.ErrorDesc)
		}
		return pollResult{outcome: pollFatal, reason: reason}, nil
	}
}

// pollForTokens runs the backoff loop. Iterations are strictly sequential:
// one request, then a sleep, then the deadline check. Repeated slow_down
// answers grow the interval logarithmically and it never shrinks.
func pollForTokens(ctx context.Context, client *http.Client, endpoint, clientID, clientSecret string, device *DeviceAuthorization) (*tokenResponse, error) {
	interval := device.Interval
	if interval < 1 {
		interval = 1
	}
	budget := time.Duration(device.ExpiresIn) * time.Second
	start := time.Now()
	slowDowns := 0
	for {
		result, err := pollDeviceToken(ctx, client, endpoint, clientID, clientSecret, device.DeviceCode)
		if err != nil {
			return nil, err
		}
		switch result.outcome {
		case pollSuccess:
			return result.tokens, nil
		case pollFatal:
			return nil, fmt.Errorf("unknown polling error: %s", result.reason)
		case pollSlowDown:
			slowDowns++
			interval = nextInterval(interval, slowDowns)
		case pollPending:
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(interval) * time.Second):
		}
		if time.Since(start) > budget {
			return nil, ErrLoginTimeout
		}
	}
}

// nextInterval implements max(interval, floor(interval*(1+ln(n+1)))) for
// the nth consecutive slow_down.
func nextInterval(interval, slowDowns int) int {
	grown := int(math.Floor(float64(interval) * (1 + math.Log(float64(slowDowns+1)))))
	if grown > interval {
		return grown
	}
	return interval
}

func newTokenSet(tokens *tokenResponse) TokenSet {
	now := time.Now()
	set := TokenSet{Access: tokens.AccessToken, Refresh: tokens.RefreshToken}
	if exp, err := ExpiryFromToken(tokens.AccessToken); err == nil {
		set.ExpiryAccess = exp
	} else {
		set.ExpiryAccess = float64(now.Add(time.Duration(tokens.ExpiresIn) * time.Second).Unix())
	}
	if exp, err := ExpiryFromToken(tokens.RefreshToken); err == nil {
		set.ExpiryRefresh = exp
	} else if tokens.RefreshExpiresIn > 0 {
		set.ExpiryRefresh = float64(now.Add(time.Duration(tokens.RefreshExpiresIn) * time.Second).Unix())
	} else {
		set.ExpiryRefresh = float64(now.Add(defaultRefreshLifetime).Unix())
	}
	return set
}

func fetchSubject(ctx context.Context, client *http.Client, issuerURL, accessToken string) (string, error) {
	ctx = oidc.ClientContext(ctx, client)
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return "", err
	}
	info, err := provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return "", err
	}
	var claims struct {
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := info.Claims(&claims); err == nil {
		if claims.Name != "" {
			return claims.Name, nil
		}
		if claims.PreferredUsername != "" {
			return claims.PreferredUsername, nil
		}
	}
	return info.Subject, nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Start()
}
