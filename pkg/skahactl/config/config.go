package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	VersionV1 = "v1"

	// AuthModeOIDC selects the device-flow token credential.
	AuthModeOIDC = "oidc"
	// AuthModeX509 selects the proxy-certificate credential.
	AuthModeX509 = "x509"
)

// Config is the on-disk skahactl configuration. The active credential is a
// tagged union: Auth.Mode names which of the OIDC/X509 sections is live.
type Config struct {
	Version    string     `yaml:"version"`
	Server     Server     `yaml:"server,omitempty"`
	Auth       Auth       `yaml:"auth,omitempty"`
	Registries []Registry `yaml:"registries,omitempty"`
	Settings   Settings   `yaml:"settings,omitempty"`
}

// Server is the currently selected Skaha endpoint.
type Server struct {
	Name string `yaml:"name,omitempty"`
	URI  string `yaml:"uri,omitempty"`
	URL  string `yaml:"url,omitempty"`
}

// Registry is one IVOA registry queried during server discovery.
type Registry struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Settings struct {
	OutputFormat string `yaml:"output-format,omitempty"`
	Timeout      string `yaml:"timeout,omitempty"`
	TokenStorage string `yaml:"token-storage,omitempty"`
}

type Auth struct {
	Mode string          `yaml:"mode,omitempty"`
	OIDC *OIDCCredential `yaml:"oidc,omitempty"`
	X509 *X509Credential `yaml:"x509,omitempty"`
}

// OIDCCredential holds everything issued during a device-flow login: the
// provider endpoints, the dynamically registered client, and the token set
// with decoded unix expiries.
type OIDCCredential struct {
	IssuerURL    string   `yaml:"issuer-url"`
	Endpoints    OIDCURLs `yaml:"endpoints,omitempty"`
	ClientID     string   `yaml:"client-id,omitempty"`
	ClientSecret string   `yaml:"client-secret,omitempty"`
	AccessToken  string   `yaml:"access-token,omitempty"`
	RefreshToken string   `yaml:"refresh-token,omitempty"`
	// Unix timestamps decoded from the tokens themselves, or derived from
	// the provider-supplied lifetimes when the token is opaque.
	ExpiryAccess  float64 `yaml:"expiry-access,omitempty"`
	ExpiryRefresh float64 `yaml:"expiry-refresh,omitempty"`
}

type OIDCURLs struct {
	DeviceAuthorization string `yaml:"device-authorization,omitempty"`
	Token               string `yaml:"token,omitempty"`
	Registration        string `yaml:"registration,omitempty"`
	Userinfo            string `yaml:"userinfo,omitempty"`
}

// X509Credential points at a PEM proxy certificate on disk. Expiry is the
// certificate's NotAfter, recorded when the credential is activated.
type X509Credential struct {
	Path   string  `yaml:"path"`
	Expiry float64 `yaml:"expiry,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Version: VersionV1,
		Registries: []Registry{
			{Name: "CADC", URL: "https://ws.cadc-ccda.hia-iha.nrc-cnrc.gc.ca/reg/resource-caps"},
			{Name: "SRCnet", URL: "https://spsrc27.iaa.csic.es/reg/resource-caps"},
		},
		Settings: Settings{
			OutputFormat: "table",
			Timeout:      "30s",
			TokenStorage: "file",
		},
	}
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

func (c *Config) Validate() error {
	if c.Version == "" {
		return errors.New("config version missing")
	}
	switch c.Auth.Mode {
	case "", AuthModeOIDC, AuthModeX509:
	default:
		return fmt.Errorf("unknown auth mode: %s", c.Auth.Mode)
	}
	if c.Auth.Mode == AuthModeOIDC && c.Auth.OIDC == nil {
		return errors.New("auth mode is oidc but no oidc credential configured")
	}
	if c.Auth.Mode == AuthModeX509 && c.Auth.X509 == nil {
		return errors.New("auth mode is x509 but no x509 credential configured")
	}
	for _, reg := range c.Registries {
		if strings.TrimSpace(reg.Name) == "" {
			return errors.New("registry name cannot be empty")
		}
		if strings.TrimSpace(reg.URL) == "" {
			return fmt.Errorf("registry %s url is required", reg.Name)
		}
	}
	return nil
}

// Valid reports whether the credential has an access token that has not
// passed its expiry.
func (o *OIDCCredential) Valid() bool {
	if o == nil || o.AccessToken == "" || o.ExpiryAccess == 0 {
		return false
	}
	return !o.Expired()
}

func (o *OIDCCredential) Expired() bool {
	if o == nil || o.ExpiryAccess == 0 {
		return true
	}
	return o.ExpiryAccess < float64(time.Now().Unix())
}

// RefreshExpired reports whether the refresh token can no longer be used.
// An absent expiry counts as expired so a missing refresh token never
// triggers a doomed network exchange.
func (o *OIDCCredential) RefreshExpired() bool {
	if o == nil || o.RefreshToken == "" || o.ExpiryRefresh == 0 {
		return true
	}
	return o.ExpiryRefresh < float64(time.Now().Unix())
}

// Valid requires the certificate file to exist and a recorded expiry.
func (x *X509Credential) Valid() bool {
	if x == nil || x.Path == "" || x.Expiry == 0 {
		return false
	}
	if _, err := os.Stat(x.Path); err != nil {
		return false
	}
	return !x.Expired()
}

func (x *X509Credential) Expired() bool {
	if x == nil || x.Expiry == 0 {
		return true
	}
	return x.Expiry < float64(time.Now().Unix())
}

func (c *Config) Timeout() time.Duration {
	if c.Settings.Timeout != "" {
		if d, err := time.ParseDuration(c.Settings.Timeout); err == nil {
			return d
		}
	}
	return 30 * time.Second
}
