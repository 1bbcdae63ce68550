package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencadc/skahactl/pkg/skahactl/auth"
	"github.com/opencadc/skahactl/pkg/skahactl/config"
)

func NewAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage Skaha credentials",
	}
	cmd.AddCommand(
		newAuthLoginCommand(),
		newAuthCertCommand(),
		newAuthStatusCommand(),
		newAuthLogoutCommand(),
	)
	return cmd
}

func newAuthLoginCommand() *cobra.Command {
	var (
		issuerURL string
		noBrowser bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login via OIDC device flow",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			if issuerURL == "" && rt.cfg.Auth.OIDC != nil {
				issuerURL = rt.cfg.Auth.OIDC.IssuerURL
			}
			if issuerURL == "" {
				return errors.New("issuer url is required (--issuer)")
			}

			// Ctrl-C aborts the poll loop cleanly; nothing is persisted
			// until the whole flow succeeds.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			result, err := auth.Login(ctx, auth.LoginConfig{
				IssuerURL: issuerURL,
				Out:       rt.Writer(),
				NoBrowser: noBrowser,
			})
			if err != nil {
				return err
			}

			cred := &config.OIDCCredential{
				IssuerURL: issuerURL,
				Endpoints: config.OIDCURLs{
					DeviceAuthorization: result.Endpoints.DeviceAuthorizationEndpoint,
					Token:               result.Endpoints.TokenEndpoint,
					Registration:        result.Endpoints.RegistrationEndpoint,
					Userinfo:            result.Endpoints.UserinfoEndpoint,
				},
				ClientID:      result.Registration.ClientID,
				ClientSecret:  result.Registration.ClientSecret,
				AccessToken:   result.Tokens.Access,
				RefreshToken:  result.Tokens.Refresh,
				ExpiryAccess:  result.Tokens.ExpiryAccess,
				ExpiryRefresh: result.Tokens.ExpiryRefresh,
			}
			rt.cfg.Auth.Mode = config.AuthModeOIDC
			rt.cfg.Auth.OIDC = cred

			if rt.cfg.Settings.TokenStorage == "keychain" {
				store := &auth.KeyringStore{Account: cred.IssuerURL}
				if err := store.Save(cred.AccessToken, cred.RefreshToken); err != nil {
					return fmt.Errorf("failed to write keychain: %w", err)
				}
				scrubbed := *cred
				scrubbed.AccessToken = ""
				scrubbed.RefreshToken = ""
				rt.cfg.Auth.OIDC = &scrubbed
				if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
					return err
				}
				rt.cfg.Auth.OIDC = cred
			} else if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}

			who := result.Subject
			if who == "" {
				who = "unknown user"
			}
			expires := time.Unix(int64(result.Tokens.ExpiryAccess), 0).UTC().Format(time.RFC3339)
			_, _ = fmt.Fprintf(rt.Writer(), "Authenticated as %s. Token expires at %s\n", who, expires)
			return nil
		},
	}
	cmd.Flags().StringVar(&issuerURL, "issuer", "", "OIDC issuer URL")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Do not open a browser automatically")
	return cmd
}

func newAuthCertCommand() *cobra.Command {
	var certPath string
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Authenticate with a proxy certificate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			if certPath == "" {
				home, _ := os.UserHomeDir()
				certPath = filepath.Join(home, ".ssl", "cadcproxy.pem")
			}
			cred, err := auth.LoadCertificate(certPath)
			if err != nil {
				return err
			}
			if cred.Expired() {
				return fmt.Errorf("certificate at %s is expired", certPath)
			}
			rt.cfg.Auth.Mode = config.AuthModeX509
			rt.cfg.Auth.X509 = cred
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			expires := time.Unix(int64(cred.Expiry), 0).UTC().Format(time.RFC3339)
			_, _ = fmt.Fprintf(rt.Writer(), "Using certificate %s, valid until %s\n", certPath, expires)
			return nil
		},
	}
	cmd.Flags().StringVar(&certPath, "path", "", "Path to PEM proxy certificate (default ~/.ssl/cadcproxy.pem)")
	return cmd
}

func newAuthStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			switch rt.cfg.Auth.Mode {
			case config.AuthModeOIDC:
				cred := rt.cfg.Auth.OIDC
				if cred == nil {
					_, _ = fmt.Fprintln(rt.Writer(), "Not authenticated")
					return nil
				}
				if err := loadStoredTokens(rt); err == nil {
					if who := subjectFromToken(cred.AccessToken); who != "" {
						_, _ = fmt.Fprintf(rt.Writer(), "Logged in as %s\n", who)
					}
				}
				state := "valid"
				if cred.Expired() {
					state = "expired"
					if !cred.RefreshExpired() {
						state = "expired (refresh pending)"
					}
				}
				expires := time.Unix(int64(cred.ExpiryAccess), 0).UTC().Format(time.RFC3339)
				_, _ = fmt.Fprintf(rt.Writer(), "OIDC token %s, expires at %s (issuer %s)\n", state, expires, cred.IssuerURL)
			case config.AuthModeX509:
				cred := rt.cfg.Auth.X509
				if cred == nil || !cred.Valid() {
					_, _ = fmt.Fprintln(rt.Writer(), "Certificate missing or expired")
					return nil
				}
				expires := time.Unix(int64(cred.Expiry), 0).UTC().Format(time.RFC3339)
				_, _ = fmt.Fprintf(rt.Writer(), "Certificate %s valid until %s\n", cred.Path, expires)
			default:
				_, _ = fmt.Fprintln(rt.Writer(), "Not authenticated")
			}
			return nil
		},
	}
}

func newAuthLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			if cred := rt.cfg.Auth.OIDC; cred != nil && rt.cfg.Settings.TokenStorage == "keychain" {
				store := &auth.KeyringStore{Account: cred.IssuerURL}
				_ = store.Delete()
			}
			rt.cfg.Auth = config.Auth{}
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), "Logged out")
			return nil
		},
	}
}
