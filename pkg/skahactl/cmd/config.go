package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/opencadc/skahactl/pkg/skahactl/config"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage skahactl configuration",
	}
	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigViewCommand(),
		newConfigPathCommand(),
	)
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			path := rt.configPathValue()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}
			cfg := config.DefaultConfig()
			if err := config.Save(path, &cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	return cmd
}

func newConfigViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Print the current config with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			redacted := *rt.cfg
			if redacted.Auth.OIDC != nil {
				cred := *redacted.Auth.OIDC
				cred.ClientSecret = redact(cred.ClientSecret)
				cred.AccessToken = redact(cred.AccessToken)
				cred.RefreshToken = redact(cred.RefreshToken)
				redacted.Auth.OIDC = &cred
			}
			content, err := yaml.Marshal(&redacted)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(rt.Writer(), string(content))
			return nil
		},
	}
}

func redact(value string) string {
	if value == "" {
		return ""
	}
	return "REDACTED"
}

func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), rt.configPathValue())
			return nil
		},
	}
}
