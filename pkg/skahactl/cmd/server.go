package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencadc/skahactl/pkg/skahactl/config"
	"github.com/opencadc/skahactl/pkg/skahactl/output"
	"github.com/opencadc/skahactl/pkg/skahactl/registry"
)

func NewServerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Discover and select Skaha servers",
	}
	cmd.AddCommand(
		newServerDiscoverCommand(),
		newServerUseCommand(),
		newServerShowCommand(),
	)
	return cmd
}

func discoveryRegistries(rt *runtimeState) []config.Registry {
	if len(rt.cfg.Registries) > 0 {
		return rt.cfg.Registries
	}
	return config.DefaultConfig().Registries
}

func newServerDiscoverCommand() *cobra.Command {
	var devMode bool
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Probe registries for live Skaha servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			engine := registry.New(discoveryRegistries(rt),
				registry.WithDevMode(devMode),
				registry.WithLogger(rt.Logger()),
			)
			results, err := engine.Servers(cmd.Context())
			if err != nil {
				return err
			}
			return output.WriteDiscovery(rt.Writer(), output.Format(rt.OutputFormat()), results)
		},
	}
	cmd.Flags().BoolVar(&devMode, "dev", false, "Include development and staging endpoints")
	return cmd
}

func newServerUseCommand() *cobra.Command {
	var (
		devMode     bool
		includeDead bool
		serverURL   string
	)
	cmd := &cobra.Command{
		Use:   "use",
		Short: "Select the active Skaha server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			if serverURL != "" {
				rt.cfg.Server = config.Server{URL: serverURL}
				if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(rt.Writer(), "Using server %s\n", serverURL)
				return nil
			}
			if rt.nonInteractive {
				return errors.New("interactive selection disabled; pass --url")
			}

			engine := registry.New(discoveryRegistries(rt),
				registry.WithDevMode(devMode),
				registry.WithLogger(rt.Logger()),
			)
			results, err := engine.Servers(cmd.Context())
			if err != nil {
				return err
			}
			if results.Found == 0 {
				return errors.New("no servers discovered")
			}
			output.WriteDiscoveryTable(rt.Writer(), results)

			entry, err := promptSelection(cmd, rt, results, includeDead)
			if err != nil {
				return err
			}
			rt.cfg.Server = config.Server{
				Name: entry.DisplayName,
				URI:  entry.URI,
				URL:  entry.URL,
			}
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Using server %s\n", entry.URL)
			return nil
		},
	}
	cmd.Flags().BoolVar(&devMode, "dev", false, "Include development and staging endpoints")
	cmd.Flags().BoolVar(&includeDead, "dead", false, "Allow selecting an unreachable endpoint")
	cmd.Flags().StringVar(&serverURL, "url", "", "Select a server URL directly, skipping discovery")
	return cmd
}

func promptSelection(cmd *cobra.Command, rt *runtimeState, results *registry.Results, includeDead bool) (*registry.Entry, error) {
	_, _ = fmt.Fprintf(rt.Writer(), "Select a server [1-%d]: ", len(results.Entries))
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read selection: %w", err)
	}
	index, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || index < 1 || index > len(results.Entries) {
		return nil, fmt.Errorf("invalid selection %q", strings.TrimSpace(line))
	}
	entry := &results.Entries[index-1]
	if !entry.Live() && !includeDead {
		return nil, fmt.Errorf("server %s is not reachable; pass --dead to select it anyway", entry.URL)
	}
	return entry, nil
}

func newServerShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			if rt.cfg.Server.URL == "" {
				_, _ = fmt.Fprintln(rt.Writer(), "No server selected")
				return nil
			}
			_, _ = fmt.Fprintf(rt.Writer(), "%s\n", rt.cfg.Server.URL)
			return nil
		},
	}
}
