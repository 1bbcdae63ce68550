package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opencadc/skahactl/pkg/skahactl/config"
)

type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
}

type runtimeState struct {
	configPath     string
	cfg            *config.Config
	outputFormat   string
	serverOverride string
	tokenOverride  string
	certOverride   string
	nonInteractive bool
	verbose        bool
	writer         io.Writer
	log            *zap.SugaredLogger
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		OutputWriter: os.Stdout,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{configPath: cfg.ConfigPath, writer: cfg.OutputWriter}

	root := &cobra.Command{
		Use:   "skahactl",
		Short: "Skaha session CLI",
		Long:  "skahactl manages remote compute sessions on a Skaha science platform server.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.configPath == "" {
				rt.configPath = config.DefaultConfigPath()
			}
			if rt.outputFormat == "" {
				rt.outputFormat = os.Getenv("SKAHA_OUTPUT")
			}
			if rt.serverOverride == "" {
				rt.serverOverride = os.Getenv("SKAHA_SERVER")
			}
			if rt.tokenOverride == "" {
				rt.tokenOverride = os.Getenv("SKAHA_TOKEN")
			}
			if rt.certOverride == "" {
				rt.certOverride = os.Getenv("SKAHA_CERT")
			}
			if !rt.nonInteractive {
				rt.nonInteractive = strings.EqualFold(os.Getenv("SKAHA_NON_INTERACTIVE"), "true")
			}
			if !rt.verbose {
				rt.verbose = strings.EqualFold(os.Getenv("SKAHA_VERBOSE"), "true")
			}

			// Commands that never touch the config file.
			if cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}
			if (cmd.Name() == "init" || cmd.Name() == "path") && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
				return nil
			}
			// A full server+credential override works without a config file.
			if rt.serverOverride != "" && (rt.tokenOverride != "" || rt.certOverride != "") {
				rt.cfg = &config.Config{Version: config.VersionV1}
				return nil
			}

			cfg, err := config.Load(rt.configPath)
			if err != nil {
				return err
			}
			rt.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: table, wide, json, yaml")
	root.PersistentFlags().StringVar(&rt.serverOverride, "server", "", "Server URL override (bypass config)")
	root.PersistentFlags().StringVar(&rt.tokenOverride, "token", "", "Bearer token override")
	root.PersistentFlags().StringVar(&rt.certOverride, "cert", "", "Proxy certificate override")
	root.PersistentFlags().BoolVar(&rt.nonInteractive, "non-interactive", false, "Fail instead of prompting")
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Enable verbose request logging")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewConfigCommand(),
		NewAuthCommand(),
		NewSessionCommand(),
		NewServerCommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) OutputFormat() string {
	if rt.outputFormat != "" {
		return rt.outputFormat
	}
	if rt.cfg != nil && rt.cfg.Settings.OutputFormat != "" {
		return rt.cfg.Settings.OutputFormat
	}
	return "table"
}

func (rt *runtimeState) EnsureConfigLoaded() error {
	if rt.cfg != nil {
		return nil
	}
	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return err
	}
	rt.cfg = cfg
	return nil
}

func (rt *runtimeState) Logger() *zap.SugaredLogger {
	if rt.log != nil {
		return rt.log
	}
	if rt.verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			rt.log = logger.Sugar()
			return rt.log
		}
	}
	rt.log = zap.NewNop().Sugar()
	return rt.log
}

func (rt *runtimeState) resolveServer() string {
	if rt.serverOverride != "" {
		return rt.serverOverride
	}
	if rt.cfg != nil {
		return rt.cfg.Server.URL
	}
	return ""
}

func (rt *runtimeState) configPathValue() string {
	if rt.configPath == "" {
		return config.DefaultConfigPath()
	}
	return rt.configPath
}
