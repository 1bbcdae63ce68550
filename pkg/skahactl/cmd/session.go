package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencadc/skahactl/pkg/skahactl/client"
	"github.com/opencadc/skahactl/pkg/skahactl/output"
)

func NewSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage compute sessions",
	}
	cmd.AddCommand(
		newSessionCreateCommand(),
		newSessionListCommand(),
		newSessionGetCommand(),
		newSessionLogsCommand(),
		newSessionEventsCommand(),
		newSessionDestroyCommand(),
		newSessionStatsCommand(),
		newSessionContextCommand(),
	)
	return cmd
}

func newSessionCreateCommand() *cobra.Command {
	var (
		name  string
		image string
		kind  string
		cores int
		ram   int
		gpus  int
		run   string
		args  []string
		env   []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Launch a new session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			apiClient, err := buildClient(rt)
			if err != nil {
				return err
			}
			envMap := map[string]string{}
			for _, pair := range env {
				key, value, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("invalid env entry %q, expected KEY=VALUE", pair)
				}
				envMap[key] = value
			}
			id, err := apiClient.Sessions().Create(cmd.Context(), client.CreateOptions{
				Name:  name,
				Image: image,
				Kind:  kind,
				Cores: cores,
				RAM:   ram,
				GPUs:  gpus,
				Cmd:   run,
				Args:  args,
				Env:   envMap,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Session name")
	cmd.Flags().StringVar(&image, "image", "", "Container image")
	cmd.Flags().StringVar(&kind, "type", "headless", "Session type: notebook, desktop, carta, headless")
	cmd.Flags().IntVar(&cores, "cores", 0, "CPU cores")
	cmd.Flags().IntVar(&ram, "ram", 0, "RAM in GB")
	cmd.Flags().IntVar(&gpus, "gpus", 0, "GPU cores")
	cmd.Flags().StringVar(&run, "cmd", "", "Command to run (headless)")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "Command argument (repeatable)")
	cmd.Flags().StringArrayVar(&env, "env", nil, "Environment variable KEY=VALUE (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func newSessionListCommand() *cobra.Command {
	var (
		kind   string
		status string
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			apiClient, err := buildClient(rt)
			if err != nil {
				return err
			}
			sessions, err := apiClient.Sessions().List(cmd.Context(), client.SessionListOptions{
				Kind:   kind,
				Status: status,
				All:    all,
			})
			if err != nil {
				return err
			}
			return output.WriteSessions(rt.Writer(), output.Format(rt.OutputFormat()), sessions)
		},
	}
	cmd.Flags().StringVar(&kind, "type", "", "Filter by session type")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().BoolVar(&all, "all", false, "Include sessions of all users")
	return cmd
}

func newSessionGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "get <id>",
		Aliases: []string{"info"},
		Short:   "Show one session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			apiClient, err := buildClient(rt)
			if err != nil {
				return err
			}
			session, err := apiClient.Sessions().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			format := rt.OutputFormat()
			if format == "table" || format == "wide" {
				format = "yaml"
			}
			return output.WriteObject(rt.Writer(), output.Format(format), session)
		},
	}
	return cmd
}

func newSessionLogsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Fetch session logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			apiClient, err := buildClient(rt)
			if err != nil {
				return err
			}
			logs, err := apiClient.Sessions().Logs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(rt.Writer(), logs)
			return nil
		},
	}
	return cmd
}

func newSessionEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events <id>",
		Short: "Fetch session scheduling events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			apiClient, err := buildClient(rt)
			if err != nil {
				return err
			}
			events, err := apiClient.Sessions().Events(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(rt.Writer(), events)
			return nil
		},
	}
	return cmd
}

func newSessionDestroyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "destroy <id> [<id>...]",
		Short: "Destroy one or more sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			apiClient, err := buildClient(rt)
			if err != nil {
				return err
			}
			if err := apiClient.Sessions().DestroyMany(cmd.Context(), args); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Destroyed %d session(s)\n", len(args))
			return nil
		},
	}
	return cmd
}

func newSessionStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cluster usage statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			apiClient, err := buildClient(rt)
			if err != nil {
				return err
			}
			stats, err := apiClient.Sessions().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return output.WriteStats(rt.Writer(), output.Format(rt.OutputFormat()), stats)
		},
	}
	return cmd
}

func newSessionContextCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show available resource options",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			apiClient, err := buildClient(rt)
			if err != nil {
				return err
			}
			resources, err := apiClient.Context(cmd.Context())
			if err != nil {
				return err
			}
			format := rt.OutputFormat()
			if format == "table" || format == "wide" {
				format = "yaml"
			}
			return output.WriteObject(rt.Writer(), output.Format(format), resources)
		},
	}
	return cmd
}
