package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/stone-age-io/factagent/internal/agent"
	"github.com/stone-age-io/factagent/internal/config"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "factagent",
		Short:         "Host fact collection agent",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", config.GetDefaultConfigPath(), "Path to the configuration file")

	cmd.AddCommand(newRunCommand(&configPath))
	cmd.AddCommand(newSnapshotCommand(&configPath))
	cmd.AddCommand(newServiceCommand(&configPath))
	return cmd
}

func newRunCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent in the foreground or under the service manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := agent.NewService(agent.NewProgram(*configPath, version))
			if err != nil {
				return err
			}
			return s.Run()
		},
	}
}

func newSnapshotCommand(configPath *string) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Assemble one snapshot and print it to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := agent.New(*configPath, version)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			data, err := a.Snapshot(ctx)
			if shutdownErr := a.Shutdown(); err == nil {
				err = shutdownErr
			}
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Upper bound for assembling the snapshot")
	return cmd
}

func newServiceCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "service <install|uninstall|start|stop|restart>",
		Short:     "Manage the system service",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: service.ControlAction[:],
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := agent.NewService(agent.NewProgram(*configPath, version))
			if err != nil {
				return err
			}
			if err := service.Control(s, args[0]); err != nil {
				return fmt.Errorf("service %s failed: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", args[0])
			return nil
		},
	}
}
