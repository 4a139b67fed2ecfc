// Package main is the entry point for the loom host.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loomhost/loom/internal/app"
	"github.com/loomhost/loom/internal/config"
	"github.com/loomhost/loom/internal/plugin"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "loom",
		Short:         "loom hosts business modules as isolated Lua plugins",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to JSON config file")

	root.AddCommand(
		newRunCmd(&configPath),
		newPluginsCmd(&configPath),
		newValidateCmd(),
	)
	return root
}

func loadConfig(path string) (config.Config, error) {
	return config.Load(path)
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Load every plugin and run the host until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return app.New(cfg).Run(ctx)
		},
	}
}

func newPluginsCmd(configPath *string) *cobra.Command {
	plugins := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect and manage the plugin catalog",
	}

	plugins.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List discovered plugins and their resolution outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			a := app.New(cfg)
			a.Discover()

			records := a.Registry().Records()
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no plugins found")
				return nil
			}
			for _, rec := range records {
				status := rec.Outcome.String()
				if cfg.IsDisabled(rec.Descriptor.Key()) {
					status = "disabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %-10s %s\n",
					rec.Descriptor.String(), status, rec.Descriptor.Description)
			}
			return nil
		},
	})

	plugins.AddCommand(&cobra.Command{
		Use:   "disable <Namespace.Identifier>",
		Short: "Disable a plugin in the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if *configPath == "" {
				return fmt.Errorf("--config is required to persist plugin state")
			}
			return config.SetDisabled(*configPath, args[0], true)
		},
	})

	plugins.AddCommand(&cobra.Command{
		Use:   "enable <Namespace.Identifier>",
		Short: "Re-enable a plugin in the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if *configPath == "" {
				return fmt.Errorf("--config is required to persist plugin state")
			}
			return config.SetDisabled(*configPath, args[0], false)
		},
	})

	return plugins
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <plugin-dir>",
		Short: "Validate a plugin directory's manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := plugin.LoadManifestFromDir(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", m.String())
			return nil
		},
	}
}
