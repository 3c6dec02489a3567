// Command stellatune-enginectl is the operator CLI: start the plugin host with its
// metrics endpoint, manage plugins, and inspect plugin-host generations (spec §6
// "External interfaces").
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/friendsincode/stellatune/internal/config"
	"github.com/friendsincode/stellatune/internal/logging"
	"github.com/friendsincode/stellatune/internal/pluginhost"
	"github.com/friendsincode/stellatune/internal/storedb"
	"github.com/friendsincode/stellatune/internal/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stellatune-enginectl",
		Short: "Operate the StellaTune playback engine",
	}
	root.AddCommand(newRunCmd(), newPluginCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Discover plugins and serve the metrics endpoint until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			logger := logging.Setup(cfg.Environment)

			store, err := storedb.Open(cfg.DBDSN, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}

			host := pluginhost.New(pluginhost.Config{
				PluginsRoot: cfg.PluginsRoot,
				ScratchRoot: cfg.ShadowCopyRoot,
				RuntimeRoot: cfg.RuntimeRoot,
			}, store, logger)
			defer host.Close()

			if err := host.Discover(); err != nil {
				logger.Warn().Err(err).Msg("plugin discovery reported errors")
			}

			metricsServer := &http.Server{Addr: cfg.MetricsBind, Handler: telemetry.Handler()}
			go func() {
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error().Err(err).Msg("metrics server exited")
				}
			}()
			defer metricsServer.Close()

			logger.Info().Str("metrics_bind", cfg.MetricsBind).Msg("engine started")

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			logger.Info().Msg("shutting down")
			return nil
		},
	}
}

func newPluginCmd() *cobra.Command {
	plugin := &cobra.Command{
		Use:   "plugin",
		Short: "Manage installed plugins",
	}

	plugin.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List discovered plugins and their active generations",
		RunE: func(cmd *cobra.Command, args []string) error {
			host, cleanup, err := openHost()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := host.Discover(); err != nil {
				return err
			}
			for _, gen := range host.ActiveGenerations() {
				fmt.Println(gen.Vtable().MetadataJSON())
			}
			return nil
		},
	})

	var artifactPath string
	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install a plugin artifact (dylib or zip)",
		RunE: func(cmd *cobra.Command, args []string) error {
			host, cleanup, err := openHost()
			if err != nil {
				return err
			}
			defer cleanup()

			manifest, err := host.InstallArtifact(artifactPath)
			if err != nil {
				return err
			}
			fmt.Printf("installed %s (api_version=%d)\n", manifest.ID, manifest.APIVersion)
			return nil
		},
	}
	installCmd.Flags().StringVar(&artifactPath, "artifact", "", "path to the plugin dylib or zip")
	plugin.AddCommand(installCmd)

	var uninstallID string
	uninstallCmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall a plugin, retrying on pending unload",
		RunE: func(cmd *cobra.Command, args []string) error {
			host, cleanup, err := openHost()
			if err != nil {
				return err
			}
			defer cleanup()
			return host.Uninstall(uninstallID)
		},
	}
	uninstallCmd.Flags().StringVar(&uninstallID, "id", "", "plugin id to uninstall")
	plugin.AddCommand(uninstallCmd)

	return plugin
}

func openHost() (*pluginhost.Host, func(), error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.Setup(cfg.Environment)

	store, err := storedb.Open(cfg.DBDSN, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	host := pluginhost.New(pluginhost.Config{
		PluginsRoot: cfg.PluginsRoot,
		ScratchRoot: cfg.ShadowCopyRoot,
		RuntimeRoot: cfg.RuntimeRoot,
	}, store, logger)
	return host, func() { host.Close() }, nil
}
