package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pagevoice/pagevoice/internal/config"
	"github.com/pagevoice/pagevoice/internal/home"
	"github.com/pagevoice/pagevoice/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the PageVoice server",
	Long: `Start the PageVoice HTTP API server.

The server needs a reachable NATS deployment with JetStream enabled; it
stores job metadata in SQLite, PDF and audio blobs in the JetStream object
store, and dispatches page work onto the task stream for workers to consume.

Examples:
  pagevoice serve                    # Start on default port 8080
  pagevoice serve --port 3000        # Start on custom port
  pagevoice serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		// Flag overrides land in viper before the manager loads.
		if cmd.Flags().Changed("host") {
			viper.Set("server.host", serveHost)
		}
		if cmd.Flags().Changed("port") {
			viper.Set("server.port", servePort)
		}

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cm.WatchConfig()

		// Relative database paths live under the home directory.
		cfg := cm.Get()
		if resolved := h.ResolveDatabasePath(cfg.Store.SQLitePath); resolved != cfg.Store.SQLitePath {
			viper.Set("store.sqlite_path", resolved)
			cfg.Store.SQLitePath = resolved
		}

		srv, err := server.New(cm, logger)
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
