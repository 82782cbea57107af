package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanline/internal/server"
)

var (
	serveHost string
	servePort string
	swaggerSpec string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Scanline server",
	Long: `Start the Scanline HTTP server.

This starts the OCR worker pool, the document store and, when analytics.redis
is enabled with container: true, a local Redis container for the event stream.
When the server shuts down (via Ctrl+C or SIGTERM) everything is stopped.
A second Ctrl+C removes scratch files immediately and exits.

The server provides:
  - /health          - Basic server health check
  - /ready           - Readiness check (store and workers)
  - /status          - Worker, tracker and analytics status
  - /api/pages       - OCR a single page
  - /api/documents   - OCR a multi-page document, list and fetch results

Examples:
  scanline serve                    # Start on default port 8080
  scanline serve --port 3000        # Start on custom port
  scanline serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		h, err := getHome()
		if err != nil {
			return err
		}
		cm, err := loadConfig(h)
		if err != nil {
			return err
		}
		if used := cm.ConfigFileUsed(); used != "" {
			logger.Info("using config file", "path", used)
			cm.WatchConfig()
		}

		srv, err := server.New(server.Config{
			Host:            serveHost,
			Port:            servePort,
			Home:            h,
			ConfigManager:   cm,
			SwaggerSpecPath: swaggerSpec,
			Logger:          logger,
		})
		if err != nil {
			return err
		}

		// Second signal: drop scratch files and exit without waiting.
		go func() {
			<-ctx.Done()
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			<-sigs
			n := srv.KillCleanup()
			fmt.Fprintf(os.Stderr, "forced exit, removed %d scratch files\n", n)
			os.Exit(1)
		}()

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host from config)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: server.port from config)")
	serveCmd.Flags().StringVar(&swaggerSpec, "swagger", "", "Path to swagger.json (default: docs/swagger/swagger.json)")

	rootCmd.AddCommand(serveCmd)
}
