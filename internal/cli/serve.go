package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pawbot/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pawbot gateway server",
		Long: `Start the pawbot gateway server.

This command starts the HTTP gateway server that provides:
- REST API endpoints for conversations and knowledge documents
- WebSocket chat with streamed reply parts
- Knowledge base watching and scheduled resync

The server will listen on the configured host and port (default: 127.0.0.1:18790).`,
		Example: `  # Start server with default configuration
  pawbot serve

  # Start server with custom port
  pawbot serve --port 8080

  # Serve another documents directory
  pawbot serve --docs ./knowledge`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "port to listen on (overrides config)")
	cmd.Flags().String("host", "", "host to bind to (overrides config)")
	cmd.Flags().String("docs", "", "knowledge documents directory (overrides config)")
	cmd.Flags().Bool("no-watch", false, "do not watch the documents directory")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return errNoContext
	}

	cfg := cliCtx.Config
	log := cliCtx.Log()

	// Override config with flags if provided
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Gateway.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Gateway.Host = host
	}
	if docs, _ := cmd.Flags().GetString("docs"); docs != "" {
		cfg.Knowledge.DocsDir = docs
	}
	if noWatch, _ := cmd.Flags().GetBool("no-watch"); noWatch {
		cfg.Knowledge.Watch = false
	}

	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18790
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}

	log.Info().Msg("Starting pawbot server...")

	srv, err := server.NewServer(server.ServerConfig{
		Config:   cfg,
		Version:  Version,
		Logger:   *log,
		Provider: cliCtx.Provider,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(); err != nil {
		srv.Components().Close()
		return fmt.Errorf("failed to start server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case <-sigCh:
		log.Info().Msg("Shutting down server...")
	case serveErr = <-srv.ErrorChan():
		log.Error().Err(serveErr).Msg("Server error")
	case <-cmd.Context().Done():
	}

	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		if serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}
