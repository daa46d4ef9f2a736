package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/meetwhen/internal/logging"
	"github.com/teemow/meetwhen/internal/server"
	"github.com/teemow/meetwhen/internal/tools/availability_tools"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the meetwhen server",
		Long: `Start meetwhen as a long-running server.

Supports two transport types:
  - http: the availability API and the Google consent flow (default)
      GET  /availability?participants=a@x.com,b@x.com&period=7&duration=0.5
      GET  /authorize, GET /oauth2callback
      POST /revoke?identity=a@x.com (needs --admin-token, disabled otherwise)
      GET  /healthz, /readyz, /healthz/detailed
  - stdio: an MCP (Model Context Protocol) server for AI assistants

OAuth Configuration:
  Base URL (required for deployed instances, must be https):
    --base-url https://meetwhen.example.com OR MEETWHEN_BASE_URL env var
    Auto-detected from --addr for localhost (development only)

  Client credentials (required):
    --client-secrets-file or GOOGLE_CLIENT_SECRETS_FILE
    OR --google-client-id/--google-client-secret
    OR GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET env vars`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&flagValues.Server.Transport, "transport", flagValues.Server.Transport, "Transport type: http or stdio. Can also use MEETWHEN_TRANSPORT env var.")
	flags.StringVar(&flagValues.Server.Addr, "addr", flagValues.Server.Addr, "HTTP server address (for http transport). Can also use MEETWHEN_ADDR env var.")
	flags.StringVar(&flagValues.Server.BaseURL, "base-url", "", "Public base URL of the server. Can also use MEETWHEN_BASE_URL env var. Example: https://meetwhen.example.com")
	flags.StringVar(&flagValues.Server.AdminToken, "admin-token", "", "Bearer token required on POST /revoke; revocation over HTTP is disabled when unset. Can also use MEETWHEN_ADMIN_TOKEN env var.")
	flags.BoolVar(&flagValues.Server.CookieSecure, "cookie-secure", false, "Mark the OAuth state cookie Secure (enable behind https). Can also use MEETWHEN_COOKIE_SECURE env var.")
	flags.IntVar(&flagValues.Server.MaxConcurrency, "max-concurrency", flagValues.Server.MaxConcurrency, "Maximum concurrent calendar fetches per query. Can also use MEETWHEN_MAX_CONCURRENCY env var.")

	// Metrics server flags
	flags.BoolVar(&flagValues.Server.MetricsEnabled, "metrics-enabled", flagValues.Server.MetricsEnabled, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	flags.StringVar(&flagValues.Server.MetricsAddr, "metrics-addr", flagValues.Server.MetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(cfg Config) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// stdio has no HTTP surface to export metrics from
	a, err := newApp(shutdownCtx, cfg, cfg.Server.Transport == TransportHTTP)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Error("error during shutdown", logging.Err(err))
		}
	}()

	switch cfg.Server.Transport {
	case TransportStdio:
		return runStdioServer(a)
	case TransportHTTP:
		return runHTTPServer(shutdownCtx, a)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)", cfg.Server.Transport, TransportHTTP, TransportStdio)
	}
}

func newMCPServer(a *app) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("meetwhen", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := availability_tools.RegisterAvailabilityTools(mcpSrv, a.sc); err != nil {
		return nil, fmt.Errorf("failed to register availability tools: %w", err)
	}
	return mcpSrv, nil
}

func runStdioServer(a *app) error {
	mcpSrv, err := newMCPServer(a)
	if err != nil {
		return err
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err = <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runHTTPServer(ctx context.Context, a *app) error {
	cfg := a.cfg
	if cfg.Server.BaseURL == "" {
		a.logger.Warn("no base URL configured, using auto-detected address; set --base-url for deployed instances",
			slog.String("base_url", cfg.BaseURL()))
	}
	if cfg.Server.AdminToken == "" {
		a.logger.Info("no admin token configured, POST /revoke is disabled")
	}

	apiServer, err := server.NewAPIServer(a.sc, server.APIConfig{
		Addr:         cfg.Server.Addr,
		BaseURL:      cfg.BaseURL(),
		CookieSecure: cfg.Server.CookieSecure,
		AdminToken:   cfg.Server.AdminToken,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	var metricsServer *server.MetricsServer
	if cfg.Server.MetricsEnabled && a.provider != nil && a.provider.Enabled() && a.provider.Gatherer() != nil {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Server.MetricsAddr,
			Enabled:                 true,
			InstrumentationProvider: a.provider,
			Logger:                  a.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server stopped", logging.Err(err))
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	a.logger.Info("meetwhen HTTP server starting",
		slog.String("addr", cfg.Server.Addr),
		slog.String("base_url", cfg.BaseURL()),
		slog.Bool("metrics", metricsServer != nil),
		slog.String("version", version))

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-serverDone:
		if err != nil {
			runErr = fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()

	var errs []error
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("error shutting down HTTP server: %w", err))
	}
	if metricsServer != nil {
		metricsCtx, metricsCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer metricsCancel()
		if err := metricsServer.Shutdown(metricsCtx); err != nil {
			errs = append(errs, fmt.Errorf("error shutting down metrics server: %w", err))
		}
	}
	if runErr != nil {
		return errors.Join(append([]error{runErr}, errs...)...)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	a.logger.Info("HTTP server gracefully stopped")
	return nil
}
