package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/teemow/meetwhen/internal/calendar"
	"github.com/teemow/meetwhen/internal/credentials"
	"github.com/teemow/meetwhen/internal/credentials/sqlstore"
	"github.com/teemow/meetwhen/internal/google"
	"github.com/teemow/meetwhen/internal/instrumentation"
	"github.com/teemow/meetwhen/internal/logging"
	"github.com/teemow/meetwhen/internal/scheduler"
	"github.com/teemow/meetwhen/internal/server"
)

// app holds the components every command builds from Config.
type app struct {
	cfg      Config
	logger   *slog.Logger
	store    credentials.Store
	resolver *google.Resolver
	sc       *server.ServerContext
	provider *instrumentation.Provider
	audit    *instrumentation.AuditLogger
}

// newApp opens the credential store and wires the resolver, calendar client
// and scheduler. Instrumentation is only set up when instrumented is true;
// one-shot CLI commands do not export metrics.
func newApp(ctx context.Context, cfg Config, instrumented bool) (*app, error) {
	logger := newLogger(cfg.Log)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	instrConfig.Logger = logger
	audit := instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)

	var provider *instrumentation.Provider
	if instrumented {
		p, err := instrumentation.NewProvider(ctx, instrConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
		}
		provider = p
	}

	clientConfig, err := cfg.ClientConfig()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("invalid Google client config: %w", err), shutdownProvider(provider))
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to open credential store: %w", err), shutdownProvider(provider))
	}

	resolver, err := google.NewResolver(store, clientConfig,
		google.WithLogger(logger),
		google.WithAuditLogger(audit),
	)
	if err != nil {
		return nil, errors.Join(err, store.Close(), shutdownProvider(provider))
	}

	var metrics *instrumentation.Metrics
	if provider != nil {
		metrics = provider.Metrics()
	}

	cal := calendar.NewClient(calendar.DefaultConfig(), logger)
	svc := scheduler.NewService(resolver, cal,
		scheduler.WithLogger(logger),
		scheduler.WithMetrics(metrics),
		scheduler.WithMaxConcurrency(cfg.Server.MaxConcurrency),
	)

	sc, err := server.NewServerContext(ctx, server.Dependencies{
		Store:       store,
		Resolver:    resolver,
		Scheduler:   svc,
		Discovery:   cal,
		BaseURL:     cfg.BaseURL(),
		Provider:    provider,
		AuditLogger: audit,
		Logger:      logger,
	})
	if err != nil {
		return nil, errors.Join(err, store.Close(), shutdownProvider(provider))
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		resolver: resolver,
		sc:       sc,
		provider: provider,
		audit:    audit,
	}, nil
}

// openStore opens the credential store selected by cfg.Store.Driver.
func openStore(ctx context.Context, cfg Config, logger *slog.Logger) (credentials.Store, error) {
	if cfg.Store.Driver == StoreMemory {
		store := credentials.NewMemoryStore()
		store.SetLogger(logger)
		logger.Warn("using the in-memory credential store, authorizations are lost on exit")
		return store, nil
	}

	store, err := sqlstore.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, err
	}
	store.SetLogger(logger)
	return store, nil
}

// Close shuts the server context (and with it the store) and flushes
// instrumentation.
func (a *app) Close() error {
	return errors.Join(a.sc.Shutdown(), shutdownProvider(a.provider))
}

func shutdownProvider(p *instrumentation.Provider) error {
	if p == nil {
		return nil
	}
	if err := p.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("failed to shutdown instrumentation: %w", err)
	}
	return nil
}

// newLogger writes to stderr so stdout stays free for command output and
// the MCP stdio transport.
func newLogger(cfg LogConfig) *slog.Logger {
	logger := logging.NewLogger(os.Stderr, cfg.Format, cfg.Debug)
	slog.SetDefault(logger)
	return logger
}
