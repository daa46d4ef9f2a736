package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/teemow/meetwhen/internal/credentials"
	"github.com/teemow/meetwhen/internal/google"
	"github.com/teemow/meetwhen/internal/instrumentation"
	"github.com/teemow/meetwhen/internal/scheduler"
)

// IdentityDiscoverer finds the account behind a freshly exchanged token.
type IdentityDiscoverer interface {
	PrimaryCalendarID(ctx context.Context, h *google.Handle) (string, error)
}

// Dependencies are the components shared by the HTTP API and the MCP tools.
type Dependencies struct {
	Store     credentials.Store
	Resolver  *google.Resolver
	Scheduler *scheduler.Service
	Discovery IdentityDiscoverer

	// BaseURL is the public address of the HTTP API, used to point people
	// at the consent page. Empty when only the MCP server runs.
	BaseURL string

	// Provider and AuditLogger are optional.
	Provider    *instrumentation.Provider
	AuditLogger *instrumentation.AuditLogger

	Logger *slog.Logger
}

// ServerContext holds the long-lived state of a running meetwhen server.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	store     credentials.Store
	resolver  *google.Resolver
	scheduler *scheduler.Service
	discovery IdentityDiscoverer
	baseURL   string
	provider  *instrumentation.Provider
	audit     *instrumentation.AuditLogger
	logger    *slog.Logger

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, deps Dependencies) (*ServerContext, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("credential resolver is required")
	}
	if deps.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:       shutdownCtx,
		cancel:    cancel,
		store:     deps.Store,
		resolver:  deps.Resolver,
		scheduler: deps.Scheduler,
		discovery: deps.Discovery,
		baseURL:   strings.TrimSuffix(deps.BaseURL, "/"),
		provider:  deps.Provider,
		audit:     deps.AuditLogger,
		logger:    deps.Logger,
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Store returns the credential store.
func (sc *ServerContext) Store() credentials.Store {
	return sc.store
}

// Resolver returns the credential resolver.
func (sc *ServerContext) Resolver() *google.Resolver {
	return sc.resolver
}

// Scheduler returns the availability service.
func (sc *ServerContext) Scheduler() *scheduler.Service {
	return sc.scheduler
}

// Discovery returns the identity discoverer, or nil if none was configured.
func (sc *ServerContext) Discovery() IdentityDiscoverer {
	return sc.discovery
}

// AuthorizeURL returns where an identity starts the consent flow.
func (sc *ServerContext) AuthorizeURL() string {
	return sc.baseURL + authorizePath
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder. It is nil without a provider, and
// every recorder method accepts a nil receiver.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	if sc.provider == nil {
		return nil
	}
	return sc.provider.Metrics()
}

// Provider returns the instrumentation provider, or nil.
func (sc *ServerContext) Provider() *instrumentation.Provider {
	return sc.provider
}

// AuditLogger returns the audit logger, or nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.audit
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context and closes the credential store.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()

	if err := sc.store.Close(); err != nil {
		return fmt.Errorf("failed to close credential store: %w", err)
	}
	return nil
}
