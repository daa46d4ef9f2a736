package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/teemow/meetwhen/internal/availability"
	"github.com/teemow/meetwhen/internal/google"
	"github.com/teemow/meetwhen/internal/instrumentation"
	"github.com/teemow/meetwhen/internal/logging"
	"github.com/teemow/meetwhen/internal/scheduler"
)

const (
	// DefaultAPIAddr is the default address for the API server.
	DefaultAPIAddr = ":8080"

	// DefaultPeriodDays is the query window when period is omitted.
	DefaultPeriodDays = 7.0

	authorizePath   = "/authorize"
	stateCookieName = "meetwhen_oauth_state"
	stateCookieTTL  = 10 * time.Minute
)

// APIConfig configures the HTTP API.
type APIConfig struct {
	// Addr is the listen address. Defaults to DefaultAPIAddr.
	Addr string

	// BaseURL is the externally visible URL of the server. When set it must
	// be https, or http on a loopback host.
	BaseURL string

	// CookieSecure marks the OAuth state cookie Secure.
	CookieSecure bool

	// AdminToken is required as a bearer token on POST /revoke. Without it
	// revocation over HTTP is disabled.
	AdminToken string

	// Version is reported by /healthz/detailed.
	Version string
}

// APIServer serves the availability API and the Google consent flow.
type APIServer struct {
	sc      *ServerContext
	health  *HealthChecker
	handler http.Handler
	config  APIConfig
	logger  *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// NewAPIServer builds the router for the HTTP surface.
func NewAPIServer(sc *ServerContext, config APIConfig) (*APIServer, error) {
	if sc == nil {
		return nil, fmt.Errorf("server context is required")
	}
	if config.Addr == "" {
		config.Addr = DefaultAPIAddr
	}
	if config.BaseURL != "" {
		if err := validateHTTPSRequirement(config.BaseURL); err != nil {
			return nil, err
		}
	}

	s := &APIServer{
		sc:     sc,
		health: NewHealthChecker(sc, config.Version),
		config: config,
		logger: logging.WithComponent(sc.Logger(), "api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	s.health.RegisterHealthEndpoints(r)
	r.Get("/availability", s.handleAvailability)
	r.Get(authorizePath, s.handleAuthorize)
	r.Get("/oauth2callback", s.handleCallback)
	r.Post("/revoke", s.handleRevoke)

	s.handler = r
	return s, nil
}

// Handler returns the API router.
func (s *APIServer) Handler() http.Handler {
	return s.handler
}

// Health returns the server's health checker.
func (s *APIServer) Health() *HealthChecker {
	return s.health
}

// Start serves the API until Shutdown is called.
func (s *APIServer) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("starting API server", "addr", ln.Addr().String())
	return srv.Serve(ln)
}

// Shutdown marks the server not ready and drains in-flight requests.
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return srv.Shutdown(ctx)
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *APIServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// instrument records request metrics by route pattern and logs each request.
func (s *APIServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		duration := time.Since(start)
		s.sc.Metrics().RecordHTTPRequest(r.Context(), r.Method, route, status, duration)

		level := slog.LevelDebug
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		s.logger.LogAttrs(r.Context(), level, "http_request",
			slog.String("method", r.Method),
			slog.String("path", route),
			slog.Int("status", status),
			slog.Duration(logging.KeyDuration, duration),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

type errorResponse struct {
	Error        string `json:"error"`
	Identity     string `json:"identity,omitempty"`
	AuthorizeURL string `json:"authorize_url,omitempty"`
}

type freeWindow struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration string    `json:"duration"`
}

type availabilityResponse struct {
	Window availability.Interval `json:"window"`
	Free   []freeWindow          `json:"free"`
}

// handleAvailability serves GET /availability?participants=a,b&period=7&duration=0.5.
// period is in days, duration in hours.
func (s *APIServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	period, err := parseUnits(params, "period", DefaultPeriodDays, 24*time.Hour)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	minDuration, err := parseUnits(params, "duration", 0, time.Hour)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	q, err := scheduler.NewQuery(splitParticipants(params.Get("participants")), time.Now(), period, minDuration)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res, err := s.sc.Scheduler().ComputeAvailability(r.Context(), q)
	if err != nil {
		s.writeSchedulerError(w, err)
		return
	}

	resp := availabilityResponse{Window: res.Window, Free: make([]freeWindow, 0, len(res.Free))}
	for _, f := range res.Free {
		resp.Free = append(resp.Free, freeWindow{Start: f.Start, End: f.End, Duration: f.Duration().String()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) writeSchedulerError(w http.ResponseWriter, err error) {
	var nc *google.NoCredentialError
	switch {
	case errors.Is(err, scheduler.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &nc):
		writeError(w, http.StatusForbidden, errorResponse{
			Error:        fmt.Sprintf("%s has not granted calendar access", nc.Identity),
			Identity:     nc.Identity,
			AuthorizeURL: s.sc.AuthorizeURL(),
		})
	case google.IsTransient(err):
		writeError(w, http.StatusBadGateway, errorResponse{Error: "calendar provider unavailable, try again later"})
	default:
		s.logger.Error("availability request failed", logging.Err(err))
		writeError(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// handleAuthorize redirects to Google's consent screen.
func (s *APIServer) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.sc.Resolver().Flow().AuthCodeURL(state), http.StatusFound)
}

type callbackResponse struct {
	Identity string `json:"identity"`
}

// handleCallback completes the consent flow and stores the granted tokens
// under the account's primary calendar id.
func (s *APIServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	metrics := s.sc.Metrics()
	params := r.URL.Query()

	if reason := params.Get("error"); reason != "" {
		metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		writeError(w, http.StatusForbidden, errorResponse{Error: "authorization was not granted: " + reason})
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	state := params.Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		writeError(w, http.StatusBadRequest, errorResponse{Error: "invalid state parameter"})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	resolver := s.sc.Resolver()
	token, err := resolver.Flow().Exchange(ctx, params.Get("code"))
	if err != nil {
		metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.logger.Warn("code exchange failed", logging.Err(err))
		if google.IsTransient(google.ClassifyTokenError("", err)) {
			writeError(w, http.StatusBadGateway, errorResponse{Error: "token endpoint unavailable, try again later"})
			return
		}
		writeError(w, http.StatusBadRequest, errorResponse{Error: "invalid authorization code"})
		return
	}

	discovery := s.sc.Discovery()
	if discovery == nil {
		writeError(w, http.StatusInternalServerError, errorResponse{Error: "identity discovery is not configured"})
		return
	}
	identity, err := discovery.PrimaryCalendarID(ctx, resolver.HandleFor(token))
	if err != nil {
		metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.logger.Warn("identity discovery failed", logging.Err(err))
		writeError(w, http.StatusBadGateway, errorResponse{Error: "failed to look up the primary calendar"})
		return
	}

	if err := resolver.Store(ctx, identity, token); err != nil {
		metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		s.logger.Error("failed to store credentials", logging.IdentityHash(identity), logging.Err(err))
		writeError(w, http.StatusInternalServerError, errorResponse{Error: "failed to store credentials"})
		return
	}

	metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	s.logger.Info("identity authorized", logging.IdentityHash(identity))
	writeJSON(w, http.StatusOK, callbackResponse{Identity: identity})
}

type revokeResponse struct {
	Identity string `json:"identity"`
	Revoked  bool   `json:"revoked"`
}

// handleRevoke serves POST /revoke?identity=x.
func (s *APIServer) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if s.config.AdminToken == "" {
		writeError(w, http.StatusForbidden, errorResponse{Error: "revocation is disabled: no admin token configured"})
		return
	}
	given, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(given), []byte(s.config.AdminToken)) != 1 {
		writeError(w, http.StatusUnauthorized, errorResponse{Error: "admin token required"})
		return
	}

	identity := strings.TrimSpace(r.FormValue("identity"))
	if identity == "" {
		writeError(w, http.StatusBadRequest, errorResponse{Error: "identity is required"})
		return
	}

	ctx := r.Context()
	err := s.sc.Resolver().Revoke(ctx, identity)

	var rerr *google.RevokeError
	switch {
	case err == nil:
		s.sc.Metrics().RecordCredentialInvalidation(ctx, instrumentation.ReasonRevoked)
		writeJSON(w, http.StatusOK, revokeResponse{Identity: identity, Revoked: true})
	case google.IsNoCredential(err):
		writeError(w, http.StatusNotFound, errorResponse{Error: "no stored credentials", Identity: identity})
	case errors.As(err, &rerr):
		writeError(w, http.StatusBadGateway, errorResponse{
			Error:    fmt.Sprintf("revocation rejected with status %d", rerr.StatusCode),
			Identity: identity,
		})
	case google.IsTransient(err):
		writeError(w, http.StatusBadGateway, errorResponse{Error: "revocation endpoint unavailable, try again later", Identity: identity})
	default:
		s.logger.Error("revocation failed", logging.IdentityHash(identity), logging.Err(err))
		writeError(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeError(w http.ResponseWriter, status int, resp errorResponse) {
	writeJSON(w, status, resp)
}

// splitParticipants parses a comma separated identity list. Blank entries
// are kept so the query rejects them.
func splitParticipants(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// parseUnits reads a decimal parameter counted in unit.
func parseUnits(params url.Values, name string, def float64, unit time.Duration) (time.Duration, error) {
	v := def
	if raw := params.Get(name); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number: %q", name, raw)
		}
		v = parsed
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > float64(math.MaxInt64)/float64(unit) {
		return 0, fmt.Errorf("%s is out of range", name)
	}
	return time.Duration(v * float64(unit)), nil
}

// validateHTTPSRequirement ensures the OAuth redirect target is served over
// HTTPS. Allows HTTP only for loopback addresses (localhost, 127.0.0.1, ::1).
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	// Parse URL to properly validate scheme and host
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	// Allow HTTP only for loopback addresses
	if u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("OAuth requires HTTPS for production (got: %s). Use HTTPS or localhost for development", baseURL)
		}
	} else if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}

	return nil
}
