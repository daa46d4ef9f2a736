package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/meetwhen/internal/credentials"
	"github.com/teemow/meetwhen/internal/instrumentation"
	"github.com/teemow/meetwhen/internal/logging"
)

// Resolver turns stored credential records into authorization handles and
// owns the invalidation path when a refresh is rejected.
type Resolver struct {
	store      credentials.Store
	config     *oauth2.Config
	revokeURL  string
	httpClient *http.Client
	logger     *slog.Logger
	audit      *instrumentation.AuditLogger
	locks      *credentials.KeyedMutex
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// WithAuditLogger records credential lifecycle changes to audit.
func WithAuditLogger(audit *instrumentation.AuditLogger) ResolverOption {
	return func(r *Resolver) { r.audit = audit }
}

// WithHTTPClient sets the client used for revocation requests.
func WithHTTPClient(client *http.Client) ResolverOption {
	return func(r *Resolver) { r.httpClient = client }
}

// NewResolver creates a resolver over store using the given client configuration.
func NewResolver(store credentials.Store, cfg *ClientConfig, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("credential store cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	r := &Resolver{
		store:      store,
		config:     cfg.OAuth2Config(),
		revokeURL:  cfg.revokeURL(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		locks:      credentials.NewKeyedMutex(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.WithComponent(r.logger, "resolver")
	return r, nil
}

// Flow returns the consent flow for the resolver's client.
func (r *Resolver) Flow() *Flow {
	return NewFlow(r.config)
}

// Resolve loads the stored credentials for identity. It never contacts Google.
func (r *Resolver) Resolve(ctx context.Context, identity string) (*Handle, error) {
	rec, err := r.store.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return nil, &NoCredentialError{Identity: identity}
		}
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	h := NewHandle(rec.Identity, rec.AccessToken, rec.RefreshToken, r.config)
	h.onRefresh = r.persistRefreshed
	return h, nil
}

// HandleFor wraps a freshly exchanged token whose owner is not known yet.
// Unlike Resolve the token is used as is and refreshes are not persisted.
func (r *Resolver) HandleFor(token *oauth2.Token) *Handle {
	t := *token
	return &Handle{token: &t, config: r.config}
}

// Invalidate deletes the stored credentials h was resolved from and returns
// the NoCredentialError the caller should propagate. If the identity was
// re-authorized after h was resolved, the new record is kept and a
// TransientError is returned instead so the caller can retry.
func (r *Resolver) Invalidate(ctx context.Context, h *Handle, cause error) error {
	identity := h.Identity
	unlock := r.locks.Lock(identity)
	defer unlock()

	// the record must go even if the request that noticed was cancelled
	ctx = context.WithoutCancel(ctx)
	rec, err := r.store.Get(ctx, identity)
	switch {
	case errors.Is(err, credentials.ErrNotFound):
		return &NoCredentialError{Identity: identity, Err: cause}
	case err != nil:
		return errors.Join(&NoCredentialError{Identity: identity, Err: cause},
			fmt.Errorf("failed to load credentials: %w", err))
	case !sameGrant(rec, h.token):
		r.logger.Info("credentials replaced since resolve, keeping them",
			logging.IdentityHash(identity), logging.Err(cause))
		return &TransientError{Identity: identity, Err: cause}
	}

	err = r.store.Delete(ctx, identity)
	r.audit.LogCredentialEvent(ctx, instrumentation.NewCredentialEvent(instrumentation.ActionInvalidated, identity).
		WithReason(instrumentation.ReasonRefreshRejected).
		WithSpanContext(ctx).
		WithError(err))
	if err != nil {
		r.logger.Error("failed to delete rejected credentials",
			logging.IdentityHash(identity), logging.Err(err))
		return errors.Join(&NoCredentialError{Identity: identity, Err: cause}, err)
	}

	r.logger.Warn("credentials invalidated",
		logging.IdentityHash(identity), logging.Err(cause))
	return &NoCredentialError{Identity: identity, Err: cause}
}

// sameGrant reports whether rec still holds the grant token was minted from.
// Refreshes rotate the access token, so it is only compared when there is no
// refresh token.
func sameGrant(rec *credentials.Record, token *oauth2.Token) bool {
	if rec.RefreshToken != "" || token.RefreshToken != "" {
		return rec.RefreshToken == token.RefreshToken
	}
	return rec.AccessToken == token.AccessToken
}

// Store persists a freshly exchanged token for identity.
func (r *Resolver) Store(ctx context.Context, identity string, token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("token for %s has no access token", logging.AnonymizeIdentity(identity))
	}

	unlock := r.locks.Lock(identity)
	defer unlock()

	refresh := token.RefreshToken
	if refresh == "" {
		// Google omits the refresh token on re-consent; keep the stored one
		if rec, err := r.store.Get(ctx, identity); err == nil {
			refresh = rec.RefreshToken
		}
	}

	err := r.store.Put(ctx, credentials.Record{
		Identity:     identity,
		AccessToken:  token.AccessToken,
		RefreshToken: refresh,
	})
	r.audit.LogCredentialEvent(ctx, instrumentation.NewCredentialEvent(instrumentation.ActionStored, identity).
		WithSpanContext(ctx).
		WithError(err))
	return err
}

// Revoke revokes the identity's grant at Google. The stored record is
// deleted only if Google confirms the revocation.
func (r *Resolver) Revoke(ctx context.Context, identity string) error {
	rec, err := r.store.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return &NoCredentialError{Identity: identity}
		}
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	// revoking the refresh token also revokes the access tokens minted from it
	token := rec.RefreshToken
	if token == "" {
		token = rec.AccessToken
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return ClassifyTokenError(identity, fmt.Errorf("revoke request failed: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	event := instrumentation.NewCredentialEvent(instrumentation.ActionRevoked, identity).WithSpanContext(ctx)
	if resp.StatusCode != http.StatusOK {
		rerr := &RevokeError{Identity: identity, StatusCode: resp.StatusCode}
		r.audit.LogCredentialEvent(ctx, event.WithError(rerr))
		return rerr
	}

	if err := r.store.Delete(ctx, identity); err != nil {
		r.audit.LogCredentialEvent(ctx, event.WithError(err))
		return fmt.Errorf("revoked but failed to delete credentials: %w", err)
	}
	r.audit.LogCredentialEvent(ctx, event)
	r.logger.Info("credentials revoked", logging.IdentityHash(identity))
	return nil
}

func (r *Resolver) persistRefreshed(ctx context.Context, identity string, token *oauth2.Token) {
	unlock := r.locks.Lock(identity)
	defer unlock()

	err := r.store.Put(context.WithoutCancel(ctx), credentials.Record{
		Identity:     identity,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	})
	if err != nil {
		r.logger.Warn("failed to persist refreshed token",
			logging.IdentityHash(identity), logging.Err(err))
		return
	}
	r.logger.Debug("persisted refreshed token",
		logging.IdentityHash(identity),
		slog.String("access_token", logging.SanitizeToken(token.AccessToken)))
}

// RevokeError reports a non-200 answer from the revocation endpoint.
type RevokeError struct {
	Identity   string
	StatusCode int
}

func (e *RevokeError) Error() string {
	return fmt.Sprintf("revocation for %s failed with status %d", e.Identity, e.StatusCode)
}
