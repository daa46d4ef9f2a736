package google

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// RefreshFunc is called with a token the transport obtained by refreshing.
type RefreshFunc func(ctx context.Context, identity string, token *oauth2.Token)

// Handle is the authorization handle for one identity. It is only valid for
// the request it was resolved for.
type Handle struct {
	Identity string

	token     *oauth2.Token
	config    *oauth2.Config
	onRefresh RefreshFunc
}

// NewHandle builds a handle from a stored token pair. The expiry is forced
// into the past so the first API call refreshes the access token.
func NewHandle(identity, accessToken, refreshToken string, config *oauth2.Config) *Handle {
	return &Handle{
		Identity: identity,
		token: &oauth2.Token{
			AccessToken:  accessToken,
			TokenType:    "Bearer",
			RefreshToken: refreshToken,
			Expiry:       time.Unix(1, 0),
		},
		config: config,
	}
}

// Token returns a copy of the handle's token.
func (h *Handle) Token() *oauth2.Token {
	t := *h.token
	return &t
}

// TokenSource returns a token source that refreshes through the client's
// token endpoint and reports new tokens to the refresh callback.
func (h *Handle) TokenSource(ctx context.Context) oauth2.TokenSource {
	base := h.config.TokenSource(ctx, h.Token())
	if h.onRefresh == nil {
		return base
	}
	return &notifyingTokenSource{
		ctx:      ctx,
		identity: h.Identity,
		base:     base,
		last:     h.token.AccessToken,
		notify:   h.onRefresh,
	}
}

// HTTPClient returns an HTTP client configured with OAuth2 authentication.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors.
// A client stored in ctx under oauth2.HTTPClient supplies the base transport.
func (h *Handle) HTTPClient(ctx context.Context) *http.Client {
	client := oauth2.NewClient(ctx, h.TokenSource(ctx))

	transport := client.Transport.(*oauth2.Transport)
	if c, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok && c.Transport != nil {
		transport.Base = c.Transport
	} else {
		transport.Base = &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			ForceAttemptHTTP2: false,
		}
	}

	return client
}

type notifyingTokenSource struct {
	ctx      context.Context
	identity string
	base     oauth2.TokenSource
	notify   RefreshFunc

	mu   sync.Mutex
	last string
}

func (s *notifyingTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changed := t.AccessToken != s.last
	s.last = t.AccessToken
	s.mu.Unlock()

	if changed {
		s.notify(s.ctx, s.identity, t)
	}
	return t, nil
}
