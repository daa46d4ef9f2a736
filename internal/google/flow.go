package google

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// Flow drives the authorization code consent flow.
type Flow struct {
	config *oauth2.Config
}

// NewFlow creates a flow for config.
func NewFlow(config *oauth2.Config) *Flow {
	return &Flow{config: config}
}

// AuthCodeURL returns the consent URL. Offline access is requested so Google
// hands out a refresh token.
func (f *Flow) AuthCodeURL(state string) string {
	return f.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"))
}

// Exchange trades an authorization code for a token pair.
func (f *Flow) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("authorization code is empty")
	}
	t, err := f.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return t, nil
}
