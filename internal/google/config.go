package google

import (
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultRevokeURL is Google's token revocation endpoint.
const DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"

// ClientConfig is the static OAuth2 client configuration shared by every identity.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// AuthURL and TokenURL default to Google's endpoints.
	AuthURL  string
	TokenURL string

	// RevokeURL defaults to DefaultRevokeURL.
	RevokeURL string

	// Scopes defaults to DefaultOAuthScopes.
	Scopes []string
}

// LoadClientConfig reads a client_secret.json downloaded from the Google
// Cloud console. Both "web" and "installed" sections are accepted.
// A non-empty redirectURL overrides the first redirect URI in the file.
func LoadClientConfig(path, redirectURL string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read client secrets file: %w", err)
	}

	conf, err := google.ConfigFromJSON(data, DefaultOAuthScopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client secrets file: %w", err)
	}

	cfg := &ClientConfig{
		ClientID:     conf.ClientID,
		ClientSecret: conf.ClientSecret,
		RedirectURL:  conf.RedirectURL,
		AuthURL:      conf.Endpoint.AuthURL,
		TokenURL:     conf.Endpoint.TokenURL,
		Scopes:       conf.Scopes,
	}
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	return cfg, nil
}

// Validate checks that the client can talk to a token endpoint.
func (c *ClientConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("client config is nil")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client secret is required")
	}
	return nil
}

// OAuth2Config converts c to an oauth2.Config, filling in Google defaults.
func (c *ClientConfig) OAuth2Config() *oauth2.Config {
	endpoint := google.Endpoint
	if c.AuthURL != "" {
		endpoint.AuthURL = c.AuthURL
	}
	if c.TokenURL != "" {
		endpoint.TokenURL = c.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = DefaultOAuthScopes
	}

	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  c.RedirectURL,
		Scopes:       append([]string(nil), scopes...),
	}
}

func (c *ClientConfig) revokeURL() string {
	if c.RevokeURL != "" {
		return c.RevokeURL
	}
	return DefaultRevokeURL
}
