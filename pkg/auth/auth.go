// Package auth produces authenticated HTTP clients for the Spotify Web API.
//
// Two OAuth2 flows are supported: client credentials for server-side use
// without user context, and authorization code with PKCE for endpoints that
// require a user grant. Tokens from the user flow are cached on disk and
// refreshed transparently.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Spotify OAuth2 endpoints.
const (
	AuthURL  = "https://accounts.spotify.com/authorize"
	TokenURL = "https://accounts.spotify.com/api/token"
)

// Endpoint is the Spotify OAuth2 endpoint pair.
var Endpoint = oauth2.Endpoint{
	AuthURL:  AuthURL,
	TokenURL: TokenURL,
}

// ClientCredentials returns an HTTP client that authenticates with the
// client-credentials grant. The underlying token source refreshes expired
// tokens automatically.
func ClientCredentials(ctx context.Context, clientID, clientSecret string) (*http.Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("client ID and secret are required")
	}

	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     TokenURL,
	}

	// Fetch one token eagerly so credential mistakes surface at startup
	// instead of on the first batch.
	if _, err := cfg.Token(ctx); err != nil {
		return nil, fmt.Errorf("obtain token: %w", err)
	}

	return cfg.Client(ctx), nil
}
