package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// UserFlowConfig configures the authorization-code flow.
type UserFlowConfig struct {
	ClientID string

	// RedirectURI must be registered with the application and point at a
	// loopback address, e.g. http://127.0.0.1:8888/callback.
	RedirectURI string

	// Scopes requested from the user.
	Scopes []string

	// TokenFile caches the granted token between runs.
	TokenFile string

	// Endpoint overrides the Spotify OAuth2 endpoints (tests).
	Endpoint oauth2.Endpoint

	// OpenURL presents the authorization URL to the user. Defaults to
	// logging the URL for the user to open manually.
	OpenURL func(url string) error
}

// UserClient returns an HTTP client authorized by the user. A valid cached
// token is reused; otherwise the browser flow runs and the granted token is
// written to the token file. Refreshed tokens are persisted as they appear.
func UserClient(ctx context.Context, cfg UserFlowConfig) (*http.Client, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("redirect URI is required")
	}
	if cfg.TokenFile == "" {
		return nil, fmt.Errorf("token file path is required")
	}

	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = Endpoint
	}

	oauthCfg := &oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: cfg.RedirectURI,
		Scopes:      cfg.Scopes,
		Endpoint:    endpoint,
	}

	openURL := cfg.OpenURL
	if openURL == nil {
		openURL = func(url string) error {
			log.Info().Str("url", url).Msg("Open this URL in a browser to authorize")
			return nil
		}
	}

	token, err := LoadToken(cfg.TokenFile)
	if err != nil {
		log.Debug().Err(err).Str("path", cfg.TokenFile).Msg("No usable cached token")
		token, err = runBrowserFlow(ctx, oauthCfg, openURL)
		if err != nil {
			return nil, err
		}
		if err := SaveToken(cfg.TokenFile, token); err != nil {
			return nil, err
		}
	}

	src := newPersistingTokenSource(cfg.TokenFile, oauthCfg.TokenSource(ctx, token), token)
	return oauth2.NewClient(ctx, src), nil
}

// runBrowserFlow performs the authorization-code grant with PKCE, serving
// the callback on the loopback address of the redirect URI.
func runBrowserFlow(ctx context.Context, cfg *oauth2.Config, openURL func(string) error) (*oauth2.Token, error) {
	redirect, err := url.Parse(cfg.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("parse redirect URI: %w", err)
	}

	state, err := randomState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()

	authURL := cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	type callbackResult struct {
		code string
		err  error
	}
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			results <- callbackResult{err: fmt.Errorf("authorization state mismatch")}
			return
		}
		if errCode := query.Get("error"); errCode != "" {
			http.Error(w, "authorization denied", http.StatusForbidden)
			results <- callbackResult{err: fmt.Errorf("authorization denied: %s", errCode)}
			return
		}
		fmt.Fprintln(w, "Authorization complete. You can close this window.")
		results <- callbackResult{code: query.Get("code")}
	})

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", redirect.Host, err)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go server.Serve(listener)
	defer server.Close()

	if err := openURL(authURL); err != nil {
		return nil, fmt.Errorf("present authorization URL: %w", err)
	}

	select {
	case result := <-results:
		if result.err != nil {
			return nil, result.err
		}
		token, err := cfg.Exchange(ctx, result.code, oauth2.VerifierOption(verifier))
		if err != nil {
			return nil, fmt.Errorf("exchange authorization code: %w", err)
		}
		return token, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
