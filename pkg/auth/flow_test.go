package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// freeLoopbackAddr reserves a loopback port for the callback server.
func freeLoopbackAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

// newTokenEndpoint serves the token exchange and records the last request.
func newTokenEndpoint(t *testing.T) (*httptest.Server, *url.Values) {
	t.Helper()
	var lastForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		lastForm = r.Form
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"user-access","token_type":"Bearer","refresh_token":"user-refresh","expires_in":3600}`)
	}))
	t.Cleanup(server.Close)
	return server, &lastForm
}

// callbackDriver simulates the user's browser: it follows the authorization
// URL's state back to the loopback callback with the given query suffix.
func callbackDriver(t *testing.T, query string) func(string) error {
	t.Helper()
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		redirect := u.Query().Get("redirect_uri")
		state := u.Query().Get("state")

		resp, err := http.Get(redirect + "?state=" + url.QueryEscape(state) + query)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
}

func TestUserClient_BrowserFlow(t *testing.T) {
	provider, lastForm := newTokenEndpoint(t)
	tokenFile := filepath.Join(t.TempDir(), "token.json")

	var authURL string
	drive := callbackDriver(t, "&code=test-code")

	client, err := UserClient(context.Background(), UserFlowConfig{
		ClientID:    "test-client",
		RedirectURI: "http://" + freeLoopbackAddr(t) + "/callback",
		Scopes:      []string{"user-read-recently-played"},
		TokenFile:   tokenFile,
		Endpoint: oauth2.Endpoint{
			AuthURL:  provider.URL + "/authorize",
			TokenURL: provider.URL + "/token",
		},
		OpenURL: func(u string) error {
			authURL = u
			return drive(u)
		},
	})
	if err != nil {
		t.Fatalf("UserClient() error = %v", err)
	}
	if client == nil {
		t.Fatal("UserClient() returned nil client")
	}

	// The authorization URL carries the PKCE challenge and requested scope.
	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("Parse(authURL) error = %v", err)
	}
	if parsed.Query().Get("code_challenge") == "" {
		t.Error("Authorization URL should carry a PKCE code challenge")
	}
	if !strings.Contains(parsed.Query().Get("scope"), "user-read-recently-played") {
		t.Errorf("scope = %q, want user-read-recently-played", parsed.Query().Get("scope"))
	}

	// The exchange sent the callback code and the matching PKCE verifier.
	if got := lastForm.Get("code"); got != "test-code" {
		t.Errorf("Exchanged code = %q, want test-code", got)
	}
	if lastForm.Get("code_verifier") == "" {
		t.Error("Exchange should carry the PKCE code verifier")
	}

	// The granted token is cached for later runs.
	saved, err := LoadToken(tokenFile)
	if err != nil {
		t.Fatalf("LoadToken() error = %v", err)
	}
	if saved.AccessToken != "user-access" || saved.RefreshToken != "user-refresh" {
		t.Errorf("Saved token = %+v", saved)
	}
}

func TestUserClient_ReusesCachedToken(t *testing.T) {
	provider, _ := newTokenEndpoint(t)
	tokenFile := filepath.Join(t.TempDir(), "token.json")

	cached := &oauth2.Token{
		AccessToken:  "cached-access",
		RefreshToken: "cached-refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}
	if err := SaveToken(tokenFile, cached); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}

	client, err := UserClient(context.Background(), UserFlowConfig{
		ClientID:    "test-client",
		RedirectURI: "http://" + freeLoopbackAddr(t) + "/callback",
		TokenFile:   tokenFile,
		Endpoint: oauth2.Endpoint{
			AuthURL:  provider.URL + "/authorize",
			TokenURL: provider.URL + "/token",
		},
		OpenURL: func(string) error {
			t.Error("Browser flow must not run with a valid cached token")
			return nil
		},
	})
	if err != nil {
		t.Fatalf("UserClient() error = %v", err)
	}
	if client == nil {
		t.Fatal("UserClient() returned nil client")
	}
}

func TestUserClient_AuthorizationDenied(t *testing.T) {
	provider, _ := newTokenEndpoint(t)
	tokenFile := filepath.Join(t.TempDir(), "token.json")

	_, err := UserClient(context.Background(), UserFlowConfig{
		ClientID:    "test-client",
		RedirectURI: "http://" + freeLoopbackAddr(t) + "/callback",
		TokenFile:   tokenFile,
		Endpoint: oauth2.Endpoint{
			AuthURL:  provider.URL + "/authorize",
			TokenURL: provider.URL + "/token",
		},
		OpenURL: callbackDriver(t, "&error=access_denied"),
	})
	if err == nil {
		t.Fatal("Expected error when the user denies authorization")
	}
	if !strings.Contains(err.Error(), "authorization denied") {
		t.Errorf("Error = %v, want authorization denied", err)
	}
	if _, statErr := os.Stat(tokenFile); !os.IsNotExist(statErr) {
		t.Error("No token should be saved when authorization is denied")
	}
}

func TestUserClient_CancelledWhileWaiting(t *testing.T) {
	provider, _ := newTokenEndpoint(t)
	tokenFile := filepath.Join(t.TempDir(), "token.json")

	ctx, cancel := context.WithCancel(context.Background())

	_, err := UserClient(ctx, UserFlowConfig{
		ClientID:    "test-client",
		RedirectURI: "http://" + freeLoopbackAddr(t) + "/callback",
		TokenFile:   tokenFile,
		Endpoint: oauth2.Endpoint{
			AuthURL:  provider.URL + "/authorize",
			TokenURL: provider.URL + "/token",
		},
		OpenURL: func(string) error {
			// The user never completes the flow.
			cancel()
			return nil
		},
	})
	if err == nil {
		t.Fatal("Expected error when the context is cancelled")
	}
}
