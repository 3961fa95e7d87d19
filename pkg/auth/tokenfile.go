package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

// LoadToken reads a cached OAuth2 token from path.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return &token, nil
}

// SaveToken writes the token to path with owner-only permissions.
func SaveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// persistingTokenSource wraps a token source and writes every refreshed
// token back to disk so later runs skip the browser flow.
type persistingTokenSource struct {
	path string
	src  oauth2.TokenSource

	mu   sync.Mutex
	last *oauth2.Token
}

func newPersistingTokenSource(path string, src oauth2.TokenSource, initial *oauth2.Token) *persistingTokenSource {
	return &persistingTokenSource{path: path, src: src, last: initial}
}

// Token implements oauth2.TokenSource.
func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil || token.AccessToken != p.last.AccessToken {
		if err := SaveToken(p.path, token); err != nil {
			return nil, fmt.Errorf("persist refreshed token: %w", err)
		}
		p.last = token
	}
	return token, nil
}
