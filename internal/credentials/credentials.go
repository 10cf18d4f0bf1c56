// Package credentials provides access tokens for source adapters.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// DefaultRefreshWindow refreshes tokens this close to expiry.
const DefaultRefreshWindow = 5 * time.Minute

// TokenStore persists the OAuth connection of each project.
type TokenStore interface {
	LoadToken(ctx context.Context, projectID string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, projectID string, tok *oauth2.Token) error
}

// OAuthOptions configures an OAuthProvider.
type OAuthOptions struct {
	ClientID      string
	ClientSecret  string
	TokenURL      string
	RefreshWindow time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
}

// OAuthProvider returns stored access tokens, refreshing them with the
// project's refresh token when they are about to expire.
type OAuthProvider struct {
	store  TokenStore
	config *oauth2.Config
	window time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu sync.Mutex // serializes refreshes
}

// NewOAuthProvider creates a provider over store.
func NewOAuthProvider(store TokenStore, opts OAuthOptions) *OAuthProvider {
	if opts.RefreshWindow <= 0 {
		opts.RefreshWindow = DefaultRefreshWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &OAuthProvider{
		store: store,
		config: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		window: opts.RefreshWindow,
		now:    opts.Now,
		logger: opts.Logger,
	}
}

// GetValidAccessToken implements core.CredentialProvider.
func (p *OAuthProvider) GetValidAccessToken(ctx context.Context, projectID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tok, err := p.store.LoadToken(ctx, projectID)
	if err != nil {
		return "", &core.AuthError{ProjectID: projectID, Err: err}
	}
	if p.fresh(tok) {
		return tok.AccessToken, nil
	}
	if tok.RefreshToken == "" {
		return "", &core.AuthError{ProjectID: projectID, Err: errors.New("access token expired and no refresh token is stored")}
	}

	// A token without an access token forces the source to refresh.
	refreshed, err := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	if err != nil {
		return "", &core.AuthError{ProjectID: projectID, Err: fmt.Errorf("refresh token: %w", err)}
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = tok.RefreshToken
	}

	if err := p.store.SaveToken(ctx, projectID, refreshed); err != nil {
		p.logger.Warn("failed to persist refreshed token", "project_id", projectID, "error", err)
	}
	p.logger.Debug("access token refreshed", "project_id", projectID, "expiry", refreshed.Expiry)
	return refreshed.AccessToken, nil
}

func (p *OAuthProvider) fresh(tok *oauth2.Token) bool {
	if tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return tok.Expiry.After(p.now().Add(p.window))
}

// StaticProvider hands out one fixed token for every project.
type StaticProvider struct {
	Token string
}

// GetValidAccessToken implements core.CredentialProvider.
func (s StaticProvider) GetValidAccessToken(context.Context, string) (string, error) {
	return s.Token, nil
}
