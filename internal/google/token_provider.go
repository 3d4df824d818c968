package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/teemow/inboxbuckets/internal/inbox"
	"github.com/teemow/inboxbuckets/internal/instrumentation"
	"github.com/teemow/inboxbuckets/internal/logging"
	"github.com/teemow/inboxbuckets/internal/store"
)

// TokenStore is the token persistence a StoreTokenProvider needs.
type TokenStore interface {
	Token(ctx context.Context, userID string) (store.Token, error)
	SaveToken(ctx context.Context, userID string, tok store.Token) error
	DeleteToken(ctx context.Context, userID string) error
}

// TokenProvider supplies Google credentials for a user.
type TokenProvider interface {
	// TokenSource returns a source for userID or inbox.ErrNotConnected.
	TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error)
	// Forget removes the user's stored credentials.
	Forget(ctx context.Context, userID string) error
}

// StoreTokenProvider reads tokens from a TokenStore and persists refreshes.
type StoreTokenProvider struct {
	conf    *oauth2.Config
	store   TokenStore
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewStoreTokenProvider creates a provider refreshing tokens with conf.
func NewStoreTokenProvider(conf *oauth2.Config, ts TokenStore, logger *slog.Logger, metrics *instrumentation.Metrics) *StoreTokenProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreTokenProvider{conf: conf, store: ts, logger: logger, metrics: metrics}
}

// TokenSource implements TokenProvider.
func (p *StoreTokenProvider) TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error) {
	stored, err := p.store.Token(ctx, userID)
	if errors.Is(err, store.ErrTokenNotFound) {
		return nil, inbox.ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("load google token: %w", err)
	}

	tok := FromStoreToken(stored)
	// The refresh request outlives the call that created the source.
	base := p.conf.TokenSource(context.WithoutCancel(ctx), tok)
	return &persistingTokenSource{
		provider: p,
		userID:   userID,
		base:     base,
		last:     tok.AccessToken,
	}, nil
}

// Forget implements TokenProvider.
func (p *StoreTokenProvider) Forget(ctx context.Context, userID string) error {
	return p.store.DeleteToken(ctx, userID)
}

// persistingTokenSource writes a token back to the store whenever the
// underlying source hands out a new access token.
type persistingTokenSource struct {
	provider *StoreTokenProvider
	userID   string
	base     oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		s.provider.metrics.RecordOAuthTokenRefresh(context.Background(), instrumentation.OAuthResultFailure)
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
			return nil, fmt.Errorf("%w: %v", inbox.ErrAuthExpired, err)
		}
		return nil, fmt.Errorf("refresh google token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken == s.last {
		return tok, nil
	}
	s.last = tok.AccessToken

	s.provider.metrics.RecordOAuthTokenRefresh(context.Background(), instrumentation.OAuthResultSuccess)
	if err := s.provider.store.SaveToken(context.Background(), s.userID, ToStoreToken(tok)); err != nil {
		// The refreshed token is still usable for this process.
		s.provider.logger.Warn("failed to persist refreshed google token",
			logging.UserHash(s.userID), logging.Err(err))
	}
	return tok, nil
}

// ToStoreToken converts an oauth2 token for persistence.
func ToStoreToken(tok *oauth2.Token) store.Token {
	st := store.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		st.Scope = scope
	}
	return st
}

// FromStoreToken converts a stored token for use with oauth2.
func FromStoreToken(st store.Token) *oauth2.Token {
	tokenType := st.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  st.AccessToken,
		RefreshToken: st.RefreshToken,
		TokenType:    tokenType,
		Expiry:       st.Expiry,
	}
}
