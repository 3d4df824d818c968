package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrTokenNotFound is returned when a user has no stored Google token.
var ErrTokenNotFound = errors.New("token not found")

// Token is a stored Google OAuth token.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	// Expiry is zero when the token does not expire.
	Expiry time.Time
}

// SaveToken stores a token for userID. Empty optional fields keep their
// previous values, so a refresh response without a refresh token does not
// erase the one obtained at consent.
func (s *Store) SaveToken(ctx context.Context, userID string, tok Token) error {
	if userID == "" || tok.AccessToken == "" {
		return fmt.Errorf("invalid token inputs")
	}

	access, err := s.cipher.seal(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := s.cipher.seal(tok.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	var expiresAt int64
	if !tok.Expiry.IsZero() {
		expiresAt = tok.Expiry.UnixMilli()
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO oauth_tokens(user_id, access_token, refresh_token, token_type, scope, expires_at, updated_at)
VALUES(?,?,?,?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET
  access_token=excluded.access_token,
  refresh_token=CASE WHEN excluded.refresh_token != '' THEN excluded.refresh_token ELSE oauth_tokens.refresh_token END,
  token_type=CASE WHEN excluded.token_type != '' THEN excluded.token_type ELSE oauth_tokens.token_type END,
  scope=CASE WHEN excluded.scope != '' THEN excluded.scope ELSE oauth_tokens.scope END,
  expires_at=CASE WHEN excluded.expires_at != 0 THEN excluded.expires_at ELSE oauth_tokens.expires_at END,
  updated_at=excluded.updated_at;
`, userID, access, refresh, tok.TokenType, tok.Scope, expiresAt, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Token returns the stored token for userID or ErrTokenNotFound.
func (s *Store) Token(ctx context.Context, userID string) (Token, error) {
	var (
		tok       Token
		access    string
		refresh   string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT access_token, refresh_token, token_type, scope, expires_at
FROM oauth_tokens WHERE user_id=?`, userID).Scan(&access, &refresh, &tok.TokenType, &tok.Scope, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, ErrTokenNotFound
	}
	if err != nil {
		return Token{}, fmt.Errorf("load token: %w", err)
	}

	if tok.AccessToken, err = s.cipher.open(access); err != nil {
		return Token{}, fmt.Errorf("open access token: %w", err)
	}
	if tok.RefreshToken, err = s.cipher.open(refresh); err != nil {
		return Token{}, fmt.Errorf("open refresh token: %w", err)
	}
	if expiresAt != 0 {
		tok.Expiry = time.UnixMilli(expiresAt)
	}
	return tok, nil
}

// DeleteToken removes the user's token. Deleting a missing token is not an error.
func (s *Store) DeleteToken(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE user_id=?`, userID); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
