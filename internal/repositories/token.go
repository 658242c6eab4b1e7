package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/iasync/internal/shared"
	"golang.org/x/oauth2"
)

// TokenRepository persists the single OAuth token used for YouTube Data API calls.
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new [TokenRepository] with the given database connection
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Load returns the stored token or [shared.ErrNotAuthenticated].
func (r *TokenRepository) Load(ctx context.Context) (*oauth2.Token, error) {
	var (
		access, refresh, tokenType string
		expiry                     int64
	)
	query := `SELECT access_token, refresh_token, token_type, expiry FROM oauth_tokens WHERE id = 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&access, &refresh, &tokenType, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: tokenType}
	if expiry > 0 {
		tok.Expiry = time.Unix(expiry, 0)
	}
	return tok, nil
}

// Save upserts tok. An empty refresh token keeps the stored one, since refresh responses usually omit it.
func (r *TokenRepository) Save(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", shared.ErrInvalidArgument)
	}

	var expiry int64
	if !tok.Expiry.IsZero() {
		expiry = tok.Expiry.Unix()
	}
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	query := `
		INSERT INTO oauth_tokens (id, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token = '' THEN oauth_tokens.refresh_token ELSE excluded.refresh_token END,
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, tok.AccessToken, tok.RefreshToken, tokenType, expiry, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// TokenSource returns an [oauth2.TokenSource] seeded from the store that writes refreshed tokens back.
func (r *TokenRepository) TokenSource(ctx context.Context, conf *oauth2.Config) (oauth2.TokenSource, error) {
	tok, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken == "" && !tok.Valid() {
		return nil, shared.ErrNoRefreshToken
	}

	return &persistingSource{
		base:  conf.TokenSource(context.WithoutCancel(ctx), tok),
		repo:  r,
		last:  tok.AccessToken,
		saveC: context.WithoutCancel(ctx),
	}, nil
}

type persistingSource struct {
	mu    sync.Mutex
	base  oauth2.TokenSource
	repo  *TokenRepository
	last  string
	saveC context.Context
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.repo.Save(s.saveC, tok); err != nil {
			return nil, err
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}
