// Package credentials provides read-only access to per-platform tokens.
// Tokens are written by the OAuth flow elsewhere in the host system; the
// pipeline only ever reads the newest one for a platform.
package credentials

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/blkoutuk/comms-pipeline/internal/domain"
	"github.com/blkoutuk/comms-pipeline/internal/pkg/logger"
)

// ErrNoToken signals expected absence: nothing stored for the platform, or
// the stored token has expired. Callers treat both the same way and must
// not confuse this with a storage failure, which is returned wrapped.
var ErrNoToken = errors.New("no usable token for platform")

// Token is a platform access token with its account binding.
type Token struct {
	AccessToken string    `json:"access_token"`
	AccountID   string    `json:"account_id"`
	Expiry      time.Time `json:"expiry"` // zero means non-expiring
}

// Valid reports whether the token exists and has not expired as of now.
func (t *Token) Valid(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return t.Expiry.IsZero() || t.Expiry.After(now)
}

// OAuth2 converts to the x/oauth2 representation for callers that hand the
// token to a standard transport.
func (t *Token) OAuth2() *oauth2.Token {
	return &oauth2.Token{AccessToken: t.AccessToken, Expiry: t.Expiry}
}

const cacheTTL = 2 * time.Minute

// Store reads platform tokens from PostgreSQL with an optional Redis
// read-through cache. Cache errors degrade to direct DB reads; they never
// fail a lookup.
type Store struct {
	db    *sql.DB
	cache *redis.Client // optional
	now   func() time.Time
}

// NewStore creates a credential store. cache may be nil.
func NewStore(db *sql.DB, cache *redis.Client) *Store {
	return &Store{db: db, cache: cache, now: time.Now}
}

// GetToken returns the newest usable token for the platform.
// Returns ErrNoToken when none is stored or the stored expiry has passed;
// expired is treated as absent so dispatchers never burn a rate-limited
// call that is certain to fail.
func (s *Store) GetToken(ctx context.Context, platform domain.Platform) (*Token, error) {
	if tok := s.cached(ctx, platform); tok != nil {
		if !tok.Valid(s.now()) {
			return nil, ErrNoToken
		}
		return tok, nil
	}

	tok := &Token{}
	var expiry sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT access_token, COALESCE(account_id, ''), expires_at
		FROM platform_credentials
		WHERE platform = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, string(platform)).Scan(&tok.AccessToken, &tok.AccountID, &expiry)
	if err == sql.ErrNoRows {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("credentials: query token for %s: %w", platform, err)
	}
	if expiry.Valid {
		tok.Expiry = expiry.Time
	}

	s.store(ctx, platform, tok)

	if !tok.Valid(s.now()) {
		return nil, ErrNoToken
	}
	return tok, nil
}

func cacheKey(platform domain.Platform) string {
	return "credentials:token:" + string(platform)
}

func (s *Store) cached(ctx context.Context, platform domain.Platform) *Token {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, cacheKey(platform)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("credential cache read failed", "platform", platform, "error", err)
		}
		return nil
	}
	tok := &Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil
	}
	return tok
}

func (s *Store) store(ctx context.Context, platform domain.Platform, tok *Token) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(platform), data, cacheTTL).Err(); err != nil {
		logger.Warn("credential cache write failed", "platform", platform, "error", err)
	}
}
