package repositories

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/iasync/internal/shared"
)

// Scope partitions cache entries so they can be cleared independently.
type Scope string

const (
	ScopeYouTube  Scope = "youtube"
	ScopeMetadata Scope = "metadata"
	ScopeAll      Scope = "all"
)

// DefaultTTL is the age after which an entry reads as a miss.
const DefaultTTL = 30 * 24 * time.Hour

// ParseScope validates a scope name supplied by a caller.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeYouTube, ScopeMetadata, ScopeAll:
		return Scope(s), nil
	case "":
		return ScopeAll, nil
	default:
		return "", fmt.Errorf("%w: unknown cache scope %q (want youtube, metadata or all)", shared.ErrInvalidArgument, s)
	}
}

// CacheKey hashes scope and params into a stable key.
//
// Every dimension that changes the cached answer must be present in params, identifiers included,
// or two different lookups will share an entry.
func CacheKey(scope Scope, params map[string]string) string {
	canonical := make(map[string]string, len(params)+1)
	for k, v := range params {
		canonical[k] = v
	}
	canonical["_scope"] = string(scope)

	// encoding/json writes map keys in sorted order
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CacheStats counts live entries per scope.
type CacheStats struct {
	Scopes map[Scope]int64 `json:"scopes"`
	Total  int64           `json:"total"`
	Stale  int64           `json:"stale"`
}

// CacheRepository is a TTL key-value store backed by the cache_entries table.
//
// Staleness is checked when reading. Rows past their TTL stay on disk until [CacheRepository.Sweep].
type CacheRepository struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewCacheRepository creates a [CacheRepository]; a non-positive ttl uses [DefaultTTL].
func NewCacheRepository(db *sql.DB, ttl time.Duration) *CacheRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CacheRepository{db: db, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source.
func (r *CacheRepository) WithClock(now func() time.Time) *CacheRepository {
	r.now = now
	return r
}

// TTL returns the configured lifetime.
func (r *CacheRepository) TTL() time.Duration {
	return r.ttl
}

// Get decodes the payload stored under key into dst.
//
// It reports false when the key is absent or older than the TTL.
func (r *CacheRepository) Get(ctx context.Context, key string, dst any) (bool, error) {
	var (
		payload   string
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT payload, created_at FROM cache_entries WHERE key = ?`, key).Scan(&payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if r.now().Sub(time.UnixMilli(createdAt)) >= r.ttl {
		return false, nil
	}

	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		return false, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return true, nil
}

// Put stores payload under key, replacing any previous value and resetting its age.
func (r *CacheRepository) Put(ctx context.Context, scope Scope, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	query := `
		INSERT INTO cache_entries (key, scope, payload, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET scope = excluded.scope, payload = excluded.payload, created_at = excluded.created_at
	`
	if _, err := r.db.ExecContext(ctx, query, key, string(scope), string(data), r.now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete removes a single entry.
func (r *CacheRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Sweep deletes every row older than the TTL and returns how many were removed.
func (r *CacheRepository) Sweep(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.ttl).UnixMilli()
	res, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE created_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep cache: %w", err)
	}
	return res.RowsAffected()
}

// Clear deletes all entries in scope, or every entry for [ScopeAll].
func (r *CacheRepository) Clear(ctx context.Context, scope Scope) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if scope == ScopeAll {
		res, err = r.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	} else {
		res, err = r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE scope = ?`, string(scope))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	return res.RowsAffected()
}

// Stats counts live entries per scope plus rows waiting for a sweep.
func (r *CacheRepository) Stats(ctx context.Context) (*CacheStats, error) {
	cutoff := r.now().Add(-r.ttl).UnixMilli()
	query := `
		SELECT scope, SUM(CASE WHEN created_at > ? THEN 1 ELSE 0 END), SUM(CASE WHEN created_at <= ? THEN 1 ELSE 0 END)
		FROM cache_entries
		GROUP BY scope
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache stats: %w", err)
	}
	defer rows.Close()

	stats := &CacheStats{Scopes: map[Scope]int64{ScopeYouTube: 0, ScopeMetadata: 0}}
	for rows.Next() {
		var (
			scope       string
			live, stale int64
		)
		if err := rows.Scan(&scope, &live, &stale); err != nil {
			return nil, fmt.Errorf("failed to scan cache stats: %w", err)
		}
		stats.Scopes[Scope(scope)] = live
		stats.Total += live
		stats.Stale += stale
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache stats: %w", err)
	}
	return stats, nil
}
