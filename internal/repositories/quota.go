package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/iasync/internal/shared"
)

// QuotaRepository tracks billed search units per day.
//
// Counters only grow and count exactly the units that were billed. A provider-side rejection is
// recorded as a separate exhausted flag. A day with no row has used nothing.
type QuotaRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewQuotaRepository creates a new [QuotaRepository] with the given database connection
func NewQuotaRepository(db *sql.DB) *QuotaRepository {
	return &QuotaRepository{db: db, now: time.Now}
}

func (r *QuotaRepository) ensureDay(ctx context.Context, day string) error {
	query := `INSERT INTO quota_usage (day, units, updated_at) VALUES (?, 0, ?) ON CONFLICT(day) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, day, r.now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to initialize quota day: %w", err)
	}
	return nil
}

// Consume adds cost to day's counter unless that would take it past limit or the day is exhausted.
//
// The check and the increment are one statement, so concurrent callers can never push the counter
// above limit. Returns the new total, or [shared.ErrQuotaExceeded] with the counter unchanged.
func (r *QuotaRepository) Consume(ctx context.Context, day string, cost, limit int) (int, error) {
	if err := r.ensureDay(ctx, day); err != nil {
		return 0, err
	}

	query := `
		UPDATE quota_usage SET units = units + ?, updated_at = ?
		WHERE day = ? AND exhausted = 0 AND units + ? <= ?
		RETURNING units
	`
	var used int
	err := r.db.QueryRowContext(ctx, query, cost, r.now().UnixMilli(), day, cost, limit).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %d units requested on %s", shared.ErrQuotaExceeded, cost, day)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to consume quota: %w", err)
	}
	return used, nil
}

// Used returns the units consumed on day.
func (r *QuotaRepository) Used(ctx context.Context, day string) (int, error) {
	var used int
	err := r.db.QueryRowContext(ctx, `SELECT units FROM quota_usage WHERE day = ?`, day).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read quota: %w", err)
	}
	return used, nil
}

// Exhausted reports whether the provider rejected a search on day.
func (r *QuotaRepository) Exhausted(ctx context.Context, day string) (bool, error) {
	var exhausted bool
	err := r.db.QueryRowContext(ctx, `SELECT exhausted FROM quota_usage WHERE day = ?`, day).Scan(&exhausted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read quota: %w", err)
	}
	return exhausted, nil
}

// Exhaust marks day as exhausted without touching its counter.
//
// Used when the provider reports the quota gone before the local counter agrees.
func (r *QuotaRepository) Exhaust(ctx context.Context, day string) error {
	if err := r.ensureDay(ctx, day); err != nil {
		return err
	}
	query := `UPDATE quota_usage SET exhausted = 1, updated_at = ? WHERE day = ?`
	if _, err := r.db.ExecContext(ctx, query, r.now().UnixMilli(), day); err != nil {
		return fmt.Errorf("failed to exhaust quota: %w", err)
	}
	return nil
}
