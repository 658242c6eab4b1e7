package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/desertthunder/iasync/internal/repositories"
	"github.com/urfave/cli/v3"
)

// CacheClear deletes cached entries in one scope.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	scope, err := repositories.ParseScope(cmd.String("scope"))
	if err != nil {
		return err
	}
	if err := r.init(ctx); err != nil {
		return err
	}

	n, err := r.cache.Clear(ctx, scope)
	if err != nil {
		return err
	}
	r.logger.Info("cache cleared", "scope", scope, "entries", n)
	return r.writePlain("✓ Cleared %d %s cache entries\n", n, scope)
}

// CacheStats prints entry counts per scope.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	stats, err := r.cache.Stats(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(stats, true)
	}

	scopes := make([]string, 0, len(stats.Scopes))
	for s := range stats.Scopes {
		scopes = append(scopes, string(s))
	}
	sort.Strings(scopes)

	r.writePlainHeader(fmt.Sprintf("Cache (TTL %s)", r.cache.TTL()))
	for _, s := range scopes {
		r.writePlain("%-10s %d\n", s, stats.Scopes[repositories.Scope(s)])
	}
	r.writePlain("%-10s %d (%d stale)\n", "total", stats.Total, stats.Stale)
	return nil
}

// CacheSweep deletes entries past their TTL.
func (r *Runner) CacheSweep(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	n, err := r.cache.Sweep(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Removed %d stale cache entries\n", n)
}
