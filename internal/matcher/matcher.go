// Package matcher links archive titles to videos on a YouTube channel.
//
// A lookup parses the title, searches from the most to the least specific query and accepts the
// first candidate scoring at least [AcceptScore]. Every search is charged against a daily quota
// before it is sent. Results, including confirmed misses, are cached; errors never are.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
	_ "time/tzdata"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/iasync/internal/models"
	"github.com/desertthunder/iasync/internal/repositories"
	"github.com/desertthunder/iasync/internal/shared"
	"github.com/desertthunder/iasync/internal/titles"
	"golang.org/x/sync/singleflight"
)

// Searcher runs one billed search against a channel.
type Searcher interface {
	Search(ctx context.Context, query, channelID string) ([]models.Candidate, error)
}

// Cache stores lookup results.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Put(ctx context.Context, scope repositories.Scope, key string, payload any) error
}

// Ledger tracks daily quota units.
type Ledger interface {
	Consume(ctx context.Context, day string, cost, limit int) (int, error)
	Used(ctx context.Context, day string) (int, error)
	Exhausted(ctx context.Context, day string) (bool, error)
	Exhaust(ctx context.Context, day string) error
}

// YouTube resets search quota at midnight Pacific time.
var quotaZone = func() *time.Location {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		return time.FixedZone("PT", -8*60*60)
	}
	return loc
}()

// Day returns the quota day containing t.
func Day(t time.Time) string {
	return t.In(quotaZone).Format(time.DateOnly)
}

// NextReset returns the next quota reset after t.
func NextReset(t time.Time) time.Time {
	local := t.In(quotaZone)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, quotaZone)
}

// Options configures a [Matcher].
type Options struct {
	Searcher   Searcher // nil disables matching
	Cache      Cache
	Quota      Ledger
	ChannelID  string
	DailyQuota int
	SearchCost int
	Logger     *log.Logger
	Now        func() time.Time
}

// Matcher performs cached, quota-gated video lookups.
type Matcher struct {
	searcher Searcher
	cache    Cache
	quota    Ledger
	channel  string
	limit    int
	cost     int
	logger   *log.Logger
	now      func() time.Time
	group    singleflight.Group
}

// New creates a [Matcher]. DailyQuota defaults to 10000 and SearchCost to 100.
func New(opts Options) *Matcher {
	if opts.DailyQuota <= 0 {
		opts.DailyQuota = 10000
	}
	if opts.SearchCost <= 0 {
		opts.SearchCost = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Matcher{
		searcher: opts.Searcher,
		cache:    opts.Cache,
		quota:    opts.Quota,
		channel:  opts.ChannelID,
		limit:    opts.DailyQuota,
		cost:     opts.SearchCost,
		logger:   shared.ComponentLogger(opts.Logger, "matcher"),
		now:      opts.Now,
	}
}

// Enabled reports whether a searcher and channel are configured.
func (m *Matcher) Enabled() bool {
	return m.searcher != nil && m.channel != ""
}

func (m *Matcher) cacheKey(req models.MatchRequest) string {
	return repositories.CacheKey(repositories.ScopeYouTube, map[string]string{
		"kind":       "match",
		"title":      req.Title,
		"date":       req.Date,
		"channel":    m.channel,
		"identifier": req.Identifier,
	})
}

// Lookup finds the video for req.Title. A nil result with a nil error means no match.
//
// Quota exhaustion surfaces as [shared.ErrQuotaExceeded]; neither it nor any other error is cached.
func (m *Matcher) Lookup(ctx context.Context, req models.MatchRequest) (*models.MatchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !m.Enabled() {
		return nil, nil
	}

	key := m.cacheKey(req)
	if !req.Force {
		var cached models.CachedMatch
		ok, err := m.cache.Get(ctx, key, &cached)
		if err != nil {
			m.logger.Warn("cache read failed", "title", req.Title, "error", err)
		} else if ok {
			m.logger.Debug("cache hit", "title", req.Title, "matched", cached.Match != nil)
			return cached.Match, nil
		}
	}

	// The shared search outlives any single caller; each caller still stops waiting on its own ctx.
	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		return m.search(detached, req, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			m.logger.Debug("joined in-flight lookup", "title", req.Title)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.MatchResult), nil
	}
}

type hit struct {
	candidate models.Candidate
	query     string
	score     int
}

func (m *Matcher) search(ctx context.Context, req models.MatchRequest, key string) (*models.MatchResult, error) {
	day := Day(m.now())
	used, err := m.quota.Used(ctx, day)
	if err != nil {
		return nil, err
	}
	exhausted, err := m.quota.Exhausted(ctx, day)
	if err != nil {
		return nil, err
	}
	if exhausted {
		return nil, fmt.Errorf("%w: provider reported the quota exhausted, resets %s", shared.ErrQuotaExceeded, NextReset(m.now()).Format(time.RFC3339))
	}
	if m.limit-used < m.cost {
		return nil, fmt.Errorf("%w: %d of %d units used, resets %s", shared.ErrQuotaExceeded, used, m.limit, NextReset(m.now()).Format(time.RFC3339))
	}

	target := NewTarget(req.Title, req.Date)
	queries := Queries(target, req.Title)
	m.logger.Debug("searching", "title", req.Title, "band", target.Band, "venue", target.Venue, "date", target.Date, "queries", len(queries))

	var (
		fallback *hit
		accepted *hit
		issued   []string
	)
	for _, q := range queries {
		if _, err := m.quota.Consume(ctx, day, m.cost, m.limit); err != nil {
			return nil, err
		}
		issued = append(issued, q)

		candidates, err := m.searcher.Search(ctx, q, m.channel)
		if err != nil {
			if errors.Is(err, shared.ErrQuotaExceeded) {
				if xerr := m.quota.Exhaust(ctx, day); xerr != nil {
					m.logger.Warn("failed to record exhausted quota", "error", xerr)
				}
			}
			return nil, err
		}

		for _, c := range candidates {
			score := Score(c, target)
			if fallback == nil {
				fallback = &hit{candidate: c, query: q, score: score}
			}
			if score >= AcceptScore {
				accepted = &hit{candidate: c, query: q, score: score}
				break
			}
		}
		if accepted != nil {
			break
		}
	}

	var result *models.MatchResult
	switch {
	case accepted != nil:
		result = buildResult(*accepted, false)
	case fallback != nil:
		result = buildResult(*fallback, true)
	}

	entry := models.CachedMatch{Match: result, LookedUp: m.now(), QueryUsed: issued}
	if err := m.cache.Put(ctx, repositories.ScopeYouTube, key, entry); err != nil {
		m.logger.Warn("cache write failed", "title", req.Title, "error", err)
	}

	if result == nil {
		m.logger.Info("no match", "title", req.Title, "queries", len(issued))
	} else {
		m.logger.Info("matched", "title", req.Title, "video", result.VideoID, "score", result.Score, "fallback", result.Fallback)
	}
	return result, nil
}

func buildResult(h hit, fallback bool) *models.MatchResult {
	parsed := titles.Parse(h.candidate.Title)
	return &models.MatchResult{
		VideoID:     h.candidate.VideoID,
		Title:       h.candidate.Title,
		URL:         h.candidate.URL(),
		PublishedAt: h.candidate.PublishedAt,
		Band:        parsed.Band,
		Venue:       parsed.Venue,
		Date:        parsed.Date,
		Score:       h.score,
		Query:       h.query,
		Fallback:    fallback,
	}
}

// QuotaStatus reports today's usage.
func (m *Matcher) QuotaStatus(ctx context.Context) (*models.QuotaStatus, error) {
	now := m.now()
	day := Day(now)
	used, err := m.quota.Used(ctx, day)
	if err != nil {
		return nil, err
	}
	exhausted, err := m.quota.Exhausted(ctx, day)
	if err != nil {
		return nil, err
	}

	remaining := max(m.limit-used, 0)
	if exhausted {
		remaining = 0
	}
	pct := math.Round(float64(used)/float64(m.limit)*1000) / 10

	return &models.QuotaStatus{
		Day:        day,
		Used:       used,
		Limit:      m.limit,
		Remaining:  remaining,
		Exhausted:  exhausted,
		Percentage: pct,
		NextReset:  NextReset(now),
	}, nil
}
