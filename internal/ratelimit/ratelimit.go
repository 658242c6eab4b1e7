// Package ratelimit paces and retries calls to remote services.
//
// A [Pacer] enforces the minimum spacing between network calls. A [Caller] retries one call a bounded
// number of times, waiting a fixed delay between attempts and twice that delay when the failure
// looks like rate limiting.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/iasync/internal/shared"
	"golang.org/x/time/rate"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = 5 * time.Second
)

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with [Permanent].
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// IsRateLimited reports whether err signals throttling: HTTP 429 or 503, [shared.ErrRateLimited],
// or a message mentioning "rate limit" or "too many requests".
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, shared.ErrRateLimited) {
		return true
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code == 429 || code == 503 {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options configures a [Caller].
type Options struct {
	Attempts int           // total attempts including the first, default 3
	Delay    time.Duration // wait before each retry, default 5s
	Pacer    *Pacer        // optional spacing applied before every attempt
	Logger   *log.Logger
	Sleep    SleepFunc // replaced in tests
}

// Caller executes remote calls with bounded retries.
type Caller struct {
	attempts int
	delay    time.Duration
	pacer    *Pacer
	logger   *log.Logger
	sleep    SleepFunc
}

// NewCaller creates a [Caller], filling unset options with defaults.
func NewCaller(opts Options) *Caller {
	if opts.Attempts < 1 {
		opts.Attempts = DefaultAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}

	return &Caller{
		attempts: opts.Attempts,
		delay:    opts.Delay,
		pacer:    opts.Pacer,
		logger:   shared.ComponentLogger(opts.Logger, "ratelimit"),
		sleep:    opts.Sleep,
	}
}

// Backoff returns the wait before retrying after err.
func (c *Caller) Backoff(err error) time.Duration {
	if IsRateLimited(err) {
		return 2 * c.delay
	}
	return c.delay
}

// Do runs fn until it succeeds, returns a permanent error, or runs out of attempts.
//
// The last error is returned wrapped with name and the attempt count.
func (c *Caller) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var (
		lastErr error
		made    int
	)
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			wait := c.Backoff(lastErr)
			c.logger.Warn("retrying remote call", "call", name, "attempt", attempt, "wait", wait, "error", lastErr)
			if err := c.sleep(ctx, wait); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}

		if c.pacer != nil {
			if err := c.pacer.Wait(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}

		made = attempt
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) || ctx.Err() != nil {
			break
		}
	}
	if made == 1 {
		return fmt.Errorf("%s failed: %w", name, lastErr)
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, made, lastErr)
}

// Call is [Caller.Do] for functions that return a value.
func Call[T any](ctx context.Context, c *Caller, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := c.Do(ctx, name, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Pacer spaces out network calls so that at most one starts per interval.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a [Pacer]. A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next call may start.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
