package tasks

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/iasync/internal/models"
	"github.com/desertthunder/iasync/internal/ratelimit"
	"github.com/desertthunder/iasync/internal/repositories"
	"github.com/desertthunder/iasync/internal/services"
	"github.com/desertthunder/iasync/internal/shared"
)

// Cache stores metadata snapshots and listings.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Put(ctx context.Context, scope repositories.Scope, key string, payload any) error
}

// Options configures an [Engine].
type Options struct {
	Archive services.Archive
	Cache   Cache             // nil disables caching
	Caller  *ratelimit.Caller // nil uses the defaults without pacing
	Logger  *log.Logger
	Now     func() time.Time
}

// Engine reconciles metadata updates against the archive, one network call at a time.
type Engine struct {
	archive services.Archive
	cache   Cache
	caller  *ratelimit.Caller
	logger  *log.Logger
	now     func() time.Time
}

// NewEngine creates an [Engine].
func NewEngine(opts Options) *Engine {
	if opts.Caller == nil {
		opts.Caller = ratelimit.NewCaller(ratelimit.Options{Logger: opts.Logger})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		archive: opts.Archive,
		cache:   opts.Cache,
		caller:  opts.Caller,
		logger:  shared.ComponentLogger(opts.Logger, "engine"),
		now:     opts.Now,
	}
}

func snapshotKey(identifier string) string {
	return repositories.CacheKey(repositories.ScopeMetadata, map[string]string{
		"kind":       "snapshot",
		"identifier": identifier,
	})
}

func listingKey(email string, rows int) string {
	return repositories.CacheKey(repositories.ScopeMetadata, map[string]string{
		"kind":  "listing",
		"email": email,
		"rows":  fmt.Sprint(rows),
	})
}

// retryable marks errors that another attempt cannot fix as permanent.
func retryable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrItemNotFound) || errors.Is(err, shared.ErrMissingCredentials) {
		return ratelimit.Permanent(err)
	}

	var sc ratelimit.StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return ratelimit.Permanent(err)
		}
	}
	return err
}

func (e *Engine) cacheGet(ctx context.Context, key string, dst any) bool {
	if e.cache == nil {
		return false
	}
	ok, err := e.cache.Get(ctx, key, dst)
	if err != nil {
		e.logger.Warn("cache read failed", "error", err)
		return false
	}
	return ok
}

func (e *Engine) cachePut(ctx context.Context, key string, payload any) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Put(ctx, repositories.ScopeMetadata, key, payload); err != nil {
		e.logger.Warn("cache write failed", "error", err)
	}
}

// ReadMetadata returns identifier's metadata, from the cache unless force is set.
func (e *Engine) ReadMetadata(ctx context.Context, identifier string, force bool) (models.Snapshot, error) {
	key := snapshotKey(identifier)
	if !force {
		var cached models.Snapshot
		if e.cacheGet(ctx, key, &cached) && cached != nil {
			e.logger.Debug("snapshot cache hit", "item", identifier)
			return cached, nil
		}
	}

	snap, err := ratelimit.Call(ctx, e.caller, "read "+identifier, func(ctx context.Context) (models.Snapshot, error) {
		snap, err := e.archive.ReadMetadata(ctx, identifier)
		return snap, retryable(err)
	})
	if err != nil {
		return nil, err
	}
	if len(snap) > 0 {
		e.cachePut(ctx, key, snap)
	}
	return snap, nil
}

// CurrentMetadata is the engine's view of an item before planning.
//
// A failed read is logged and yields an empty snapshot, so every field is presumed absent.
// known reports whether the snapshot came from a successful read.
func (e *Engine) CurrentMetadata(ctx context.Context, identifier string) (snap models.Snapshot, known bool) {
	snap, err := e.ReadMetadata(ctx, identifier, false)
	if err != nil {
		e.logger.Warn("metadata read failed, presuming fields absent", "item", identifier, "error", err)
		return models.Snapshot{}, false
	}
	return snap, true
}

// ListItems returns an uploader's items, cached in the metadata scope.
func (e *Engine) ListItems(ctx context.Context, email string, rows int, force bool) ([]models.Item, error) {
	key := listingKey(email, rows)
	if !force {
		var cached []models.Item
		if e.cacheGet(ctx, key, &cached) && cached != nil {
			return cached, nil
		}
	}

	items, err := ratelimit.Call(ctx, e.caller, "list "+email, func(ctx context.Context) ([]models.Item, error) {
		items, err := e.archive.ListItems(ctx, email, rows)
		return items, retryable(err)
	})
	if err != nil {
		return nil, err
	}
	e.cachePut(ctx, key, items)
	return items, nil
}

func (e *Engine) write(ctx context.Context, identifier string, op models.Operation, field, value string) (*models.WriteResult, error) {
	name := fmt.Sprintf("%s %s/%s", op, identifier, field)
	patch := []models.PatchOp{models.NewPatchOp(op, field, value)}
	return ratelimit.Call(ctx, e.caller, name, func(ctx context.Context) (*models.WriteResult, error) {
		res, err := e.archive.WriteMetadata(ctx, identifier, patch)
		return res, retryable(err)
	})
}

// applyField drives one field from Initial to a terminal state.
//
// Every set starts as an add, whatever the caller asked for: an add works for absent fields and
// the archive answers "already set" for present ones, which moves the field to replace.
func (e *Engine) applyField(ctx context.Context, identifier string, step Step) FieldResult {
	u := step.Update
	out := FieldResult{Field: u.Field, Value: u.Value, Intent: step.Intent, State: StateInitial}
	logger := e.logger.With("item", identifier, "field", u.Field)

	attempt := func(op models.Operation) models.Signal {
		out.Attempts = append(out.Attempts, string(op))
		res, err := e.write(ctx, identifier, op, u.Field, u.Value)
		if err != nil {
			out.Error = err.Error()
			return models.SignalFailed
		}
		sig := res.Signal()
		if sig == models.SignalFailed || sig == models.SignalRestricted || sig == models.SignalAlreadySet {
			out.Error = res.Error
		}
		return sig
	}

	for !out.State.Terminal() {
		switch out.State {
		case StateInitial:
			if u.Op() == models.OpRemove {
				out.State = e.afterRemove(attempt(models.OpRemove), &out)
				continue
			}
			out.State = StateAttemptAdd

		case StateAttemptAdd:
			switch attempt(models.OpAdd) {
			case models.SignalOK:
				out.State = StateUpdated
			case models.SignalNoChanges:
				out.State, out.Reason = StateSkip, SkipNoop
			case models.SignalAlreadySet:
				logger.Debug("field already set, replacing")
				out.Error = ""
				out.State = StateAttemptReplace
			case models.SignalRestricted:
				out.State = StateAbort
			default:
				out.State = StateFailed
			}

		case StateAttemptReplace:
			switch attempt(models.OpReplace) {
			case models.SignalOK:
				out.State = StateUpdated
			case models.SignalNoChanges:
				out.State, out.Reason = StateSkip, SkipNoop
			case models.SignalRestricted:
				out.State = StateAbort
			default:
				out.State = StateFailed
			}
		}
	}

	switch out.State {
	case StateUpdated:
		logger.Info("field updated", "intent", step.Intent, "op", out.Attempts[len(out.Attempts)-1])
	case StateSkip:
		logger.Info("field already correct", "reason", out.Reason)
	case StateAbort:
		logger.Error("editing restricted, aborting item", "error", out.Error)
	case StateFailed:
		logger.Error("field update failed", "attempts", out.Attempts, "error", out.Error)
	}
	return out
}

func (e *Engine) afterRemove(sig models.Signal, out *FieldResult) FieldState {
	switch sig {
	case models.SignalOK:
		return StateUpdated
	case models.SignalNoChanges:
		out.Reason = SkipNoop
		return StateSkip
	case models.SignalRestricted:
		return StateAbort
	default:
		return StateFailed
	}
}

// ProcessItem reconciles one item and updates its cached snapshot with what was written.
func (e *Engine) ProcessItem(ctx context.Context, identifier string, updates []models.FieldUpdate) *ItemResult {
	res := &ItemResult{Identifier: identifier, Fields: make([]FieldResult, 0, len(updates))}

	current, known := e.CurrentMetadata(ctx, identifier)
	plan := NewPlan(current, updates)

	next := maps.Clone(current)
	if next == nil {
		next = models.Snapshot{}
	}
	dirty := false

	for _, step := range plan.Steps {
		if step.Skip {
			e.logger.Debug("skipping unchanged field", "item", identifier, "field", step.Update.Field)
			res.record(FieldResult{
				Field:  step.Update.Field,
				Value:  step.Update.Value,
				State:  StateSkip,
				Reason: SkipUnchanged,
			})
			continue
		}

		f := e.applyField(ctx, identifier, step)
		res.record(f)

		if f.State == StateUpdated || f.State == StateSkip {
			if step.Update.Op() == models.OpRemove {
				delete(next, step.Update.Field)
			} else {
				next.Set(step.Update.Field, step.Update.Value)
			}
			dirty = true
		}
		if res.Aborted {
			break
		}
	}

	if known && dirty {
		e.cachePut(ctx, snapshotKey(identifier), next)
	}

	res.finish()
	return res
}

// Run reconciles every item of req in order, reporting on events when it is not nil.
//
// A request that fails validation is rejected before any network call with one fatal error event
// and an error wrapping [shared.ErrMalformedRequest]. Cancelling ctx stops the batch between
// items with a fatal event. Per-item failures never fail the run.
func (e *Engine) Run(ctx context.Context, req models.UpdateRequest, events chan<- Event) (*Summary, error) {
	emit := func(ev Event) {
		if events == nil {
			return
		}
		ev.Time = e.now()
		events <- ev
	}

	batchID := shared.GenerateID()
	if err := req.Validate(); err != nil {
		emit(fatalEvent(batchID, err))
		return nil, err
	}

	summary := &Summary{
		BatchID:   batchID,
		Total:     len(req.Items),
		Results:   make([]*ItemResult, 0, len(req.Items)),
		StartedAt: e.now(),
	}
	logger := e.logger.With("batch", batchID)
	logger.Info("starting batch", "items", len(req.Items), "updates", len(req.Updates))
	emit(startEvent(summary))

	for i, id := range req.Items {
		if err := ctx.Err(); err != nil {
			logger.Warn("batch cancelled", "processed", i, "error", err)
			emit(fatalEvent(batchID, fmt.Errorf("batch cancelled after %d of %d items: %w", i, len(req.Items), err)))
			return summary, err
		}

		emit(processingEvent(summary, i, id))
		res := e.ProcessItem(ctx, id, req.Updates)
		summary.add(res)
		emit(itemEvent(summary, i, res))
	}

	summary.FinishedAt = e.now()
	logger.Info("batch complete",
		"success", summary.SuccessCount,
		"failed", summary.FailureCount,
		"updated", summary.TotalUpdated,
		"skipped", summary.TotalSkipped)
	emit(completeEvent(summary))
	return summary, nil
}

// Apply runs req without progress events.
func (e *Engine) Apply(ctx context.Context, req models.UpdateRequest) (*Summary, error) {
	return e.Run(ctx, req, nil)
}

// Stream runs req in the background and returns its events. The channel closes after the terminal event.
func (e *Engine) Stream(ctx context.Context, req models.UpdateRequest) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		if _, err := e.Run(ctx, req, events); err != nil {
			e.logger.Debug("stream ended with error", "error", err)
		}
	}()
	return events
}
