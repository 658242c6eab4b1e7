package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/iasync/internal/models"
	"github.com/desertthunder/iasync/internal/repositories"
	"github.com/desertthunder/iasync/internal/shared"
	"github.com/desertthunder/iasync/internal/tasks"
)

const maxBodyBytes = 1 << 20

// BatchRunner executes update batches.
type BatchRunner interface {
	Apply(ctx context.Context, req models.UpdateRequest) (*tasks.Summary, error)
	Stream(ctx context.Context, req models.UpdateRequest) <-chan tasks.Event
}

// MatchService looks up videos and reports quota.
type MatchService interface {
	Enabled() bool
	Lookup(ctx context.Context, req models.MatchRequest) (*models.MatchResult, error)
	QuotaStatus(ctx context.Context) (*models.QuotaStatus, error)
}

// CacheAdmin clears and counts cache entries.
type CacheAdmin interface {
	Clear(ctx context.Context, scope repositories.Scope) (int64, error)
	Stats(ctx context.Context) (*repositories.CacheStats, error)
}

// API serves the JSON and event-stream endpoints.
type API struct {
	batches BatchRunner
	matches MatchService
	cache   CacheAdmin
	logger  *log.Logger
}

// NewAPI creates an [API]. matches and cache may be nil; their endpoints then answer 503.
func NewAPI(batches BatchRunner, matches MatchService, cache CacheAdmin, logger *log.Logger) *API {
	return &API{
		batches: batches,
		matches: matches,
		cache:   cache,
		logger:  shared.ComponentLogger(logger, "api"),
	}
}

// Register adds every endpoint to r.
func (a *API) Register(r Router) {
	r.Handle(http.MethodGet, "/health", http.HandlerFunc(a.health))
	r.Handle(http.MethodPost, "/api/metadata/batch", http.HandlerFunc(a.batch))
	r.Handle(http.MethodPost, "/api/youtube/match", http.HandlerFunc(a.match))
	r.Handle(http.MethodGet, "/api/youtube/quota", http.HandlerFunc(a.quota))
	r.Handle(http.MethodPost, "/api/cache/clear", http.HandlerFunc(a.cacheClear))
	r.Handle(http.MethodGet, "/api/cache/stats", http.HandlerFunc(a.cacheStats))
}

// NewHandler builds the full middleware stack and routes for api.
func NewHandler(api *API, logger *log.Logger, origins []string) http.Handler {
	r := NewChiRouter()
	r.Use(RequestID(), Recover(), Logging(shared.ComponentLogger(logger, "http")), CORS(origins))
	api.Register(r)
	return r
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

// StatusFor maps an error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrMalformedRequest), errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrQuotaExceeded), errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, shared.ErrUnconfigured), errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= 500 {
		a.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func decode(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", shared.ErrMalformedRequest, err)
	}
	return nil
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"youtube": a.matches != nil && a.matches.Enabled(),
	})
}

func wantsStream(r *http.Request) bool {
	if v := r.URL.Query().Get("stream"); v == "1" || v == "true" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// batch runs an update batch. A disconnected client does not stop it.
func (a *API) batch(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateRequest
	decodeErr := decode(r, &req)
	ctx := context.WithoutCancel(r.Context())

	if wantsStream(r) {
		a.stream(ctx, w, r, req, decodeErr)
		return
	}
	if decodeErr != nil {
		a.fail(w, r, decodeErr)
		return
	}

	summary, err := a.batches.Apply(ctx, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool           `json:"success"`
		Summary *tasks.Summary `json:"summary"`
	}{true, summary})
}

func (a *API) stream(ctx context.Context, w http.ResponseWriter, r *http.Request, req models.UpdateRequest, decodeErr error) {
	sse, err := NewEventWriter(w)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	if decodeErr != nil {
		_ = sse.Send(tasks.Event{Type: tasks.EventError, Fatal: true, Message: decodeErr.Error()})
		return
	}

	connected := true
	for ev := range a.batches.Stream(ctx, req) {
		if !connected {
			continue
		}
		if err := sse.Send(ev); err != nil {
			a.logger.Warn("client disconnected, batch continues", "batch", ev.BatchID, "error", err)
			connected = false
		}
	}
}

func (a *API) match(w http.ResponseWriter, r *http.Request) {
	if a.matches == nil {
		a.fail(w, r, fmt.Errorf("%w: youtube matching", shared.ErrUnconfigured))
		return
	}

	var req models.MatchRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	m, err := a.matches.Lookup(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool                `json:"success"`
		Enabled bool                `json:"enabled"`
		Match   *models.MatchResult `json:"match"`
	}{true, a.matches.Enabled(), m})
}

func (a *API) quota(w http.ResponseWriter, r *http.Request) {
	if a.matches == nil {
		a.fail(w, r, fmt.Errorf("%w: youtube matching", shared.ErrUnconfigured))
		return
	}

	status, err := a.matches.QuotaStatus(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*models.QuotaStatus
	}{true, status})
}

func (a *API) cacheClear(w http.ResponseWriter, r *http.Request) {
	if a.cache == nil {
		a.fail(w, r, fmt.Errorf("%w: cache", shared.ErrUnconfigured))
		return
	}

	scope, err := repositories.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	n, err := a.cache.Clear(r.Context(), scope)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.logger.Info("cache cleared", "scope", scope, "entries", n)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "scope": scope, "cleared": n})
}

func (a *API) cacheStats(w http.ResponseWriter, r *http.Request) {
	if a.cache == nil {
		a.fail(w, r, fmt.Errorf("%w: cache", shared.ErrUnconfigured))
		return
	}

	stats, err := a.cache.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}
