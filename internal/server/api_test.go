package server

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/iasync/internal/matcher"
	"github.com/desertthunder/iasync/internal/models"
	"github.com/desertthunder/iasync/internal/ratelimit"
	"github.com/desertthunder/iasync/internal/repositories"
	"github.com/desertthunder/iasync/internal/shared"
	"github.com/desertthunder/iasync/internal/tasks"
	tu "github.com/desertthunder/iasync/internal/testing"
	"golang.org/x/oauth2"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type testEnv struct {
	server   *httptest.Server
	archive  *tu.FakeArchive
	searcher *tu.FakeSearcher
	cache    *repositories.CacheRepository
}

func newTestEnv(t *testing.T, withMatcher bool) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	env := &testEnv{
		archive:  tu.NewFakeArchive(),
		searcher: tu.NewFakeSearcher(),
		cache:    repositories.NewCacheRepository(db, 0),
	}

	engine := tasks.NewEngine(tasks.Options{
		Archive: env.archive,
		Cache:   env.cache,
		Caller: ratelimit.NewCaller(ratelimit.Options{
			Attempts: 2,
			Sleep:    func(context.Context, time.Duration) error { return nil },
		}),
	})

	var matches MatchService
	if withMatcher {
		matches = matcher.New(matcher.Options{
			Searcher:   env.searcher,
			Cache:      env.cache,
			Quota:      repositories.NewQuotaRepository(db),
			ChannelID:  "UCchannel",
			DailyQuota: 1000,
			SearchCost: 100,
		})
	}

	api := NewAPI(engine, matches, env.cache, nil)
	env.server = httptest.NewServer(NewHandler(api, nil, nil))
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) post(t *testing.T, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	return body
}

type sseEvent struct {
	name string
	data wireEvent
}

type wireEvent struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
	Fatal      bool   `json:"fatal"`
	Message    string `json:"message"`
}

func readEvents(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var (
		out  []sseEvent
		name string
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var ev wireEvent
			raw := strings.TrimPrefix(line, "data: ")
			if err := json.Unmarshal([]byte(raw), &ev); err != nil {
				t.Fatalf("bad event data %q: %v", raw, err)
			}
			out = append(out, sseEvent{name: name, data: ev})
		}
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, true)
	resp := env.get(t, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["status"] != "ok" || body["youtube"] != true {
		t.Errorf("unexpected body %v", body)
	}
}

func TestBatchEndpoint(t *testing.T) {
	t.Run("returns a JSON summary", func(t *testing.T) {
		env := newTestEnv(t, false)
		env.archive.Seed("X", map[string]any{"title": "Old Title"})

		resp := env.post(t, "/api/metadata/batch",
			`{"items":["X"],"updates":[{"field":"title","value":"Same Title","operation":"replace"}]}`, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}

		var body struct {
			Success bool `json:"success"`
			Summary struct {
				Total        int `json:"total"`
				TotalUpdated int `json:"totalUpdated"`
				TotalSkipped int `json:"totalSkipped"`
			} `json:"summary"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if !body.Success || body.Summary.TotalUpdated != 1 || body.Summary.TotalSkipped != 0 {
			t.Errorf("unexpected summary %+v", body.Summary)
		}
	})

	t.Run("rejects malformed requests", func(t *testing.T) {
		env := newTestEnv(t, false)
		for _, body := range []string{`{"items":[]}`, `not json`} {
			resp := env.post(t, "/api/metadata/batch", body, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("%q: expected 400, got %d", body, resp.StatusCode)
			}
			if got := decodeBody(t, resp); got["success"] != false || got["error"] == "" {
				t.Errorf("%q: unexpected body %v", body, got)
			}
		}
		if len(env.archive.Reads) != 0 {
			t.Error("expected no reads for malformed requests")
		}
	})

	t.Run("streams ordered events", func(t *testing.T) {
		env := newTestEnv(t, false)
		env.archive.Seed("A", nil).Seed("B", nil)

		resp := env.post(t, "/api/metadata/batch",
			`{"items":["A","B"],"updates":[{"field":"venue","value":"Siberia"}]}`,
			map[string]string{"Accept": "text/event-stream"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
			t.Errorf("unexpected content type %q", ct)
		}

		events := readEvents(t, resp)
		var names []string
		for _, ev := range events {
			names = append(names, ev.name)
		}
		want := "start,processing,success,processing,success,complete"
		if got := strings.Join(names, ","); got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
		if events[1].data.Identifier != "A" || events[3].data.Identifier != "B" {
			t.Error("expected items in submitted order")
		}
	})

	t.Run("stream query flag with fatal validation error", func(t *testing.T) {
		env := newTestEnv(t, false)
		resp := env.post(t, "/api/metadata/batch?stream=1", `{"items":["A"],"updates":[]}`, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 once streaming, got %d", resp.StatusCode)
		}
		events := readEvents(t, resp)
		if len(events) != 1 || events[0].name != "error" || !events[0].data.Fatal || events[0].data.Message == "" {
			t.Errorf("expected a single fatal error event, got %+v", events)
		}
	})
}

func TestMatchEndpoints(t *testing.T) {
	t.Run("finds a match", func(t *testing.T) {
		env := newTestEnv(t, true)
		title := "Grateful Dead @ The Fillmore on 1977-05-08"
		env.searcher.Results[matcher.Queries(matcher.NewTarget(title, ""), title)[0]] = []models.Candidate{
			{VideoID: "gd77", Title: "Grateful Dead - Fire on the Mountain - Fillmore 05.08.77"},
		}

		resp := env.post(t, "/api/youtube/match", fmt.Sprintf(`{"title":%q}`, title), nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var body struct {
			Success bool                `json:"success"`
			Match   *models.MatchResult `json:"match"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if !body.Success || body.Match == nil || body.Match.VideoID != "gd77" {
			t.Errorf("unexpected body %+v", body)
		}

		quota := decodeBody(t, env.get(t, "/api/youtube/quota"))
		if quota["used"] != float64(100) || quota["remaining"] != float64(900) {
			t.Errorf("unexpected quota %v", quota)
		}
	})

	t.Run("quota exhaustion is 429", func(t *testing.T) {
		env := newTestEnv(t, true)
		env.searcher.Err = fmt.Errorf("%w: provider", shared.ErrQuotaExceeded)

		resp := env.post(t, "/api/youtube/match", `{"title":"Thou @ Siberia"}`, nil)
		if resp.StatusCode != http.StatusTooManyRequests {
			t.Errorf("expected 429, got %d", resp.StatusCode)
		}
	})

	t.Run("missing title is 400", func(t *testing.T) {
		env := newTestEnv(t, true)
		resp := env.post(t, "/api/youtube/match", `{}`, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("unconfigured is 503", func(t *testing.T) {
		env := newTestEnv(t, false)
		if resp := env.get(t, "/api/youtube/quota"); resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", resp.StatusCode)
		}
	})
}

func TestCacheEndpoints(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	_ = env.cache.Put(ctx, repositories.ScopeYouTube, "k1", "v")
	_ = env.cache.Put(ctx, repositories.ScopeMetadata, "k2", "v")

	stats := decodeBody(t, env.get(t, "/api/cache/stats"))
	if s, ok := stats["stats"].(map[string]any); !ok || s["total"] != float64(2) {
		t.Errorf("unexpected stats %v", stats)
	}

	resp := env.post(t, "/api/cache/clear?scope=youtube", "", nil)
	if body := decodeBody(t, resp); body["cleared"] != float64(1) {
		t.Errorf("expected 1 cleared, got %v", body)
	}

	resp = env.post(t, "/api/cache/clear?scope=bogus", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad scope, got %d", resp.StatusCode)
	}

	resp = env.get(t, "/api/cache/clear")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	tt := []struct {
		err  error
		want int
	}{
		{shared.ErrMalformedRequest, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", shared.ErrInvalidArgument), http.StatusBadRequest},
		{shared.ErrItemNotFound, http.StatusNotFound},
		{shared.ErrQuotaExceeded, http.StatusTooManyRequests},
		{shared.ErrUnconfigured, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tt {
		if got := StatusFor(tc.err); got != tc.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

type fakeExchanger struct {
	err error
}

func (f fakeExchanger) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{AccessToken: "access-" + code, RefreshToken: "refresh"}, nil
}

func TestOAuthHandler(t *testing.T) {
	serve := func(h *OAuthHandler, q url.Values) *httptest.ResponseRecorder {
		router := NewChiRouter()
		router.Handler(h)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+q.Encode(), nil))
		return rec
	}

	t.Run("exchanges the code once", func(t *testing.T) {
		h := NewOAuthHandler(fakeExchanger{}, "state-1")
		rec := serve(h, url.Values{"state": {"state-1"}, "code": {"abc"}})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		res := <-h.Result()
		if res.Err != nil || res.Token.AccessToken != "access-abc" {
			t.Errorf("unexpected result %+v", res)
		}

		if rec := serve(h, url.Values{"state": {"state-1"}, "code": {"abc"}}); rec.Code != http.StatusBadRequest {
			t.Errorf("expected replay to be rejected, got %d", rec.Code)
		}
	})

	t.Run("rejects wrong state", func(t *testing.T) {
		h := NewOAuthHandler(fakeExchanger{}, "state-1")
		if rec := serve(h, url.Values{"state": {"other"}, "code": {"abc"}}); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if res := <-h.Result(); res.Err == nil {
			t.Error("expected state error")
		}
	})

	t.Run("reports exchange failure", func(t *testing.T) {
		h := NewOAuthHandler(fakeExchanger{err: errors.New("denied")}, "s")
		if rec := serve(h, url.Values{"state": {"s"}, "code": {"abc"}}); rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
		if res := <-h.Result(); res.Err == nil {
			t.Error("expected exchange error")
		}
	})
}
