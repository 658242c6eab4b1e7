package tasks

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/iasync/internal/models"
	"github.com/desertthunder/iasync/internal/ratelimit"
	"github.com/desertthunder/iasync/internal/repositories"
	"github.com/desertthunder/iasync/internal/services"
	"github.com/desertthunder/iasync/internal/shared"
	tu "github.com/desertthunder/iasync/internal/testing"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
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

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newTestEngine(t *testing.T, archive services.Archive, withCache bool) *Engine {
	t.Helper()
	opts := Options{
		Archive: archive,
		Caller:  ratelimit.NewCaller(ratelimit.Options{Attempts: 3, Delay: time.Millisecond, Sleep: noSleep}),
	}
	if withCache {
		opts.Cache = repositories.NewCacheRepository(setupTestDB(t), 0)
	}
	return NewEngine(opts)
}

func collect(t *testing.T, e *Engine, req models.UpdateRequest) ([]Event, *Summary, error) {
	t.Helper()
	events := make(chan Event, 64)
	summary, err := e.Run(context.Background(), req, events)
	close(events)

	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out, summary, err
}

func TestEngineRun(t *testing.T) {
	ctx := context.Background()

	t.Run("skips a field that already has the target value", func(t *testing.T) {
		archive := tu.NewFakeArchive().Seed("X", map[string]any{"title": "Same Title"})
		e := newTestEngine(t, archive, false)

		summary, err := e.Apply(ctx, models.UpdateRequest{
			Items:   []string{"X"},
			Updates: []models.FieldUpdate{{Field: "title", Value: "Same Title", Operation: models.OpReplace}},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		res := summary.Results[0]
		if res.Updated != 0 || res.Skipped != 1 || res.SkippedUnchanged != 1 {
			t.Errorf("expected {updated:0, skipped:1}, got %+v", res)
		}
		if archive.WriteCount() != 0 {
			t.Errorf("expected zero writes, got %d", archive.WriteCount())
		}
		if summary.FullySkippedItems != 1 {
			t.Errorf("expected 1 fully skipped item, got %d", summary.FullySkippedItems)
		}
		if res.Message != "all 1 field(s) skipped, nothing to change" {
			t.Errorf("unexpected message %q", res.Message)
		}
	})

	t.Run("replaces after already set", func(t *testing.T) {
		archive := tu.NewFakeArchive().Seed("X", map[string]any{"title": "Old Title"})
		e := newTestEngine(t, archive, false)

		summary, err := e.Apply(ctx, models.UpdateRequest{
			Items:   []string{"X"},
			Updates: []models.FieldUpdate{{Field: "title", Value: "Same Title", Operation: models.OpReplace}},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		res := summary.Results[0]
		if res.Updated != 1 || res.Skipped != 0 || !res.Success {
			t.Errorf("expected {updated:1, skipped:0}, got %+v", res)
		}
		if len(archive.Writes) != 2 {
			t.Fatalf("expected add then replace, got %d writes", len(archive.Writes))
		}
		if archive.Writes[0].Patch[0].Op != models.OpAdd || archive.Writes[1].Patch[0].Op != models.OpReplace {
			t.Errorf("unexpected write sequence %+v", archive.Writes)
		}
		if v, _ := archive.Get("X").Value("title"); v != "Same Title" {
			t.Errorf("expected archive updated, got %q", v)
		}
		if got := res.Fields[0].Attempts; len(got) != 2 {
			t.Errorf("expected two attempts recorded, got %v", got)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		for _, withCache := range []bool{false, true} {
			archive := tu.NewFakeArchive().
				Seed("A", map[string]any{"title": "Thou @ Siberia"}).
				Seed("B", map[string]any{"title": "Sleep @ Roadburn", "creator": "Sleep"})
			e := newTestEngine(t, archive, withCache)
			req := models.UpdateRequest{
				Items: []string{"A", "B"},
				Updates: []models.FieldUpdate{
					{Field: "creator", Value: "Thou"},
					{Field: "venue", Value: "Siberia"},
				},
			}

			first, err := e.Apply(ctx, req)
			if err != nil {
				t.Fatal(err)
			}
			if first.TotalUpdated != 4 {
				t.Errorf("cache=%v: expected 4 updates on first run, got %d", withCache, first.TotalUpdated)
			}
			writes := archive.WriteCount()
			stateA, stateB := archive.Get("A"), archive.Get("B")

			second, err := e.Apply(ctx, req)
			if err != nil {
				t.Fatal(err)
			}
			if second.TotalUpdated != 0 || second.TotalSkipped != 4 || second.FullySkippedItems != 2 {
				t.Errorf("cache=%v: expected all skipped on second run, got %+v", withCache, second)
			}
			if archive.WriteCount() != writes {
				t.Errorf("cache=%v: expected no writes on second run, got %d more", withCache, archive.WriteCount()-writes)
			}
			if v, _ := archive.Get("A").Value("venue"); v != "Siberia" {
				t.Errorf("unexpected venue %q", v)
			}
			if len(archive.Get("A")) != len(stateA) || len(archive.Get("B")) != len(stateB) {
				t.Error("expected remote state unchanged by second run")
			}
		}
	})

	t.Run("write-through cache avoids re-reading", func(t *testing.T) {
		archive := tu.NewFakeArchive().Seed("A", map[string]any{"title": "x"})
		e := newTestEngine(t, archive, true)
		req := models.UpdateRequest{Items: []string{"A"}, Updates: []models.FieldUpdate{{Field: "title", Value: "y"}}}

		if _, err := e.Apply(ctx, req); err != nil {
			t.Fatal(err)
		}
		if _, err := e.Apply(ctx, req); err != nil {
			t.Fatal(err)
		}
		if len(archive.Reads) != 1 {
			t.Errorf("expected one remote read, got %d", len(archive.Reads))
		}
		snap, err := e.ReadMetadata(ctx, "A", false)
		if err != nil {
			t.Fatal(err)
		}
		if v, _ := snap.Value("title"); v != "y" {
			t.Errorf("expected cached snapshot to carry the write, got %q", v)
		}
	})

	t.Run("emits ordered events", func(t *testing.T) {
		archive := tu.NewFakeArchive().Seed("A", nil).Seed("B", nil).Seed("C", nil)
		e := newTestEngine(t, archive, false)

		events, summary, err := collect(t, e, models.UpdateRequest{
			Items:   []string{"A", "B", "C"},
			Updates: []models.FieldUpdate{{Field: "venue", Value: "Che Cafe"}},
		})
		if err != nil {
			t.Fatal(err)
		}

		want := []struct {
			typ EventType
			id  string
		}{
			{EventStart, ""},
			{EventProcessing, "A"}, {EventSuccess, "A"},
			{EventProcessing, "B"}, {EventSuccess, "B"},
			{EventProcessing, "C"}, {EventSuccess, "C"},
			{EventComplete, ""},
		}
		if len(events) != len(want) {
			t.Fatalf("expected %d events, got %d", len(want), len(events))
		}
		for i, w := range want {
			if events[i].Type != w.typ || events[i].Identifier != w.id {
				t.Errorf("event %d: expected %s %s, got %s %s", i, w.typ, w.id, events[i].Type, events[i].Identifier)
			}
			if events[i].BatchID != summary.BatchID {
				t.Errorf("event %d: batch id mismatch", i)
			}
		}
		if events[0].Total != 3 {
			t.Errorf("expected start to carry total 3, got %d", events[0].Total)
		}
		last := events[len(events)-1]
		if last.Summary == nil || last.Summary.SuccessCount != 3 || !last.Terminal() {
			t.Errorf("expected complete event with summary, got %+v", last)
		}
		if events[4].SuccessCount != 2 || events[4].Processed != 2 {
			t.Errorf("expected running counters on B's result, got %+v", events[4])
		}
	})

	t.Run("restricted aborts the item and the batch continues", func(t *testing.T) {
		archive := tu.NewFakeArchive().Seed("A", nil).Seed("B", nil)
		archive.Restricted["A"] = true
		e := newTestEngine(t, archive, false)

		events, summary, err := collect(t, e, models.UpdateRequest{
			Items: []string{"A", "B"},
			Updates: []models.FieldUpdate{
				{Field: "creator", Value: "Thou"},
				{Field: "venue", Value: "Siberia"},
			},
		})
		if err != nil {
			t.Fatal(err)
		}

		a := summary.Results[0]
		if a.Success || !a.Aborted || len(a.Fields) != 1 {
			t.Errorf("expected A aborted after its first field, got %+v", a)
		}
		if a.Fields[0].State != StateAbort {
			t.Errorf("expected aborted field, got %s", a.Fields[0].State)
		}
		if b := summary.Results[1]; !b.Success || b.Updated != 2 {
			t.Errorf("expected B updated, got %+v", b)
		}
		if archive.WriteCount() != 3 {
			t.Errorf("expected 1 write for A and 2 for B, got %d", archive.WriteCount())
		}
		if summary.FailureCount != 1 || summary.SuccessCount != 1 {
			t.Errorf("unexpected counts %+v", summary)
		}
		if events[2].Type != EventError || events[2].Identifier != "A" {
			t.Errorf("expected error event for A, got %s %s", events[2].Type, events[2].Identifier)
		}
	})

	t.Run("a failed field does not stop the item", func(t *testing.T) {
		archive := tu.NewFakeArchive().Seed("A", nil)
		archive.FailFields["creator"] = "internal server error"
		e := newTestEngine(t, archive, false)

		summary, err := e.Apply(ctx, models.UpdateRequest{
			Items: []string{"A"},
			Updates: []models.FieldUpdate{
				{Field: "creator", Value: "Thou"},
				{Field: "venue", Value: "Siberia"},
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		res := summary.Results[0]
		if res.Success || res.Failed != 1 || res.Updated != 1 || res.Skipped != 0 {
			t.Errorf("expected 1 failed and 1 updated, got %+v", res)
		}
		if res.Fields[0].State != StateFailed || res.Fields[0].Error != "internal server error" {
			t.Errorf("unexpected failed field %+v", res.Fields[0])
		}
		if res.Message != "1 updated, 1 failed" {
			t.Errorf("unexpected message %q", res.Message)
		}
	})

	t.Run("no changes from the archive counts as a skip", func(t *testing.T) {
		archive := tu.NewFakeArchive().Seed("A", map[string]any{"venue": "Siberia"})
		archive.ReadErrs["A"] = errors.New("connection reset")
		e := newTestEngine(t, archive, false)

		summary, err := e.Apply(ctx, models.UpdateRequest{
			Items:   []string{"A"},
			Updates: []models.FieldUpdate{{Field: "venue", Value: "Siberia"}},
		})
		if err != nil {
			t.Fatal(err)
		}
		res := summary.Results[0]
		if !res.Success || res.Skipped != 1 || res.SkippedNoop != 1 || res.SkippedUnchanged != 0 {
			t.Errorf("expected one no-op skip, got %+v", res)
		}
		if len(archive.Reads) != 3 {
			t.Errorf("expected read to be retried 3 times, got %d", len(archive.Reads))
		}
		if summary.SkippedNoop != 1 || summary.TotalSkipped != 1 {
			t.Errorf("unexpected summary %+v", summary)
		}
	})

	t.Run("missing item is read once", func(t *testing.T) {
		archive := tu.NewFakeArchive()
		e := newTestEngine(t, archive, false)

		if _, err := e.Apply(ctx, models.UpdateRequest{
			Items:   []string{"ghost"},
			Updates: []models.FieldUpdate{{Field: "venue", Value: "x"}},
		}); err != nil {
			t.Fatal(err)
		}
		if len(archive.Reads) != 1 {
			t.Errorf("expected not-found to stop retries, got %d reads", len(archive.Reads))
		}
	})

	t.Run("retries transient write errors", func(t *testing.T) {
		archive := tu.NewFakeArchive().Seed("A", nil)
		archive.WriteErrs = []error{&services.StatusError{Service: "archive", Code: 503}}
		e := newTestEngine(t, archive, false)

		summary, err := e.Apply(ctx, models.UpdateRequest{
			Items:   []string{"A"},
			Updates: []models.FieldUpdate{{Field: "venue", Value: "x"}},
		})
		if err != nil {
			t.Fatal(err)
		}
		if summary.Results[0].Updated != 1 || archive.WriteCount() != 2 {
			t.Errorf("expected retry then success, got %+v with %d writes", summary.Results[0], archive.WriteCount())
		}
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		archive := tu.NewFakeArchive().Seed("A", nil)
		archive.WriteErrs = []error{&services.StatusError{Service: "archive", Code: 400}}
		e := newTestEngine(t, archive, false)

		summary, err := e.Apply(ctx, models.UpdateRequest{
			Items:   []string{"A"},
			Updates: []models.FieldUpdate{{Field: "venue", Value: "x"}},
		})
		if err != nil {
			t.Fatal(err)
		}
		if summary.Results[0].Failed != 1 || archive.WriteCount() != 1 {
			t.Errorf("expected one failed write, got %+v with %d writes", summary.Results[0], archive.WriteCount())
		}
	})

	t.Run("removes present fields", func(t *testing.T) {
		archive := tu.NewFakeArchive().Seed("A", map[string]any{"coverage": "Memphis"})
		e := newTestEngine(t, archive, false)

		summary, err := e.Apply(ctx, models.UpdateRequest{
			Items: []string{"A"},
			Updates: []models.FieldUpdate{
				{Field: "coverage", Operation: models.OpRemove},
				{Field: "notes", Operation: models.OpRemove},
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		res := summary.Results[0]
		if res.Updated != 1 || res.SkippedUnchanged != 1 {
			t.Errorf("expected 1 removed and 1 skipped, got %+v", res)
		}
		if _, ok := archive.Get("A")["coverage"]; ok {
			t.Error("expected coverage removed")
		}
	})

	t.Run("keeps one write in flight", func(t *testing.T) {
		archive := tu.NewFakeArchive().Seed("A", nil).Seed("B", nil)
		e := newTestEngine(t, archive, false)

		if _, err := e.Apply(ctx, models.UpdateRequest{
			Items:   []string{"A", "B"},
			Updates: []models.FieldUpdate{{Field: "creator", Value: "x"}, {Field: "venue", Value: "y"}},
		}); err != nil {
			t.Fatal(err)
		}
		if archive.MaxInFlight() != 1 {
			t.Errorf("expected at most one concurrent write, got %d", archive.MaxInFlight())
		}
	})

	t.Run("rejects malformed requests with one fatal event", func(t *testing.T) {
		archive := tu.NewFakeArchive()
		e := newTestEngine(t, archive, false)

		tt := []models.UpdateRequest{
			{},
			{Items: []string{"A"}},
			{Items: []string{"A", "A"}, Updates: []models.FieldUpdate{{Field: "venue", Value: "x"}}},
			{Items: []string{"A"}, Updates: []models.FieldUpdate{{Field: "Bad Field", Value: "x"}}},
			{Items: []string{"A"}, Updates: []models.FieldUpdate{{Field: "venue", Value: "x", Operation: "merge"}}},
		}
		for i, req := range tt {
			events, summary, err := collect(t, e, req)
			if !errors.Is(err, shared.ErrMalformedRequest) {
				t.Errorf("case %d: expected ErrMalformedRequest, got %v", i, err)
			}
			if summary != nil {
				t.Errorf("case %d: expected no summary", i)
			}
			if len(events) != 1 || events[0].Type != EventError || !events[0].Fatal {
				t.Errorf("case %d: expected a single fatal error event, got %+v", i, events)
			}
		}
		if len(archive.Reads) != 0 || archive.WriteCount() != 0 {
			t.Error("expected no network activity for malformed requests")
		}
	})

	t.Run("stops between items when cancelled", func(t *testing.T) {
		archive := tu.NewFakeArchive().Seed("A", nil)
		e := newTestEngine(t, archive, false)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		events := make(chan Event, 8)
		_, err := e.Run(cctx, models.UpdateRequest{
			Items:   []string{"A"},
			Updates: []models.FieldUpdate{{Field: "venue", Value: "x"}},
		}, events)
		close(events)

		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		var got []Event
		for ev := range events {
			got = append(got, ev)
		}
		if len(got) != 2 || got[0].Type != EventStart || !got[1].Fatal {
			t.Errorf("expected start then fatal, got %+v", got)
		}
	})
}

func TestEngineStream(t *testing.T) {
	archive := tu.NewFakeArchive().Seed("A", nil).Seed("B", nil)
	e := newTestEngine(t, archive, false)

	var got []Event
	for ev := range e.Stream(context.Background(), models.UpdateRequest{
		Items:   []string{"A", "B"},
		Updates: []models.FieldUpdate{{Field: "venue", Value: "x"}},
	}) {
		got = append(got, ev)
	}

	if len(got) != 6 {
		t.Fatalf("expected 6 events, got %d", len(got))
	}
	if got[0].Type != EventStart || got[5].Type != EventComplete {
		t.Errorf("expected start first and complete last, got %s ... %s", got[0].Type, got[5].Type)
	}
	for _, ev := range got {
		if ev.Time.IsZero() {
			t.Error("expected events to be timestamped")
		}
	}
}

func TestEngineListItems(t *testing.T) {
	archive := tu.NewFakeArchive()
	archive.Listing = []models.Item{{Identifier: "a"}, {Identifier: "b"}}
	e := newTestEngine(t, archive, true)
	ctx := context.Background()

	items, err := e.ListItems(ctx, "me@example.com", 10, false)
	if err != nil || len(items) != 2 {
		t.Fatalf("expected 2 items, got %v, %v", items, err)
	}

	archive.Listing = append(archive.Listing, models.Item{Identifier: "c"})
	if items, _ := e.ListItems(ctx, "me@example.com", 10, false); len(items) != 2 {
		t.Errorf("expected cached listing, got %d items", len(items))
	}
	if items, _ := e.ListItems(ctx, "me@example.com", 10, true); len(items) != 3 {
		t.Errorf("expected forced refresh, got %d items", len(items))
	}
}

func TestEventType(t *testing.T) {
	tt := map[EventType]string{
		EventStart:      "start",
		EventProcessing: "processing",
		EventSuccess:    "success",
		EventError:      "error",
		EventComplete:   "complete",
	}
	for typ, want := range tt {
		b, err := typ.MarshalText()
		if err != nil || string(b) != want {
			t.Errorf("%d: expected %q, got %q (%v)", typ, want, b, err)
		}
	}
	if _, err := EventType(99).MarshalText(); err == nil {
		t.Error("expected error for unknown type")
	}
}
