package testing

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/desertthunder/iasync/internal/models"
	"github.com/desertthunder/iasync/internal/shared"
)

// Messages returned by [FakeArchive], matching the wording of the live archive.
const (
	MsgAlreadySet = "metadata field already set; use replace"
	MsgNoChanges  = "no changes to _meta.xml"
	MsgRestricted = "editing of this item is restricted"
	MsgNoField    = "field does not exist"
)

// WriteCall records one patch sent to [FakeArchive].
type WriteCall struct {
	Identifier string
	Patch      []models.PatchOp
}

// FakeArchive is an in-memory archive that applies patches with the live service's conflict semantics.
//
// An add on a field holding a different value answers "already set"; any write that would not
// change the stored value answers "no changes"; items in Restricted refuse every write.
type FakeArchive struct {
	mu         sync.Mutex
	items      map[string]models.Snapshot
	Restricted map[string]bool
	FailFields map[string]string // field -> error message returned as a failed result
	ReadErrs   map[string]error
	WriteErrs  []error // returned, in order, before any write is applied
	Listing    []models.Item
	Reads      []string
	Writes     []WriteCall
	inFlight   int
	maxFlight  int
}

// NewFakeArchive creates an empty archive.
func NewFakeArchive() *FakeArchive {
	return &FakeArchive{
		items:      make(map[string]models.Snapshot),
		Restricted: make(map[string]bool),
		FailFields: make(map[string]string),
		ReadErrs:   make(map[string]error),
	}
}

// Seed stores metadata for identifier.
func (f *FakeArchive) Seed(identifier string, meta map[string]any) *FakeArchive {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := models.Snapshot{"identifier": identifier}
	maps.Copy(snap, meta)
	f.items[identifier] = snap
	return f
}

// Get returns a copy of the stored metadata.
func (f *FakeArchive) Get(identifier string) models.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.items[identifier])
}

// WriteCount returns the number of write requests received.
func (f *FakeArchive) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Writes)
}

// MaxInFlight returns the highest number of concurrent writes observed.
func (f *FakeArchive) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxFlight
}

func (f *FakeArchive) ReadMetadata(ctx context.Context, identifier string) (models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads = append(f.Reads, identifier)

	if err := f.ReadErrs[identifier]; err != nil {
		return nil, err
	}
	snap, ok := f.items[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrItemNotFound, identifier)
	}
	return maps.Clone(snap), nil
}

func (f *FakeArchive) WriteMetadata(ctx context.Context, identifier string, patch []models.PatchOp) (*models.WriteResult, error) {
	f.mu.Lock()
	f.inFlight++
	f.maxFlight = max(f.maxFlight, f.inFlight)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writes = append(f.Writes, WriteCall{Identifier: identifier, Patch: patch})

	if len(f.WriteErrs) > 0 {
		err := f.WriteErrs[0]
		f.WriteErrs = f.WriteErrs[1:]
		return nil, err
	}
	if f.Restricted[identifier] {
		return &models.WriteResult{Error: MsgRestricted}, nil
	}

	snap, ok := f.items[identifier]
	if !ok {
		snap = models.Snapshot{"identifier": identifier}
		f.items[identifier] = snap
	}

	changed := false
	for _, p := range patch {
		field := p.Path[1:]
		if msg, ok := f.FailFields[field]; ok {
			return &models.WriteResult{Error: msg}, nil
		}

		target := fmt.Sprint(p.Value)
		current, exists := snap.Value(field)
		switch p.Op {
		case models.OpAdd:
			if exists && current != target {
				return &models.WriteResult{Error: MsgAlreadySet}, nil
			}
			if !exists {
				snap.Set(field, target)
				changed = true
			}
		case models.OpReplace:
			if !exists {
				return &models.WriteResult{Error: MsgNoField}, nil
			}
			if current != target {
				snap.Set(field, target)
				changed = true
			}
		case models.OpRemove:
			if exists {
				delete(snap, field)
				changed = true
			}
		}
	}

	if !changed {
		return &models.WriteResult{Error: MsgNoChanges}, nil
	}
	return &models.WriteResult{Success: true, TaskID: int64(len(f.Writes)), Log: "queued"}, nil
}

func (f *FakeArchive) ListItems(ctx context.Context, email string, rows int) ([]models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.Listing
	if rows > 0 && len(items) > rows {
		items = items[:rows]
	}
	return append([]models.Item(nil), items...), nil
}

// FakeSearcher returns canned candidates per query and records every call.
type FakeSearcher struct {
	mu      sync.Mutex
	Results map[string][]models.Candidate
	Err     error
	Gate    chan struct{} // when set, each search waits for a receive
	calls   []string
}

// NewFakeSearcher creates a searcher with no results.
func NewFakeSearcher() *FakeSearcher {
	return &FakeSearcher{Results: make(map[string][]models.Candidate)}
}

func (f *FakeSearcher) Search(ctx context.Context, query, channelID string) ([]models.Candidate, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	gate := f.Gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Results[query], nil
}

// Calls returns the queries searched so far.
func (f *FakeSearcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
