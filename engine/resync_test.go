package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vektordb/vektor/index"
	"github.com/vektordb/vektor/store"
)

// flakyIndex delegates to a real index but fails a configurable number of
// Insert calls first.
type flakyIndex struct {
	index.Index

	mu       sync.Mutex
	failures int
}

var errInjected = errors.New("injected index failure")

func (f *flakyIndex) Insert(internalID uint64, vector []float32) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errInjected
	}
	f.mu.Unlock()
	return f.Index.Insert(internalID, vector)
}

type flakyProvider struct {
	inner    index.Provider
	failures int
	idx      *flakyIndex
}

func (p *flakyProvider) New() (index.Index, error) {
	inner, err := p.inner.New()
	if err != nil {
		return nil, err
	}
	p.idx = &flakyIndex{Index: inner, failures: p.failures}
	return p.idx, nil
}

func (p *flakyProvider) LoadFromFile(path string) (index.Index, error) {
	return p.inner.LoadFromFile(path)
}

func waitForLive(t *testing.T, e *Engine, want int) {
	t.Helper()
	ctx := context.Background()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		stats, err := e.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.IndexLive == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("index live never reached %d", want)
}

func TestResync_RepairsFailedInsert(t *testing.T) {
	ctx := context.Background()

	provider := &flakyProvider{inner: testProvider(), failures: 1}
	e, err := New(ctx, store.NewMemory(), provider)
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	defer e.Close()

	// The store write commits even though the index insert fails.
	res, err := e.Upsert(ctx, "doc1", []float32{1, 0, 0}, nil)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if res.Status != "inserted" {
		t.Fatalf("status: got %q, want inserted", res.Status)
	}
	if _, err := e.Get(ctx, "doc1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// Resync re-reads the record and closes the inconsistency window.
	waitForLive(t, e, 1)

	hits, err := e.Search(ctx, []float32{1, 0, 0}, 1, nil, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ExternalID != "doc1" {
		t.Fatalf("hits after resync: %v", hits)
	}
}

func TestResync_RetriesUntilSuccess(t *testing.T) {
	ctx := context.Background()

	// Three consecutive failures: the initial insert plus two resync
	// attempts, repaired on the third.
	provider := &flakyProvider{inner: testProvider(), failures: 3}
	e, err := New(ctx, store.NewMemory(), provider)
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	defer e.Close()

	if _, err := e.Upsert(ctx, "doc1", []float32{1, 0, 0}, nil); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	waitForLive(t, e, 1)
}

func TestResync_TombstonesDeletedRecord(t *testing.T) {
	ctx := context.Background()

	provider := &flakyProvider{inner: testProvider(), failures: 1}
	s := store.NewMemory()
	e, err := New(ctx, s, provider)
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	defer e.Close()

	if _, err := e.Upsert(ctx, "doc1", []float32{1, 0, 0}, nil); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Deleted before the resync runs: the pending repair must observe the
	// missing record and settle on a tombstone, not resurrect it.
	if _, err := e.Delete(ctx, "doc1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		stats, err := e.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.PendingResync == 0 {
			if stats.IndexLive != 0 {
				t.Fatalf("deleted record resurrected: live=%d", stats.IndexLive)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("resync queue never drained")
}
