package vektor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/vektordb/vektor/model"
	"github.com/vektordb/vektor/store"
)

func newTestDB(t *testing.T, optFns ...Option) *DB {
	t.Helper()

	db, err := Open(context.Background(), 3, optFns...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return db
}

func TestDB_EndToEnd(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	res, err := db.Upsert(ctx, "doc1", []float32{1, 0, 0}, model.Metadata{"lang": "en"})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if res.Status != model.StatusInserted {
		t.Fatalf("status: got %q, want %q", res.Status, model.StatusInserted)
	}

	if _, err := db.Upsert(ctx, "doc2", []float32{0, 1, 0}, nil); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	hits, err := db.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 || hits[0].ExternalID != "doc1" {
		t.Fatalf("hits: %v", hits)
	}

	if _, err := db.Delete(ctx, "doc1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	hits, err = db.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ExternalID != "doc2" {
		t.Fatalf("hits after delete: %v", hits)
	}
}

func TestDB_ErrorTranslation(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	t.Run("not found", func(t *testing.T) {
		if _, err := db.Get(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
		if _, err := db.Delete(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Delete: got %v, want ErrNotFound", err)
		}
		if _, err := db.Recommend(ctx, "ghost", 1); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Recommend: got %v, want ErrNotFound", err)
		}
		if _, err := db.Similarity(ctx, "ghost", "ghost"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Similarity: got %v, want ErrNotFound", err)
		}
	})

	t.Run("invalid k", func(t *testing.T) {
		if _, err := db.Search(ctx, []float32{1, 0, 0}, 0); !errors.Is(err, ErrInvalidK) {
			t.Fatalf("got %v, want ErrInvalidK", err)
		}
	})

	t.Run("empty external id", func(t *testing.T) {
		if _, err := db.Upsert(ctx, "", []float32{1, 0, 0}, nil); !errors.Is(err, ErrEmptyExternalID) {
			t.Fatalf("got %v, want ErrEmptyExternalID", err)
		}
	})

	t.Run("duplicate key", func(t *testing.T) {
		// Upsert semantics never surface this through DB, but a
		// conflicting write still maps onto the public sentinel.
		err := translateError(fmt.Errorf("create record: %w", store.ErrDuplicateKey))
		if !errors.Is(err, ErrDuplicateKey) {
			t.Fatalf("got %v, want ErrDuplicateKey", err)
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		var dimErr *ErrDimensionMismatch
		if _, err := db.Upsert(ctx, "doc1", []float32{1, 0}, nil); !errors.As(err, &dimErr) {
			t.Fatalf("got %v, want ErrDimensionMismatch", err)
		}
		if dimErr.Expected != 3 || dimErr.Actual != 2 {
			t.Fatalf("fields: expected=%d actual=%d", dimErr.Expected, dimErr.Actual)
		}
		if _, err := db.Search(ctx, []float32{1, 0}, 1); !errors.As(err, &dimErr) {
			t.Fatalf("Search: got %v, want ErrDimensionMismatch", err)
		}
	})

	t.Run("capacity exhausted", func(t *testing.T) {
		bounded := newTestDB(t, WithInitialCapacity(1), WithMaxCapacity(1))

		if _, err := bounded.Upsert(ctx, "a", []float32{1, 0, 0}, nil); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if _, err := bounded.Upsert(ctx, "b", []float32{0, 1, 0}, nil); !errors.Is(err, ErrCapacityExhausted) {
			t.Fatalf("got %v, want ErrCapacityExhausted", err)
		}
	})
}

func TestDB_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := Open(ctx, 3, WithDataDir(dir))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := db.Upsert(ctx, "doc1", []float32{1, 0, 0}, model.Metadata{"lang": "en"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := db.Upsert(ctx, "doc2", []float32{0, 1, 0}, nil); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(ctx, 3, WithDataDir(dir))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	rec, err := reopened.Get(ctx, "doc1")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if rec.Metadata["lang"] != "en" {
		t.Fatalf("metadata after reopen: %v", rec.Metadata)
	}

	hits, err := reopened.Search(ctx, []float32{0, 1, 0}, 1)
	if err != nil {
		t.Fatalf("Search after reopen failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ExternalID != "doc2" {
		t.Fatalf("hits after reopen: %v", hits)
	}
}

func TestDB_BatchUpsert(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	results := db.BatchUpsert(ctx, []model.UpsertItem{
		{ExternalID: "doc1", Vector: []float32{1, 0, 0}},
		{ExternalID: "doc2", Vector: []float32{0, 1}},
		{ExternalID: "doc3", Vector: []float32{0, 0, 1}},
	})

	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("valid items failed: %v, %v", results[0].Err, results[2].Err)
	}

	var dimErr *ErrDimensionMismatch
	if !errors.As(results[1].Err, &dimErr) {
		t.Fatalf("invalid item: got %v, want ErrDimensionMismatch", results[1].Err)
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Records != 2 {
		t.Fatalf("records: got %d, want 2", stats.Records)
	}
}

func TestDB_Metrics(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	db := newTestDB(t, WithMetricsCollector(metrics))

	if _, err := db.Upsert(ctx, "doc1", []float32{1, 0, 0}, nil); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := db.Search(ctx, []float32{1, 0, 0}, 1); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if _, err := db.Get(ctx, "ghost"); err == nil {
		t.Fatal("expected error")
	}

	stats := metrics.GetStats()
	if stats.UpsertCount != 1 {
		t.Fatalf("upsert count: got %d, want 1", stats.UpsertCount)
	}
	if stats.SearchCount != 1 {
		t.Fatalf("search count: got %d, want 1", stats.SearchCount)
	}
}

func TestDB_CompactReclaimsCapacity(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, WithInitialCapacity(2), WithMaxCapacity(2))

	if _, err := db.Upsert(ctx, "a", []float32{1, 0, 0}, nil); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := db.Upsert(ctx, "b", []float32{0, 1, 0}, nil); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := db.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// The tombstone still occupies the slot.
	if _, err := db.Upsert(ctx, "c", []float32{0, 0, 1}, nil); !errors.Is(err, ErrCapacityExhausted) {
		t.Fatalf("got %v, want ErrCapacityExhausted", err)
	}

	if err := db.Compact(ctx); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	if _, err := db.Upsert(ctx, "c", []float32{0, 0, 1}, nil); err != nil {
		t.Fatalf("Upsert after compact failed: %v", err)
	}
}
