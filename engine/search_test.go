package engine

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/vektordb/vektor/model"
	"github.com/vektordb/vektor/store"
)

// seedCorpus loads three documents with distinct directions and metadata.
func seedCorpus(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()

	docs := []struct {
		id   string
		vec  []float32
		meta model.Metadata
	}{
		{"doc1", []float32{1, 0, 0}, model.Metadata{"lang": "en", "year": float64(2020)}},
		{"doc2", []float32{0.9, 0.1, 0}, model.Metadata{"lang": "en", "year": float64(2021)}},
		{"doc3", []float32{0, 0, 1}, model.Metadata{"lang": "de", "year": float64(2020)}},
	}
	for _, d := range docs {
		if _, err := e.Upsert(ctx, d.id, d.vec, d.meta); err != nil {
			t.Fatalf("Upsert %s failed: %v", d.id, err)
		}
	}
}

func TestSearch_Ranking(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	seedCorpus(t, e)

	hits, err := e.Search(ctx, []float32{1, 0, 0}, 3, nil, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("hits: got %d, want 3", len(hits))
	}

	// doc1 aligns exactly, doc2 nearly, doc3 is orthogonal.
	if hits[0].ExternalID != "doc1" || hits[1].ExternalID != "doc2" || hits[2].ExternalID != "doc3" {
		t.Fatalf("ranking: got %s, %s, %s", hits[0].ExternalID, hits[1].ExternalID, hits[2].ExternalID)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i-1].Score < hits[i].Score {
			t.Fatalf("scores not descending: %v", hits)
		}
	}
	if math.Abs(float64(hits[0].Score)-1) > 1e-5 {
		t.Fatalf("exact match score: got %f, want 1", hits[0].Score)
	}
}

func TestSearch_KClamped(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	seedCorpus(t, e)

	hits, err := e.Search(ctx, []float32{1, 0, 0}, 100, nil, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("hits: got %d, want 3", len(hits))
	}
}

func TestSearch_InvalidK(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if _, err := e.Search(ctx, []float32{1, 0, 0}, 0, nil, 0); !errors.Is(err, ErrInvalidK) {
		t.Fatalf("k=0: got %v, want ErrInvalidK", err)
	}
	if _, err := e.Search(ctx, []float32{1, 0, 0}, -1, nil, 0); !errors.Is(err, ErrInvalidK) {
		t.Fatalf("k=-1: got %v, want ErrInvalidK", err)
	}
}

func TestSearch_EmptyEngine(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	hits, err := e.Search(ctx, []float32{1, 0, 0}, 5, nil, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("hits: got %d, want 0", len(hits))
	}
}

func TestSearch_Filtered(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	seedCorpus(t, e)

	t.Run("single filter", func(t *testing.T) {
		hits, err := e.Search(ctx, []float32{1, 0, 0}, 10, map[string]any{"lang": "en"}, 0)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(hits) != 2 {
			t.Fatalf("hits: got %d, want 2", len(hits))
		}
		if hits[0].ExternalID != "doc1" || hits[1].ExternalID != "doc2" {
			t.Fatalf("ranking: got %s, %s", hits[0].ExternalID, hits[1].ExternalID)
		}
	})

	t.Run("conjunction", func(t *testing.T) {
		hits, err := e.Search(ctx, []float32{1, 0, 0}, 10, map[string]any{"lang": "en", "year": 2020}, 0)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(hits) != 1 || hits[0].ExternalID != "doc1" {
			t.Fatalf("hits: %v", hits)
		}
	})

	t.Run("int filter matches json number", func(t *testing.T) {
		// Metadata numbers round-trip as float64; an int filter still hits.
		hits, err := e.Search(ctx, []float32{0, 0, 1}, 10, map[string]any{"year": 2020}, 0)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(hits) != 2 {
			t.Fatalf("hits: got %d, want 2", len(hits))
		}
	})

	t.Run("no match", func(t *testing.T) {
		hits, err := e.Search(ctx, []float32{1, 0, 0}, 10, map[string]any{"lang": "fr"}, 0)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(hits) != 0 {
			t.Fatalf("hits: got %d, want 0", len(hits))
		}
	})

	t.Run("missing key never matches", func(t *testing.T) {
		hits, err := e.Search(ctx, []float32{1, 0, 0}, 10, map[string]any{"nope": "x"}, 0)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(hits) != 0 {
			t.Fatalf("hits: got %d, want 0", len(hits))
		}
	})
}

func TestSearch_VanishedIDDropped(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	e, err := New(ctx, s, testProvider())
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	seedCorpus(t, e)

	// Remove doc2 behind the engine's back: the index still references it.
	if _, err := s.Delete(ctx, "doc2"); err != nil {
		t.Fatalf("store delete failed: %v", err)
	}

	hits, err := e.Search(ctx, []float32{1, 0, 0}, 3, nil, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, h := range hits {
		if h.ExternalID == "doc2" {
			t.Fatalf("vanished id surfaced: %v", hits)
		}
	}

	// The drop also repaired the index.
	stats, _ := e.Stats(ctx)
	if stats.IndexLive != 2 {
		t.Fatalf("index live after repair: got %d, want 2", stats.IndexLive)
	}
}

func TestRecommend(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	seedCorpus(t, e)

	hits, err := e.Recommend(ctx, "doc1", 2, 0)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits: got %d, want 2", len(hits))
	}
	for _, h := range hits {
		if h.ExternalID == "doc1" {
			t.Fatalf("recommendation includes the record itself: %v", hits)
		}
	}
	if hits[0].ExternalID != "doc2" {
		t.Fatalf("nearest: got %s, want doc2", hits[0].ExternalID)
	}
}

func TestRecommend_NormalizesStoredVector(t *testing.T) {
	ctx := context.Background()

	// Records written to the store by another tool may carry denormalized
	// vectors. Recommend must not use them as queries verbatim.
	s := store.NewMemory()
	if _, err := s.Create(ctx, "a", []float32{3, 0, 0}, nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Create(ctx, "b", []float32{1, 0, 0}, nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	e, err := New(ctx, s, testProvider())
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}

	hits, err := e.Recommend(ctx, "a", 1, 0)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ExternalID != "b" {
		t.Fatalf("hits: got %v, want [b]", hits)
	}
	if hits[0].Score < 0.99 || hits[0].Score > 1.01 {
		t.Fatalf("score from denormalized source vector: got %f, want ~1", hits[0].Score)
	}
}

func TestRecommend_NotFound(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if _, err := e.Recommend(ctx, "ghost", 2, 0); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSimilarity(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	seedCorpus(t, e)

	t.Run("identical", func(t *testing.T) {
		sim, err := e.Similarity(ctx, "doc1", "doc1")
		if err != nil {
			t.Fatalf("Similarity failed: %v", err)
		}
		if math.Abs(float64(sim)-1) > 1e-5 {
			t.Fatalf("self similarity: got %f, want 1", sim)
		}
	})

	t.Run("orthogonal", func(t *testing.T) {
		sim, err := e.Similarity(ctx, "doc1", "doc3")
		if err != nil {
			t.Fatalf("Similarity failed: %v", err)
		}
		if math.Abs(float64(sim)) > 1e-5 {
			t.Fatalf("orthogonal similarity: got %f, want 0", sim)
		}
	})

	t.Run("missing record", func(t *testing.T) {
		if _, err := e.Similarity(ctx, "doc1", "ghost"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})
}
