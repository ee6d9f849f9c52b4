package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/vektordb/vektor/distance"
	"github.com/vektordb/vektor/index"
	"github.com/vektordb/vektor/model"
	"github.com/vektordb/vektor/store"
)

// Search returns the k nearest stored records to the query vector, ordered
// by descending cosine similarity.
//
// Without filters the ANN index answers the query. With filters the engine
// falls back to an exact scan over the store, because the index cannot
// restrict candidates by metadata: every filter key must match its value
// exactly (AND semantics) for a record to be considered at all.
//
// breadth widens the index's candidate exploration; values <= 0 use the
// index default, values below k are raised to k.
func (e *Engine) Search(ctx context.Context, query []float32, k int, filters map[string]any, breadth int) ([]model.SearchHit, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if dim := e.index().Dimension(); len(query) != dim {
		return nil, &index.ErrDimensionMismatch{Expected: dim, Actual: len(query)}
	}

	q := distance.NormalizeCopy(query)

	if len(filters) > 0 {
		return e.searchFiltered(ctx, q, k, filters)
	}

	return e.searchIndex(ctx, q, k, breadth)
}

// searchIndex is the approximate path: query the index, then resolve each
// internal id against the store.
func (e *Engine) searchIndex(ctx context.Context, q []float32, k, breadth int) ([]model.SearchHit, error) {
	idx := e.index()

	live := idx.Live()
	if live == 0 {
		return []model.SearchHit{}, nil
	}
	k = min(k, live)

	results, err := idx.Search(q, k, breadth)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	hits := make([]model.SearchHit, 0, len(results))
	for _, r := range results {
		rec, err := e.store.GetByInternalID(ctx, r.InternalID)
		if errors.Is(err, store.ErrNotFound) {
			// The index knows an id the store no longer holds, a remnant of
			// an interrupted delete. Drop the hit and repair the index so
			// the id stops surfacing.
			e.logger.WarnContext(ctx, "dropping vanished internal id from results",
				"internal_id", r.InternalID,
			)
			idx.Tombstone(r.InternalID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve internal id %d: %w", r.InternalID, err)
		}

		hits = append(hits, model.SearchHit{
			ExternalID: rec.ExternalID,
			InternalID: rec.InternalID,
			Score:      1 - r.Distance,
			Metadata:   rec.Metadata,
		})
	}

	return hits, nil
}

// searchFiltered is the exact path: scan every record, keep those matching
// all filters, rank by dot product. Stored vectors are unit-normalized, so
// the dot product is the cosine similarity.
func (e *Engine) searchFiltered(ctx context.Context, q []float32, k int, filters map[string]any) ([]model.SearchHit, error) {
	hits := make([]model.SearchHit, 0, k)

	err := e.store.Scan(ctx, func(rec model.Record) error {
		if !rec.Metadata.Matches(filters) {
			return nil
		}
		hits = append(hits, model.SearchHit{
			ExternalID: rec.ExternalID,
			InternalID: rec.InternalID,
			Score:      distance.Dot(q, rec.Vector),
			Metadata:   rec.Metadata,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}

	slices.SortFunc(hits, func(a, b model.SearchHit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			// Stable rank for equal scores.
			return cmp.Compare(a.InternalID, b.InternalID)
		}
	})

	if len(hits) > k {
		hits = hits[:k]
	}

	return hits, nil
}

// Recommend returns the k records most similar to an existing record,
// excluding the record itself.
func (e *Engine) Recommend(ctx context.Context, externalID string, k, breadth int) ([]model.SearchHit, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	rec, err := e.store.Get(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("lookup record: %w", err)
	}

	// Ask for one extra hit: the record is its own nearest neighbor.
	// Stored vectors are normalized on write, but a record written by an
	// older build or an external tool may not be; normalize again.
	hits, err := e.searchIndex(ctx, distance.NormalizeCopy(rec.Vector), k+1, breadth)
	if err != nil {
		return nil, err
	}

	out := hits[:0]
	for _, h := range hits {
		if h.ExternalID == externalID {
			continue
		}
		out = append(out, h)
	}
	if len(out) > k {
		out = out[:k]
	}

	return out, nil
}

// Similarity returns the cosine similarity between two stored records.
func (e *Engine) Similarity(ctx context.Context, externalIDA, externalIDB string) (float32, error) {
	a, err := e.store.Get(ctx, externalIDA)
	if err != nil {
		return 0, fmt.Errorf("lookup record %q: %w", externalIDA, err)
	}
	b, err := e.store.Get(ctx, externalIDB)
	if err != nil {
		return 0, fmt.Errorf("lookup record %q: %w", externalIDB, err)
	}

	return distance.Dot(a.Vector, b.Vector), nil
}
