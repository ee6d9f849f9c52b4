package hnsw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vektordb/vektor/testutil"
)

func TestHNSW_Recall(t *testing.T) {
	const (
		dim   = 8
		count = 300
		k     = 10
	)

	h, err := New(func(o *Options) {
		o.Dimension = dim
	})
	require.NoError(t, err)

	vectors := testutil.RandomVectors(42, count, dim)
	for i, vec := range vectors {
		require.NoError(t, h.Insert(uint64(i+1), vec))
	}

	queries := testutil.RandomVectors(7, 20, dim)

	total := 0.0
	for _, q := range queries {
		expected := testutil.BruteForceNearest(q, vectors, 1, k)

		results, err := h.Search(q, k, 200)
		require.NoError(t, err)

		got := make([]uint64, len(results))
		for i, r := range results {
			got[i] = r.InternalID
		}
		total += testutil.Recall(expected, got)
	}

	avg := total / float64(len(queries))
	assert.GreaterOrEqual(t, avg, 0.9, "average recall too low")
}
