// Package testutil provides deterministic helpers for tests: seeded vector
// generation and brute-force nearest-neighbor ground truth.
package testutil

import (
	"math"
	"math/rand"
	"sort"

	"github.com/vektordb/vektor/distance"
)

// Neighbor is one brute-force result, ordered by ascending distance.
type Neighbor struct {
	ID       uint64
	Distance float32
}

// RandomVectors generates count unit-normalized vectors of the given
// dimension from a seeded source, so runs are reproducible.
func RandomVectors(seed int64, count, dimension int) [][]float32 {
	rng := rand.New(rand.NewSource(seed))

	vectors := make([][]float32, count)
	for i := range vectors {
		vec := make([]float32, dimension)
		for j := range vec {
			vec[j] = float32(rng.NormFloat64())
		}
		distance.NormalizeInPlace(vec)
		vectors[i] = vec
	}
	return vectors
}

// BruteForceNearest computes the exact k nearest vectors to the query by
// cosine distance. IDs index into vectors starting at base.
func BruteForceNearest(query []float32, vectors [][]float32, base uint64, k int) []Neighbor {
	neighbors := make([]Neighbor, 0, len(vectors))
	for i, vec := range vectors {
		neighbors = append(neighbors, Neighbor{
			ID:       base + uint64(i),
			Distance: distance.Cosine(query, vec),
		})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})

	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors
}

// Recall reports the fraction of expected ids present in got, in [0, 1].
func Recall(expected []Neighbor, got []uint64) float64 {
	if len(expected) == 0 {
		return 1
	}

	want := make(map[uint64]struct{}, len(expected))
	for _, n := range expected {
		want[n.ID] = struct{}{}
	}

	found := 0
	for _, id := range got {
		if _, ok := want[id]; ok {
			found++
		}
	}
	return float64(found) / float64(len(expected))
}

// AlmostEqual reports whether two floats differ by less than eps.
func AlmostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}
