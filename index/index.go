// Package index defines the capability interface the synchronization engine
// consumes for approximate nearest-neighbor search.
//
// Implementations own their mutual-exclusion discipline: every method,
// including reads, may be called concurrently and must serialize internally.
package index

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExhausted is returned by Insert when the index cannot grow
	// its capacity any further. Fatal to the operation, not the process.
	ErrCapacityExhausted = errors.New("index capacity exhausted")
)

// ErrDimensionMismatch is a named error type for dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrIncompatibleSnapshot indicates a persisted snapshot that cannot serve
// the configured index (wrong format, dimension, or metric). Recoverable:
// the engine falls back to rebuilding the index from the record store.
type ErrIncompatibleSnapshot struct {
	Reason string
}

func (e *ErrIncompatibleSnapshot) Error() string {
	return "incompatible snapshot: " + e.Reason
}

// SearchResult is one approximate neighbor, tagged with the internal id the
// entry was inserted under.
type SearchResult struct {
	InternalID uint64
	Distance   float32
}

// Index is an in-memory ANN structure over internal-id-tagged vectors.
type Index interface {
	// Insert adds a new entry under the given internal id, growing capacity
	// automatically when occupancy would exceed it. Returns
	// ErrCapacityExhausted only when growth itself is impossible.
	Insert(internalID uint64, vector []float32) error

	// Tombstone marks the entry as deleted-but-present, excluding it from
	// future search results. Idempotent: tombstoning an unknown or already
	// tombstoned id is a no-op, never an error.
	Tombstone(internalID uint64)

	// Search returns up to k entries ordered by ascending distance,
	// excluding tombstoned entries. breadth trades recall for latency;
	// values below k are raised to k, values <= 0 use the configured
	// default.
	Search(query []float32, k, breadth int) ([]SearchResult, error)

	// Has reports whether a live (non-tombstoned) entry exists for the
	// internal id. Used by recovery to reconcile the index against the
	// record store.
	Has(internalID uint64) bool

	// Count returns live plus tombstoned occupancy.
	Count() int

	// Live returns the number of non-tombstoned entries.
	Live() int

	// Capacity returns the currently allocated capacity.
	Capacity() int

	// Dimension returns the configured vector dimension.
	Dimension() int

	// SaveToFile persists a snapshot of the index to path.
	SaveToFile(path string) error
}

// Provider constructs and restores Index instances. The engine uses it for
// recovery (load-or-rebuild) and for compaction (rebuild-and-swap) without
// knowing the concrete index type.
type Provider interface {
	// New returns a fresh, empty index.
	New() (Index, error)

	// LoadFromFile restores an index from a snapshot. Returns
	// *ErrIncompatibleSnapshot when the snapshot does not match the
	// configured dimension or metric.
	LoadFromFile(path string) (Index, error)
}
