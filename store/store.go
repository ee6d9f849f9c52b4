// Package store provides the durable record store of the vektor engine: a
// keyed table mapping external ids to internal ids, vectors, and metadata.
//
// The store is the source of truth. The ANN index is a rebuildable cache over
// it, so every mutating operation here must be durable before it returns
// success.
package store

import (
	"context"
	"errors"

	"github.com/vektordb/vektor/model"
)

var (
	// ErrNotFound is returned when no record exists for the given id.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned by Create when the external id already
	// exists.
	ErrDuplicateKey = errors.New("duplicate external id")
)

// Store is the durable record store consumed by the synchronization engine.
//
// Internal ids are allocated by the store, are unique, monotonically
// increasing, and never reused after a delete.
type Store interface {
	// Create persists a new record and returns the allocated internal id.
	// Fails with ErrDuplicateKey if the external id already exists. The
	// allocation and the row write are atomic: no two concurrent creates
	// observe the same internal id.
	Create(ctx context.Context, externalID string, vector []float32, meta model.Metadata) (model.InternalID, error)

	// Update replaces the record's vector (if non-nil) and metadata (if
	// non-nil), retaining prior values otherwise. The internal id is
	// unchanged. Fails with ErrNotFound if the external id is absent.
	Update(ctx context.Context, externalID string, vector []float32, meta model.Metadata) (model.InternalID, error)

	// Get returns the record for the given external id.
	Get(ctx context.Context, externalID string) (model.Record, error)

	// GetByInternalID returns the record for the given internal id.
	GetByInternalID(ctx context.Context, id model.InternalID) (model.Record, error)

	// Delete removes the record and returns the freed internal id for
	// tombstoning. Fails with ErrNotFound if the external id is absent.
	Delete(ctx context.Context, externalID string) (model.InternalID, error)

	// Scan invokes fn for every live record in ascending internal id order.
	// A non-nil error from fn stops the scan and is returned. Scan is
	// restartable: it may be invoked any number of times.
	Scan(ctx context.Context, fn func(model.Record) error) error

	// Count returns the number of live records.
	Count(ctx context.Context) (int, error)

	// Close releases the underlying database handle.
	Close() error
}
