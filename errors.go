package vektor

import (
	"errors"
	"fmt"

	"github.com/vektordb/vektor/engine"
	"github.com/vektordb/vektor/index"
	"github.com/vektordb/vektor/store"
)

var (
	// ErrNotFound is returned when no record exists for the given id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrEmptyExternalID is returned for mutations with an empty key.
	ErrEmptyExternalID = errors.New("external id must not be empty")

	// ErrDuplicateKey is returned when a write conflicts with a record
	// that already holds the external id.
	ErrDuplicateKey = errors.New("duplicate external id")

	// ErrCapacityExhausted is returned when the index cannot grow any
	// further. The failed operation can succeed again after Compact.
	ErrCapacityExhausted = errors.New("index capacity exhausted")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// translateError maps internal package errors onto the public error
// contract. Applied once, at the API boundary.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, store.ErrDuplicateKey) {
		return fmt.Errorf("%w: %w", ErrDuplicateKey, err)
	}

	// Validation normalization.
	if errors.Is(err, engine.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}
	if errors.Is(err, engine.ErrEmptyExternalID) {
		return fmt.Errorf("%w: %w", ErrEmptyExternalID, err)
	}
	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	// Resource exhaustion.
	if errors.Is(err, index.ErrCapacityExhausted) {
		return fmt.Errorf("%w: %w", ErrCapacityExhausted, err)
	}

	return err
}
