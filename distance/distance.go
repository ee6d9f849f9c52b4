// Package distance provides float32 vector math for the vektor engine:
// dot products, L2 norms, unit normalization, and the distance metrics the
// ANN index is configured with.
package distance

import (
	"fmt"
	"math"
	"slices"
)

// NormEpsilon is added to the L2 norm before division during normalization,
// so normalizing the zero vector yields the zero vector instead of NaNs.
const NormEpsilon = 1e-10

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm calculates the L2 norm of v.
func Norm(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// NormalizeInPlace scales v to unit L2 norm in place. The divisor carries
// NormEpsilon, so the zero vector stays zero. Idempotent up to float error.
func NormalizeInPlace(v []float32) {
	inv := 1 / (Norm(v) + NormEpsilon)
	for i := range v {
		v[i] *= inv
	}
}

// NormalizeCopy returns a unit-normalized copy of src.
func NormalizeCopy(src []float32) []float32 {
	dst := slices.Clone(src)
	NormalizeInPlace(dst)
	return dst
}

// Cosine returns the cosine distance between two unit-normalized vectors,
// derived as 1 - dot. Range [0, 2].
func Cosine(a, b []float32) float32 {
	return 1 - Dot(a, b)
}

// Metric identifies the distance metric the index is configured with.
// It is fixed at configuration time and persisted in snapshots.
type Metric int

const (
	// MetricCosine is cosine distance over unit-normalized vectors.
	MetricCosine Metric = iota

	// MetricDot is negated dot product (inner-product similarity as a
	// distance). Only meaningful for normalized or bounded vectors.
	MetricDot
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "cosine"
	case MetricDot:
		return "dot"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Func computes the distance between two vectors of equal length.
// Lower is closer.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricCosine:
		return Cosine, nil
	case MetricDot:
		return func(a, b []float32) float32 { return -Dot(a, b) }, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}
