// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"math"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertInDelta checks that got is within delta of want.
func AssertInDelta(t *testing.T, got, want, delta float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > delta {
		t.Errorf("got %v, want %v ± %v", got, want, delta)
	}
}

// UnitEmbedding returns a deterministic unit-length embedding of the given
// dimension. Different seeds produce near-orthogonal vectors for realistic
// re-identification fixtures.
func UnitEmbedding(dim int, seed int64) []float64 {
	v := make([]float64, dim)
	var norm float64
	x := float64(seed)*12.9898 + 78.233
	for i := range v {
		x = math.Mod(x*43758.5453+float64(i)*0.618, 1000.0)
		v[i] = math.Sin(x)
		norm += v[i] * v[i]
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

// PerturbEmbedding returns a unit-length copy of v with small deterministic
// noise mixed in. alpha controls the noise share; small alpha keeps cosine
// similarity to v high.
func PerturbEmbedding(v []float64, alpha float64, seed int64) []float64 {
	noise := UnitEmbedding(len(v), seed)
	out := make([]float64, len(v))
	var norm float64
	for i := range v {
		out[i] = (1-alpha)*v[i] + alpha*noise[i]
		norm += out[i] * out[i]
	}
	norm = math.Sqrt(norm)
	for i := range out {
		out[i] /= norm
	}
	return out
}
