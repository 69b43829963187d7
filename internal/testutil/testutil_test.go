package testutil

import (
	"math"
	"testing"
)

func TestUnitEmbeddingIsUnitLength(t *testing.T) {
	for _, dim := range []int{8, 128, 512} {
		v := UnitEmbedding(dim, 1)
		var norm float64
		for _, x := range v {
			norm += x * x
		}
		if math.Abs(math.Sqrt(norm)-1.0) > 1e-9 {
			t.Errorf("dim %d: norm = %v, want 1.0", dim, math.Sqrt(norm))
		}
	}
}

func TestUnitEmbeddingDeterministic(t *testing.T) {
	a := UnitEmbedding(64, 7)
	b := UnitEmbedding(64, 7)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings with equal seeds differ at index %d", i)
		}
	}
}

func TestUnitEmbeddingSeedsDiffer(t *testing.T) {
	a := UnitEmbedding(64, 1)
	b := UnitEmbedding(64, 2)

	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	// Distinct seeds should not be near-parallel.
	if math.Abs(dot) > 0.9 {
		t.Errorf("cosine between distinct seeds = %v, want |cos| <= 0.9", dot)
	}
}

func TestPerturbEmbeddingStaysClose(t *testing.T) {
	base := UnitEmbedding(128, 3)
	noisy := PerturbEmbedding(base, 0.1, 99)

	var dot, norm float64
	for i := range base {
		dot += base[i] * noisy[i]
		norm += noisy[i] * noisy[i]
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-9 {
		t.Errorf("perturbed norm = %v, want 1.0", math.Sqrt(norm))
	}
	if dot < 0.9 {
		t.Errorf("cosine to base = %v, want >= 0.9 for alpha 0.1", dot)
	}
}
