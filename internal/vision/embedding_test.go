package vision

import (
	"math"
	"testing"

	"github.com/warren-data/habitat.report/internal/testutil"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := testutil.UnitEmbedding(128, 1)
	testutil.AssertInDelta(t, CosineSimilarity(v, v), 1.0, 1e-6)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	a := []float64{1, 0, 0}
	b := []float64{0, 1, 0}
	testutil.AssertInDelta(t, CosineSimilarity(a, b), 0.0, 1e-6)
}

func TestCosineSimilarityOpposite(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{-1, -2, -3}
	testutil.AssertInDelta(t, CosineSimilarity(a, b), -1.0, 1e-6)
}

func TestCosineSimilarityMismatchedOrEmpty(t *testing.T) {
	if got := CosineSimilarity(nil, nil); got != 0 {
		t.Errorf("CosineSimilarity(nil, nil) = %v, want 0", got)
	}
	if got := CosineSimilarity([]float64{1, 2}, []float64{1, 2, 3}); got != 0 {
		t.Errorf("CosineSimilarity(mismatched dims) = %v, want 0", got)
	}
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	a := []float64{0, 0, 0}
	b := []float64{1, 2, 3}
	got := CosineSimilarity(a, b)
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Fatalf("CosineSimilarity with zero vector = %v, want finite", got)
	}
}

func TestCosineDistance(t *testing.T) {
	v := testutil.UnitEmbedding(64, 2)
	testutil.AssertInDelta(t, CosineDistance(v, v), 0.0, 1e-6)
}

func TestBlendPrototype(t *testing.T) {
	proto := []float64{1, 0}
	sample := []float64{0, 1}
	blendPrototype(proto, sample, 0.7)

	testutil.AssertInDelta(t, proto[0], 0.7, 1e-9)
	testutil.AssertInDelta(t, proto[1], 0.3, 1e-9)
}

func TestBlendPrototypeMismatchedDimsNoop(t *testing.T) {
	proto := []float64{1, 0}
	blendPrototype(proto, []float64{1, 2, 3}, 0.7)
	if proto[0] != 1 || proto[1] != 0 {
		t.Errorf("mismatched blend modified prototype: %v", proto)
	}
}

func TestNormalize(t *testing.T) {
	v := []float64{3, 4}
	normalize(v)
	testutil.AssertInDelta(t, v[0], 0.6, 1e-9)
	testutil.AssertInDelta(t, v[1], 0.8, 1e-9)

	zero := []float64{0, 0}
	normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("normalize modified zero vector: %v", zero)
	}
}
