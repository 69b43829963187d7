package vision

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// normEpsilon guards cosine similarity against zero-length vectors.
const normEpsilon = 1e-8

// CosineSimilarity returns the cosine of the angle between two embeddings,
// in [-1, 1]. Mismatched or empty vectors return 0 (treated as no match,
// never as identity).
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	return floats.Dot(a, b) / ((na + normEpsilon) * (nb + normEpsilon))
}

// CosineDistance returns 1 − cosine similarity (0 identical, 2 opposite).
func CosineDistance(a, b []float64) float64 {
	return 1 - CosineSimilarity(a, b)
}

// blendPrototype updates a running appearance prototype in place:
// proto = keep·proto + (1−keep)·sample. The exponential moving average
// favours long-run stability over the newest sample, damping single-frame
// appearance noise.
func blendPrototype(proto, sample []float64, keep float64) {
	if len(proto) != len(sample) {
		return
	}
	floats.Scale(keep, proto)
	floats.AddScaled(proto, 1-keep, sample)
}

// normalize scales v to unit length in place. Zero vectors are left as-is.
func normalize(v []float64) {
	n := floats.Norm(v, 2)
	if n < normEpsilon || math.IsNaN(n) {
		return
	}
	floats.Scale(1/n, v)
}
