// Package metric provides the distance/similarity kernels shared by every
// index, and the single "larger is better" score convention they rank by.
package metric

import "github.com/iwinterknight/vectordb/internal/vectordb/model"

// Dot returns the dot product of two equal-length vectors.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// L2Squared returns the squared Euclidean distance between two equal-length
// vectors.
func L2Squared(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Cosine returns the cosine similarity of two equal-length vectors. Callers
// guarantee both are already L2-normalized, so this is just the dot product.
func Cosine(a, b []float32) float32 {
	return Dot(a, b)
}

// Score computes the unified "larger is better" ranking score for the given
// metric: raw cosine similarity, or negated squared L2 distance.
func Score(m model.Metric, a, b []float32) float32 {
	if m == model.MetricL2 {
		return -L2Squared(a, b)
	}
	return Cosine(a, b)
}
