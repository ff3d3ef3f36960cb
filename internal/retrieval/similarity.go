package retrieval

import (
	"errors"
	"math"
)

// ErrDimensionMismatch indicates two vectors of unequal dimension were
// compared. Mixed dimensions within one result set mean corrupted data, not a
// low score, so the comparison fails loudly instead of returning a value.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// CosineSimilarity returns dot(a,b) / (|a| * |b|) in [-1, 1].
// If either vector has zero magnitude the result is 0.0; degenerate vectors
// rank below everything rather than failing the whole search.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dot, aNormSq, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aNormSq += float64(a[i]) * float64(a[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}

	if aNormSq == 0 || bNormSq == 0 {
		return 0, nil
	}
	return float32(dot / (math.Sqrt(aNormSq) * math.Sqrt(bNormSq))), nil
}
