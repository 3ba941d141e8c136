package embedding

import "math"

// CosineSimilarity computes dot(a,b) / (||a||*||b||) with float64
// accumulation. Defined as 0 when either norm is zero or the lengths differ.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Combine builds the weighted linear combination wa*a + wb*b and re-normalizes
// it to unit length. A zero-norm combination yields the zero vector. The
// inputs must share a length; otherwise nil is returned.
func Combine(a []float32, wa float64, b []float32, wb float64) []float32 {
	if len(a) != len(b) || len(a) == 0 {
		return nil
	}

	combined := make([]float32, len(a))
	var norm float64
	for i := range a {
		v := wa*float64(a[i]) + wb*float64(b[i])
		combined[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		return combined
	}
	for i := range combined {
		combined[i] = float32(float64(combined[i]) / norm)
	}
	return combined
}
