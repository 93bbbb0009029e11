package rag

// SimilarityFromDistance converts an index distance into a similarity score
// in [0,1]. A nil distance yields 0.
func SimilarityFromDistance(distance *float64) float64 {
	if distance == nil {
		return 0
	}
	return clamp01(1 - *distance)
}

// Float64 returns a pointer to v. Handy for building Chunk.Distance.
func Float64(v float64) *float64 { return &v }

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
