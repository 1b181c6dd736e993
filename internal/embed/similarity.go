package embed

import (
	"math"
	"sort"
)

// CosineSimilarity returns the cosine of the angle between a and b, or 0 if
// either is a zero vector or their lengths differ.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / math.Sqrt(na*nb))
}

// Pair is one scored pair of vector indices, I < J.
type Pair struct {
	I, J  int
	Score float32
}

// TopPairs scores every pair of vectors and returns the n most similar,
// best first. n <= 0 returns all pairs.
func TopPairs(vectors [][]float32, n int) []Pair {
	pairs := make([]Pair, 0, len(vectors)*(len(vectors)-1)/2)
	for i := range vectors {
		for j := i + 1; j < len(vectors); j++ {
			pairs = append(pairs, Pair{I: i, J: j, Score: CosineSimilarity(vectors[i], vectors[j])})
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].Score > pairs[b].Score })
	if n > 0 && n < len(pairs) {
		pairs = pairs[:n]
	}
	return pairs
}
