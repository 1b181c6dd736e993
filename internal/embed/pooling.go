package embed

import (
	"fmt"
	"math"
	"strings"
)

// PoolingStrategy reduces per-token vectors to one sentence vector.
type PoolingStrategy string

const (
	PoolMean PoolingStrategy = "mean"
	PoolCLS  PoolingStrategy = "cls"
	PoolMax  PoolingStrategy = "max"
)

// ParsePooling accepts mean (default), cls and max.
func ParsePooling(s string) (PoolingStrategy, error) {
	switch p := PoolingStrategy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PoolMean, nil
	case PoolMean, PoolCLS, PoolMax:
		return p, nil
	default:
		return "", fmt.Errorf("unknown pooling strategy %q", s)
	}
}

// Pool reduces tokens (all the same width) with strategy. It returns nil for
// an empty token list.
func Pool(strategy PoolingStrategy, tokens [][]float32) []float32 {
	if len(tokens) == 0 {
		return nil
	}
	dim := len(tokens[0])
	out := make([]float32, dim)
	switch strategy {
	case PoolCLS:
		copy(out, tokens[0])
	case PoolMax:
		for i := range out {
			out[i] = float32(math.Inf(-1))
		}
		for _, t := range tokens {
			for i, v := range t {
				if v > out[i] {
					out[i] = v
				}
			}
		}
	default:
		for _, t := range tokens {
			for i, v := range t {
				out[i] += v
			}
		}
		n := float32(len(tokens))
		for i := range out {
			out[i] /= n
		}
	}
	return out
}

// Normalize scales v to unit L2 norm in place. Zero vectors are left alone.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
