package embed

import (
	"hash/fnv"
	"strings"
	"unicode"

	"glowrs/internal/repo"
)

// DefaultHashDimensions is the width of vectors produced by HashEncoder.
const DefaultHashDimensions = 384

// HashEncoder is a deterministic feature-hashing encoder. Every lowercased
// word maps to a pseudo-random vector seeded by the model name and the word,
// and the word vectors are pooled. Texts sharing words get similar vectors,
// which is enough to exercise the serving path without model weights.
type HashEncoder struct {
	seed    uint64
	dim     int
	pooling PoolingStrategy
	closed  bool
}

// NewHashEncoder returns an encoder whose output depends on ref's name.
func NewHashEncoder(ref repo.Ref, dim int, pooling PoolingStrategy) *HashEncoder {
	if dim <= 0 {
		dim = DefaultHashDimensions
	}
	if pooling == "" {
		pooling = PoolMean
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(ref.Name))
	return &HashEncoder{seed: h.Sum64(), dim: dim, pooling: pooling}
}

func (e *HashEncoder) Dimensions() int { return e.dim }

func (e *HashEncoder) Encode(texts []string) ([][]float32, int, error) {
	if e.closed {
		return nil, 0, ErrDependencyUnavailable("hash encoder closed")
	}
	out := make([][]float32, len(texts))
	tokens := 0
	for i, text := range texts {
		words := tokenize(text)
		vecs := make([][]float32, len(words))
		for j, w := range words {
			vecs[j] = e.wordVector(w)
		}
		out[i] = Pool(e.pooling, vecs)
		tokens += len(words)
	}
	return out, tokens, nil
}

func (e *HashEncoder) Close() error {
	e.closed = true
	return nil
}

func (e *HashEncoder) wordVector(w string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(w))
	state := h.Sum64() ^ e.seed
	v := make([]float32, e.dim)
	for i := range v {
		state = splitmix64(state)
		// Top 24 bits mapped to [-1, 1).
		v[i] = float32(state>>40)/float32(1<<23) - 1
	}
	return v
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	z := x
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// tokenize splits on anything that is not a letter or digit. Text with no
// such runes becomes a single token so it still gets a vector.
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return []string{text}
	}
	return words
}
