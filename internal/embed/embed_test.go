package embed

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glowrs/internal/repo"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestParseDevice(t *testing.T) {
	for in, want := range map[string]Device{
		"":       CPUDevice,
		"CPU":    CPUDevice,
		"cuda":   {Kind: CUDA},
		"cuda:1": {Kind: CUDA, Ordinal: 1},
		"metal":  {Kind: Metal},
	} {
		got, err := ParseDevice(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"tpu", "cuda:x", "cuda:-1", "cpu:0", "metal:1"} {
		_, err := ParseDevice(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "cuda:2", Device{Kind: CUDA, Ordinal: 2}.String())
	assert.Equal(t, "cpu", Device{}.String())
	assert.True(t, Device{Kind: Metal}.IsGPU())
}

func TestPool(t *testing.T) {
	tokens := [][]float32{{1, -2}, {3, 4}}
	assert.Equal(t, []float32{2, 1}, Pool(PoolMean, tokens))
	assert.Equal(t, []float32{1, -2}, Pool(PoolCLS, tokens))
	assert.Equal(t, []float32{3, 4}, Pool(PoolMax, tokens))
	assert.Nil(t, Pool(PoolMean, nil))

	p, err := ParsePooling("")
	require.NoError(t, err)
	assert.Equal(t, PoolMean, p)
	_, err = ParsePooling("sum")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	zero := []float32{0, 0}
	Normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestHashEncoderDeterministic(t *testing.T) {
	a := NewHashEncoder(repo.MustParse("org/modelA"), 64, PoolMean)
	b := NewHashEncoder(repo.MustParse("org/modelA"), 64, PoolMean)
	other := NewHashEncoder(repo.MustParse("org/modelB"), 64, PoolMean)

	va, n, err := a.Encode([]string{"The cat sits outside"})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	require.Len(t, va[0], 64)
	vb, _, _ := b.Encode([]string{"The cat sits outside"})
	assert.Equal(t, va, vb)
	vo, _, _ := other.Encode([]string{"The cat sits outside"})
	assert.NotEqual(t, va, vo, "model name seeds the vectors")

	require.NoError(t, a.Close())
	_, _, err = a.Encode([]string{"x"})
	assert.True(t, IsDependencyUnavailable(err))
}

// Sentences sharing words should score higher than unrelated ones.
func TestHashEncoderSimilarityOrdering(t *testing.T) {
	enc := NewHashEncoder(repo.MustParse("org/modelA"), 256, PoolMean)
	vecs, _, err := enc.Encode([]string{
		"The new movie is awesome",
		"The new movie is so great",
		"Do you like pizza?",
	})
	require.NoError(t, err)
	related := CosineSimilarity(vecs[0], vecs[1])
	unrelated := CosineSimilarity(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)

	top := TopPairs(vecs, 1)
	require.Len(t, top, 1)
	assert.Equal(t, Pair{I: 0, J: 1, Score: related}, top[0])
	assert.Len(t, TopPairs(vecs, 0), 3)
	assert.Empty(t, TopPairs(nil, 5))
}

func TestCosineSimilarityEdges(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestNewLoader(t *testing.T) {
	l, err := NewLoader("", LoaderOptions{Dimensions: 16})
	require.NoError(t, err)
	enc, err := l(repo.MustParse("org/a"), CPUDevice)
	require.NoError(t, err)
	assert.Equal(t, 16, enc.Dimensions())

	_, err = NewLoader("candle", LoaderOptions{})
	assert.ErrorContains(t, err, "unknown embedding backend")
	assert.Equal(t, []string{"hash", "llama", "onnx"}, Backends())
}

// countingEncoder records how many texts reached the model.
type countingEncoder struct {
	dim     int
	encoded []string
	err     error
	closed  bool
}

func (c *countingEncoder) Encode(texts []string) ([][]float32, int, error) {
	if c.err != nil {
		return nil, 0, c.err
	}
	c.encoded = append(c.encoded, texts...)
	out := make([][]float32, len(texts))
	for i, s := range texts {
		v := make([]float32, c.dim)
		for j := range v {
			v[j] = float32(len(s) + j)
		}
		out[i] = v
	}
	return out, 2 * len(texts), nil
}

func (c *countingEncoder) Dimensions() int { return c.dim }
func (c *countingEncoder) Close() error    { c.closed = true; return nil }

func TestHandlerValidation(t *testing.T) {
	h := NewHandler("org/a", &countingEncoder{dim: 4}, WithMaxInputs(2))
	for name, req := range map[string]Request{
		"empty list":     {},
		"empty string":   {Inputs: []string{"ok", ""}},
		"too many":       {Inputs: []string{"a", "b", "c"}},
		"negative dims":  {Inputs: []string{"a"}, Dimensions: -1},
		"dims too large": {Inputs: []string{"a"}, Dimensions: 5},
	} {
		_, err := h.Handle(req)
		assert.True(t, IsInvalidInput(err), "%s: %v", name, err)
	}
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(Request{Inputs: []string{"a", "b"}, Dimensions: 8}, 2))
	assert.NoError(t, ValidateRequest(Request{Inputs: []string{"a", "b", "c"}}, 0), "0 means no limit")
	for name, req := range map[string]Request{
		"empty list":    {},
		"empty string":  {Inputs: []string{""}},
		"too many":      {Inputs: []string{"a", "b", "c"}},
		"negative dims": {Inputs: []string{"a"}, Dimensions: -1},
	} {
		assert.True(t, IsInvalidInput(ValidateRequest(req, 2)), name)
	}
}

func TestHandlerEncodesNormalizesAndTruncates(t *testing.T) {
	enc := &countingEncoder{dim: 4}
	h := NewHandler("org/a", enc)

	resp, err := h.Handle(Request{Inputs: []string{"ab", "abcd"}, Normalize: true, Dimensions: 2})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, 2, resp.Dimensions)
	assert.Equal(t, 4, resp.PromptTokens)
	for _, v := range resp.Embeddings {
		assert.Len(t, v, 2)
		assert.InDelta(t, 1.0, norm(v), 1e-5)
	}

	raw, err := h.Handle(Request{Inputs: []string{"ab"}})
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3, 4, 5}, raw.Embeddings[0])

	require.NoError(t, h.Close())
	assert.True(t, enc.closed)
}

func TestHandlerPropagatesEncoderError(t *testing.T) {
	boom := errors.New("tensor shape mismatch")
	h := NewHandler("org/a", &countingEncoder{dim: 4, err: boom})
	_, err := h.Handle(Request{Inputs: []string{"x"}})
	assert.ErrorIs(t, err, boom)
}

func TestHandlerUsesCache(t *testing.T) {
	enc := &countingEncoder{dim: 3}
	cache := NewMemoryCache(8)
	h := NewHandler("org/a", enc, WithCache(cache))

	_, err := h.Handle(Request{Inputs: []string{"hello", "world"}})
	require.NoError(t, err)
	resp, err := h.Handle(Request{Inputs: []string{"world", "again"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"hello", "world", "again"}, enc.encoded)
	assert.Equal(t, 1, resp.CacheHits)
	assert.Equal(t, 2, resp.PromptTokens)
	assert.Equal(t, []float32{5, 6, 7}, resp.Embeddings[0])
	st := cache.Stats()
	assert.EqualValues(t, 1, st.Hits)
	assert.Equal(t, 3, st.Size)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2)
	c.Set(ctx, "m", "a", []float32{1})
	c.Set(ctx, "m", "b", []float32{2})
	_, ok := c.Get(ctx, "m", "a")
	require.True(t, ok)
	c.Set(ctx, "m", "c", []float32{3})

	_, ok = c.Get(ctx, "m", "b")
	assert.False(t, ok, "b was least recently used")
	v, ok := c.Get(ctx, "m", "a")
	assert.True(t, ok)
	assert.Equal(t, []float32{1}, v)

	_, ok = c.Get(ctx, "other", "a")
	assert.False(t, ok, "keys are scoped by model")

	v[0] = 42
	v2, _ := c.Get(ctx, "m", "a")
	assert.Equal(t, float32(1), v2[0], "callers get copies")
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	c, err := NewRedisCache(ctx, mr.Addr(), time.Minute)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get(ctx, "org/a", "hello")
	assert.False(t, ok)

	c.Set(ctx, "org/a", "hello", []float32{0.5, -1.25, 3})
	v, ok := c.Get(ctx, "org/a", "hello")
	require.True(t, ok)
	assert.Equal(t, []float32{0.5, -1.25, 3}, v)
	assert.True(t, mr.Exists(CacheKey("org/a", "hello")))

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, "org/a", "hello")
	assert.False(t, ok, "entry expired")

	st := c.Stats()
	assert.EqualValues(t, 1, st.Hits)
	assert.EqualValues(t, 2, st.Misses)
}

func TestRedisCacheURLAndUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewRedisCache(context.Background(), "redis://"+mr.Addr()+"/0", 0)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err = NewRedisCache(ctx, "127.0.0.1:1", 0)
	assert.Error(t, err)
}

func TestHandlerFactoryLoadsLazily(t *testing.T) {
	var loaded []repo.Ref
	loader := func(ref repo.Ref, d Device) (Encoder, error) {
		loaded = append(loaded, ref)
		return &countingEncoder{dim: 2}, nil
	}
	f, err := NewHandlerFactory("org/modelA:v1", CPUDevice, loader)
	require.NoError(t, err)
	assert.Empty(t, loaded, "factory must not load eagerly")

	h, err := f()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, repo.Ref{Name: "org/modelA", Revision: "v1"}, loaded[0])
	resp, err := h.Handle(Request{Inputs: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Dimensions)

	_, err = NewHandlerFactory("not-a-repo", CPUDevice, loader)
	assert.ErrorIs(t, err, repo.ErrInvalidIdentifier)

	failing := func(repo.Ref, Device) (Encoder, error) {
		return nil, ErrDependencyUnavailable("onnx support not built")
	}
	f, err = NewHandlerFactory("org/modelB", CPUDevice, failing)
	require.NoError(t, err)
	_, err = f()
	assert.True(t, IsDependencyUnavailable(err))
}
