package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"glowrs/internal/infer"
	"glowrs/internal/logx"
	"glowrs/internal/repo"
)

// DefaultMaxInputs bounds the number of texts in one request.
const DefaultMaxInputs = 2048

// Handler serves embedding requests for one model. It lives on the model's
// worker thread, so it is never called concurrently.
type Handler struct {
	model   string
	encoder Encoder
	cfg     handlerConfig
}

type handlerConfig struct {
	cache        Cache
	cacheTimeout time.Duration
	maxInputs    int
	log          zerolog.Logger
}

// HandlerOption customizes a Handler.
type HandlerOption func(*handlerConfig)

// WithCache consults c before encoding and stores fresh vectors in it.
func WithCache(c Cache) HandlerOption {
	return func(h *handlerConfig) { h.cache = c }
}

// WithCacheTimeout bounds each cache round trip (default 200ms).
func WithCacheTimeout(d time.Duration) HandlerOption {
	return func(h *handlerConfig) { h.cacheTimeout = d }
}

// WithMaxInputs caps the texts per request.
func WithMaxInputs(n int) HandlerOption {
	return func(h *handlerConfig) { h.maxInputs = n }
}

// WithHandlerLogger sets the handler's logger.
func WithHandlerLogger(l zerolog.Logger) HandlerOption {
	return func(h *handlerConfig) { h.log = l }
}

// NewHandler wraps an already loaded encoder.
func NewHandler(model string, enc Encoder, opts ...HandlerOption) *Handler {
	cfg := handlerConfig{
		cacheTimeout: 200 * time.Millisecond,
		maxInputs:    DefaultMaxInputs,
		log:          logx.For("embed"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Handler{model: model, encoder: enc, cfg: cfg}
}

// NewHandlerFactory validates identifier now and returns a factory that
// loads the model when the worker thread calls it.
func NewHandlerFactory(identifier string, device Device, loader Loader, opts ...HandlerOption) (infer.HandlerFactory[Request, Response], error) {
	ref, err := repo.Parse(identifier)
	if err != nil {
		return nil, err
	}
	if loader == nil {
		return nil, fmt.Errorf("model %s: no loader", ref)
	}
	return func() (infer.RequestHandler[Request, Response], error) {
		start := time.Now()
		enc, err := loader(ref, device)
		if err != nil {
			return nil, fmt.Errorf("load %s on %s: %w", ref, device, err)
		}
		h := NewHandler(ref.Name, enc, opts...)
		h.cfg.log.Info().Str("model", ref.String()).Stringer("device", device).
			Int("dimensions", enc.Dimensions()).Dur("took", time.Since(start)).Msg("model loaded")
		return h, nil
	}, nil
}

// Model returns the logical model name.
func (h *Handler) Model() string { return h.model }

// Dimensions returns the encoder's output width.
func (h *Handler) Dimensions() int { return h.encoder.Dimensions() }

// Handle embeds every input. Cached vectors are reused; the rest are encoded
// in one batch.
func (h *Handler) Handle(req Request) (Response, error) {
	if err := h.validate(req); err != nil {
		return Response{}, err
	}
	out := make([][]float32, len(req.Inputs))
	var missIdx []int
	var missText []string
	for i, text := range req.Inputs {
		if v, ok := h.cacheGet(text); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missText = append(missText, text)
	}

	tokens := 0
	if len(missText) > 0 {
		vecs, n, err := h.encoder.Encode(missText)
		if err != nil {
			return Response{}, err
		}
		if len(vecs) != len(missText) {
			return Response{}, fmt.Errorf("encoder returned %d vectors for %d inputs", len(vecs), len(missText))
		}
		tokens = n
		for k, v := range vecs {
			out[missIdx[k]] = v
			h.cacheSet(missText[k], v)
		}
	}

	dim := h.encoder.Dimensions()
	if req.Dimensions > 0 && req.Dimensions < dim {
		dim = req.Dimensions
	}
	for i, v := range out {
		if len(v) < dim {
			return Response{}, fmt.Errorf("input %d: vector has %d components, want %d", i, len(v), dim)
		}
		v = v[:dim:dim]
		if req.Normalize {
			v = append([]float32(nil), v...)
			Normalize(v)
		}
		out[i] = v
	}
	h.cfg.log.Trace().Str("model", h.model).Int("inputs", len(req.Inputs)).
		Int("cache_hits", len(req.Inputs)-len(missText)).Int("tokens", tokens).Msg("embedded")
	return Response{
		Embeddings:   out,
		Dimensions:   dim,
		PromptTokens: tokens,
		CacheHits:    len(req.Inputs) - len(missText),
	}, nil
}

// Close releases the encoder. The worker calls it on shutdown.
func (h *Handler) Close() error { return h.encoder.Close() }

func (h *Handler) validate(req Request) error {
	if err := ValidateRequest(req, h.cfg.maxInputs); err != nil {
		return err
	}
	if d := h.encoder.Dimensions(); d > 0 && req.Dimensions > d {
		return ErrInvalidInput(fmt.Sprintf("dimensions %d exceeds model output size %d", req.Dimensions, d))
	}
	return nil
}

// ValidateRequest checks what can be checked without the model: at least
// one input, no more than maxInputs (0 means no limit), no empty text and
// non-negative dimensions.
func ValidateRequest(req Request, maxInputs int) error {
	if len(req.Inputs) == 0 {
		return ErrInvalidInput("no inputs")
	}
	if maxInputs > 0 && len(req.Inputs) > maxInputs {
		return ErrInvalidInput(fmt.Sprintf("%d inputs exceeds the limit of %d", len(req.Inputs), maxInputs))
	}
	for i, text := range req.Inputs {
		if text == "" {
			return ErrInvalidInput(fmt.Sprintf("input %d is empty", i))
		}
	}
	if req.Dimensions < 0 {
		return ErrInvalidInput("dimensions must be positive")
	}
	return nil
}

func (h *Handler) cacheGet(text string) ([]float32, bool) {
	if h.cfg.cache == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.cacheTimeout)
	defer cancel()
	return h.cfg.cache.Get(ctx, h.model, text)
}

func (h *Handler) cacheSet(text string, v []float32) {
	if h.cfg.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.cacheTimeout)
	defer cancel()
	h.cfg.cache.Set(ctx, h.model, text, v)
}
