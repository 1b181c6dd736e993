//go:build llama

package embed

import (
	"context"
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"

	"glowrs/internal/repo"
)

func llamaBackend(o LoaderOptions) (Loader, error) {
	if o.Hub == nil {
		return nil, errors.New("llama backend needs a hub client")
	}
	if strings.TrimSpace(o.ModelFile) == "" {
		return nil, errors.New("llama backend needs a GGUF model file name")
	}
	return func(ref repo.Ref, device Device) (Encoder, error) {
		path, err := o.Hub.Fetch(context.Background(), ref, o.ModelFile)
		if err != nil {
			return nil, err
		}
		mo := []llama.ModelOption{llama.EnableEmbeddings}
		if o.MaxTokens > 0 {
			mo = append(mo, llama.SetContext(o.MaxTokens))
		}
		if device.IsGPU() && o.GPULayers > 0 {
			mo = append(mo, llama.SetGPULayers(o.GPULayers))
		}
		m, err := llama.New(path, mo...)
		if err != nil {
			return nil, err
		}
		enc := &llamaEncoder{model: m, threads: o.Threads}
		// Probe once so Dimensions is known before the first request.
		if _, _, err := enc.Encode([]string{"probe"}); err != nil {
			m.Free()
			return nil, err
		}
		return enc, nil
	}, nil
}

// llamaEncoder runs GGUF embedding models through llama.cpp. Pooling is done
// by llama.cpp itself.
type llamaEncoder struct {
	model   *llama.LLama
	threads int
	dim     int
}

func (e *llamaEncoder) Dimensions() int { return e.dim }

func (e *llamaEncoder) Encode(texts []string) ([][]float32, int, error) {
	if e.model == nil {
		return nil, 0, errors.New("llama model not initialized")
	}
	var po []llama.PredictOption
	if e.threads > 0 {
		po = append(po, llama.SetThreads(e.threads))
	}
	out := make([][]float32, len(texts))
	tokens := 0
	for i, text := range texts {
		v, err := e.model.Embeddings(text, po...)
		if err != nil {
			return nil, 0, err
		}
		if e.dim == 0 {
			e.dim = len(v)
		}
		out[i] = v
		// llama.cpp does not report the token count here; approximate by words.
		tokens += len(strings.Fields(text))
	}
	return out, tokens, nil
}

func (e *llamaEncoder) Close() error {
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}
