package embed

import (
	"fmt"
	"sort"
	"strings"

	"glowrs/internal/hub"
	"glowrs/internal/repo"
)

// Loader builds an Encoder for a model. It runs on the model's worker thread.
type Loader func(ref repo.Ref, device Device) (Encoder, error)

// LoaderOptions configure the backends. Fields a backend does not use are
// ignored.
type LoaderOptions struct {
	Pooling PoolingStrategy
	// Dimensions sets the hash backend's output width.
	Dimensions int
	// Hub fetches model files for the onnx backend.
	Hub *hub.Client
	// Threads used by native runtimes; 0 lets them choose.
	Threads int
	// MaxTokens truncates tokenized inputs (onnx) or sets the context size (llama).
	MaxTokens int
	// GPULayers offloads layers for the llama backend on GPU devices.
	GPULayers int
	// OnnxLibrary is the path to the onnxruntime shared library.
	OnnxLibrary string
	// ModelFile is the GGUF file name inside the repository (llama).
	ModelFile string
}

type backendFunc func(LoaderOptions) (Loader, error)

var backends = map[string]backendFunc{
	"hash":  hashBackend,
	"onnx":  onnxBackend,
	"llama": llamaBackend,
}

// Backends lists the registered backend names.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewLoader returns the loader for backend ("hash" when empty).
func NewLoader(backend string, o LoaderOptions) (Loader, error) {
	name := strings.ToLower(strings.TrimSpace(backend))
	if name == "" {
		name = "hash"
	}
	fn, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown embedding backend %q (have %s)", backend, strings.Join(Backends(), ", "))
	}
	if o.Pooling == "" {
		o.Pooling = PoolMean
	}
	return fn(o)
}

func hashBackend(o LoaderOptions) (Loader, error) {
	return func(ref repo.Ref, _ Device) (Encoder, error) {
		return NewHashEncoder(ref, o.Dimensions, o.Pooling), nil
	}, nil
}
