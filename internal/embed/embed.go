// Package embed turns text into embedding vectors. It defines the request
// and response exchanged with a model's worker, the Encoder boundary
// implemented by numerical backends, and the Handler that runs on the
// worker thread.
package embed

// Request asks for one embedding per input text.
type Request struct {
	Inputs []string
	// Normalize L2-normalizes every output vector.
	Normalize bool
	// Dimensions truncates vectors to this many leading components when set
	// and smaller than the model's output size.
	Dimensions int
}

// Response carries embeddings in input order.
type Response struct {
	Embeddings   [][]float32
	Dimensions   int
	PromptTokens int
	// CacheHits counts inputs answered from the embedding cache.
	CacheHits int
}

// Encoder is a loaded embedding model. Implementations are used from a
// single worker thread and need not be safe for concurrent use.
type Encoder interface {
	// Encode returns one pooled vector per text and the number of tokens
	// consumed.
	Encode(texts []string) ([][]float32, int, error)
	Dimensions() int
	Close() error
}
