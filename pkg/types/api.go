package types

import (
	"bytes"
	"encoding/json"
	"errors"
)

// EmbeddingInput is the "input" field of an embeddings request: either a
// single string or an array of strings.
type EmbeddingInput []string

// UnmarshalJSON accepts a string or an array of strings. Token arrays are
// rejected.
func (in *EmbeddingInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*in = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*in = EmbeddingInput{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return errors.New("input must be a string or an array of strings")
	}
	*in = list
	return nil
}

// EmbeddingsRequest is the body of POST /v1/embeddings.
type EmbeddingsRequest struct {
	// Optional model name. If empty, the server default is used.
	// example: jinaai/jina-embeddings-v2-small-en
	Model string `json:"model,omitempty" example:"jinaai/jina-embeddings-v2-small-en"`
	// Text or list of texts to embed.
	Input EmbeddingInput `json:"input" swaggertype:"array,string" example:"The cat sits outside"`
	// "float" (default) or "base64" (little-endian float32).
	// example: float
	EncodingFormat string `json:"encoding_format,omitempty" example:"float"`
	// Truncate vectors to this many leading components.
	// example: 256
	Dimensions int `json:"dimensions,omitempty" example:"256"`
	// Opaque end-user identifier, logged only.
	User string `json:"user,omitempty"`
}

// Embedding is one vector of an embeddings response.
type Embedding struct {
	// Always "embedding".
	// example: embedding
	Object string `json:"object" example:"embedding"`
	// Position of the corresponding input.
	// example: 0
	Index int `json:"index" example:"0"`
	// []float32, or a base64 string when encoding_format is base64.
	Embedding any `json:"embedding" swaggertype:"array,number"`
}

// EmbeddingsUsage reports token counts.
type EmbeddingsUsage struct {
	// example: 12
	PromptTokens int `json:"prompt_tokens" example:"12"`
	// example: 12
	TotalTokens int `json:"total_tokens" example:"12"`
}

// EmbeddingsResponse is returned by POST /v1/embeddings.
type EmbeddingsResponse struct {
	// Always "list".
	// example: list
	Object string      `json:"object" example:"list"`
	Data   []Embedding `json:"data"`
	// Model that produced the vectors.
	// example: jinaai/jina-embeddings-v2-small-en
	Model string          `json:"model" example:"jinaai/jina-embeddings-v2-small-en"`
	Usage EmbeddingsUsage `json:"usage"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	// Error message.
	// example: model not found: org/missing
	Message string `json:"message" example:"model not found: org/missing"`
	// Error category.
	// example: not_found
	Type string `json:"type" example:"not_found"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// ErrorResponse is a consistent JSON error payload, shaped like OpenAI's.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ModelStatus summarizes one model's worker for /status.
type ModelStatus struct {
	// Logical model name.
	// example: org/modelA
	Name string `json:"name" example:"org/modelA"`
	// Identifier as configured.
	// example: org/modelA:main
	Identifier string `json:"identifier" example:"org/modelA:main"`
	// example: cpu
	Device string `json:"device" example:"cpu"`
	// Worker state: starting, ready, stopped or failed.
	// example: ready
	State string `json:"state" example:"ready"`
	// Commands waiting for the worker.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// example: 42
	Processed uint64 `json:"processed" example:"42"`
	// example: 1
	Failed uint64 `json:"failed" example:"1"`
	// Responses whose caller had already gone away.
	// example: 0
	Dropped uint64 `json:"dropped" example:"0"`
	// Last handler error, if any.
	LastError string `json:"last_error,omitempty"`
	// Time the model became ready (unix seconds).
	// example: 1700000000
	ReadySinceUnix int64 `json:"ready_since_unix" example:"1700000000"`
}

// LoadFailureStatus is a model that was configured but is not being served.
type LoadFailureStatus struct {
	// example: org/modelB
	Identifier string `json:"identifier" example:"org/modelB"`
	// Step that failed: parse, factory, start or register.
	// example: start
	Stage string `json:"stage" example:"start"`
	// example: onnx support not built (missing 'onnx' build tag)
	Error string `json:"error" example:"onnx support not built (missing 'onnx' build tag)"`
}

// ProcessStatus reports resource usage of the server process.
type ProcessStatus struct {
	// example: 12345
	PID int32 `json:"pid" example:"12345"`
	// Resident set size in bytes.
	// example: 268435456
	RSSBytes uint64 `json:"rss_bytes" example:"268435456"`
	// example: 12.5
	CPUPercent float64 `json:"cpu_percent" example:"12.5"`
	// OS threads, including one per model worker.
	// example: 14
	NumThreads int32 `json:"num_threads" example:"14"`
	// example: 40
	NumGoroutine int `json:"num_goroutine" example:"40"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// ready when at least one model serves requests, otherwise unavailable.
	// example: ready
	State string `json:"state" example:"ready"`
	// Default model identifier as configured.
	// example: org/modelA
	DefaultModel string `json:"default_model" example:"org/modelA"`
	// Whether the default model is being served.
	// example: true
	DefaultAvailable bool                `json:"default_available" example:"true"`
	Models           []ModelStatus       `json:"models"`
	Failures         []LoadFailureStatus `json:"failures,omitempty"`
	Process          *ProcessStatus      `json:"process,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
