package httpapi

import (
	"time"

	"glowrs/internal/embed"
)

// maxBodyBytes caps the request body of JSON endpoints.
var maxBodyBytes int64 = 4 << 20

// SetMaxBodyBytes sets the maximum request body size. Non-positive values
// restore the 4 MiB default.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 4 << 20
		return
	}
	maxBodyBytes = n
}

// maxInputs caps the texts of one embeddings request.
var maxInputs = embed.DefaultMaxInputs

// SetMaxInputs sets the per-request input limit. Non-positive values
// restore the default.
func SetMaxInputs(n int) {
	if n <= 0 {
		n = embed.DefaultMaxInputs
	}
	maxInputs = n
}

// requestTimeout bounds one embeddings request, queue wait included.
// Zero disables it.
var requestTimeout time.Duration

// SetRequestTimeout sets the per-request timeout (0 disables).
func SetRequestTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	requestTimeout = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server. Empty
// methods or headers use defaults suitable for the embeddings API.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
