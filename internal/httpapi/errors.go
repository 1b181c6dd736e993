package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"glowrs/internal/embed"
	"glowrs/internal/infer"
	"glowrs/internal/server"
	"glowrs/pkg/types"
)

// Error types reported in ErrorBody.Type.
const (
	errTypeInvalidRequest = "invalid_request_error"
	errTypeNotFound       = "not_found"
	errTypeUnavailable    = "service_unavailable"
	errTypeServer         = "server_error"
	errTypeTimeout        = "timeout"
)

// HTTPError allows collaborators to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps an error from the model directory or a worker to a status
// code and error type. Order matters: a handler's invalid-input error
// arrives wrapped in a ProcessingError.
func statusFor(err error) (int, string) {
	var he HTTPError
	switch {
	case server.IsModelNotFound(err):
		return http.StatusNotFound, errTypeNotFound
	case server.IsDefaultUnavailable(err), infer.IsDispatch(err), embed.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable, errTypeUnavailable
	case embed.IsInvalidInput(err):
		return http.StatusBadRequest, errTypeInvalidRequest
	case infer.IsLostResponse(err):
		return http.StatusBadGateway, errTypeServer
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errTypeTimeout
	case errors.As(err, &he):
		return he.StatusCode(), errTypeServer
	default:
		return http.StatusInternalServerError, errTypeServer
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, typ, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: types.ErrorBody{Message: msg, Type: typ, Code: status}})
}
