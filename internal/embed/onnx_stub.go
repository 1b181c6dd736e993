//go:build !onnx

package embed

import "glowrs/internal/repo"

// Without the 'onnx' build tag the backend stays registered but every load
// fails, so a misconfigured server reports the model as failed instead of
// refusing to start.
func onnxBackend(LoaderOptions) (Loader, error) {
	return func(repo.Ref, Device) (Encoder, error) {
		return nil, ErrDependencyUnavailable("onnx support not built (missing 'onnx' build tag)")
	}, nil
}
