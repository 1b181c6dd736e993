//go:build !llama

package embed

import "glowrs/internal/repo"

func llamaBackend(LoaderOptions) (Loader, error) {
	return func(repo.Ref, Device) (Encoder, error) {
		return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
	}, nil
}
