package server

import (
	"errors"
	"fmt"
)

// ErrNoModels is returned by New when no model identifiers are configured.
var ErrNoModels = errors.New("no models provided")

// modelNotFoundError signals a lookup for a name that is not being served (404).
type modelNotFoundError struct{ name string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.name }

// ErrModelNotFound returns an error for a model name that is not loaded.
func ErrModelNotFound(name string) error { return modelNotFoundError{name: name} }

// IsModelNotFound reports whether err indicates an unknown model name.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// defaultUnavailableError signals that the request named no model and the
// configured default did not load (503).
type defaultUnavailableError struct{ identifier string }

func (e defaultUnavailableError) Error() string {
	return fmt.Sprintf("default model %q is not available", e.identifier)
}

// IsDefaultUnavailable reports whether err indicates a missing default model.
func IsDefaultUnavailable(err error) bool {
	var e defaultUnavailableError
	return errors.As(err, &e)
}

// LoadFailure records a configured model that is not being served.
type LoadFailure struct {
	Identifier string
	// Stage is one of StageParse, StageFactory, StageStart or StageRegister.
	Stage string
	Err   error
}

const (
	StageParse    = "parse"
	StageFactory  = "factory"
	StageStart    = "start"
	StageRegister = "register"
)

func (f LoadFailure) Error() string {
	return fmt.Sprintf("model %s: %s: %v", f.Identifier, f.Stage, f.Err)
}

func (f LoadFailure) Unwrap() error { return f.Err }
