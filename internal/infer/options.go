package infer

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"glowrs/internal/logx"
)

// FailurePolicy decides what a worker does when the handler fails a request.
type FailurePolicy int

const (
	// ContinueOnError answers the failing caller with a ProcessingError and
	// keeps serving.
	ContinueOnError FailurePolicy = iota
	// StopOnError drops the failing request's reply and terminates the worker.
	// Every later submission fails with ErrDispatch.
	StopOnError
)

func (p FailurePolicy) String() string {
	switch p {
	case StopOnError:
		return "stop"
	default:
		return "continue"
	}
}

// ParseFailurePolicy accepts "continue" (or empty) and "stop".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continue":
		return ContinueOnError, nil
	case "stop":
		return StopOnError, nil
	default:
		return ContinueOnError, fmt.Errorf("unknown failure policy %q", s)
	}
}

// Option configures a Queue or DedicatedExecutor.
type Option func(*options)

type options struct {
	logger     zerolog.Logger
	policy     FailurePolicy
	callerErrs func(error) bool
}

func defaultOptions() options {
	return options{logger: logx.Log, policy: ContinueOnError}
}

// WithLogger sets the logger used by the worker loop.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFailurePolicy sets how the worker reacts to handler failures.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithCallerErrors marks handler errors that are the caller's fault (bad
// input). They are answered as a ProcessingError and never stop the worker,
// whatever the failure policy.
func WithCallerErrors(isCallerErr func(error) bool) Option {
	return func(o *options) { o.callerErrs = isCallerErr }
}
