// Package server holds the directory of loaded models: one dedicated
// executor and client per model name, plus the default model used when a
// request does not name one.
package server

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"glowrs/internal/embed"
	"glowrs/internal/infer"
	"glowrs/internal/logx"
	"glowrs/internal/repo"
)

// EmbeddingsClient submits embedding requests to one model's worker.
type EmbeddingsClient = infer.Client[embed.Request, embed.Response]

// EmbeddingsExecutor is one model's worker.
type EmbeddingsExecutor = infer.DedicatedExecutor[embed.Request, embed.Response]

type entry struct {
	ref        repo.Ref
	identifier string
	client     EmbeddingsClient
	executor   *EmbeddingsExecutor
	readyAt    time.Time
}

// State maps model names to their serving infrastructure. The map and the
// default are fixed at construction.
type State struct {
	defaultModel string
	device       embed.Device
	models       map[string]*entry
	failures     []LoadFailure
	startedAt    time.Time
	log          zerolog.Logger
	events       EventPublisher

	shutdownOnce sync.Once
	shutdownErr  error
}

type config struct {
	loader      embed.Loader
	handlerOpts []embed.HandlerOption
	queueOpts   []infer.Option
	log         zerolog.Logger
	events      EventPublisher
}

// Option configures New.
type Option func(*config)

// WithLoader sets how models are loaded (the hash backend by default).
func WithLoader(l embed.Loader) Option {
	return func(c *config) { c.loader = l }
}

// WithHandlerOptions passes options to every model's embed.Handler.
func WithHandlerOptions(opts ...embed.HandlerOption) Option {
	return func(c *config) { c.handlerOpts = append(c.handlerOpts, opts...) }
}

// WithQueueOptions passes options to every model's worker.
func WithQueueOptions(opts ...infer.Option) Option {
	return func(c *config) { c.queueOpts = append(c.queueOpts, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithEventPublisher receives lifecycle events.
func WithEventPublisher(p EventPublisher) Option {
	return func(c *config) {
		if p != nil {
			c.events = p
		}
	}
}

// New loads every identifier in order, each on its own worker thread.
// Identifiers that fail to parse or load are skipped and recorded in
// Failures. It fails only when identifiers is empty or ctx ends.
//
// The default model is identifiers[0] whether or not it loaded; looking it
// up when it did not load returns a default-unavailable error.
func New(ctx context.Context, identifiers []string, device embed.Device, opts ...Option) (*State, error) {
	if len(identifiers) == 0 {
		return nil, ErrNoModels
	}
	cfg := config{log: logx.For("server"), events: noopPublisher{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.loader == nil {
		l, err := embed.NewLoader("hash", embed.LoaderOptions{})
		if err != nil {
			return nil, err
		}
		cfg.loader = l
	}

	s := &State{
		defaultModel: identifiers[0],
		device:       device,
		models:       make(map[string]*entry, len(identifiers)),
		startedAt:    time.Now(),
		log:          cfg.log,
		events:       cfg.events,
	}
	for _, id := range identifiers {
		if err := ctx.Err(); err != nil {
			_ = s.Shutdown(context.Background())
			return nil, err
		}
		s.load(ctx, cfg, id)
	}
	if len(s.models) == 0 {
		s.log.Error().Int("configured", len(identifiers)).Msg("no model loaded; every request will fail")
	}
	return s, nil
}

func (s *State) load(ctx context.Context, cfg config, id string) {
	s.events.Publish(Event{Name: EventLoadStart, Model: id})
	ref, err := repo.Parse(id)
	if err != nil {
		s.fail(id, StageParse, err)
		return
	}
	if _, dup := s.models[ref.Name]; dup {
		s.fail(id, StageRegister, errors.New("duplicate model name "+ref.Name))
		return
	}
	factory, err := embed.NewHandlerFactory(id, s.device, cfg.loader, cfg.handlerOpts...)
	if err != nil {
		s.fail(id, StageFactory, err)
		return
	}
	start := time.Now()
	// Bad input is the caller's fault and must not stop the worker.
	queueOpts := append([]infer.Option{infer.WithLogger(cfg.log), infer.WithCallerErrors(embed.IsInvalidInput)}, cfg.queueOpts...)
	ex, err := infer.NewDedicatedExecutor(ctx, ref.Name, factory, queueOpts...)
	if err != nil {
		s.fail(id, StageStart, err)
		return
	}
	s.models[ref.Name] = &entry{
		ref:        ref,
		identifier: id,
		client:     infer.NewClient(ex),
		executor:   ex,
		readyAt:    time.Now(),
	}
	s.log.Info().Str("model", ref.Name).Str("revision", ref.Revision).Stringer("device", s.device).
		Dur("took", time.Since(start)).Msg("model ready")
	s.events.Publish(Event{Name: EventLoadReady, Model: ref.Name, Fields: map[string]any{"took": time.Since(start)}})
}

func (s *State) fail(id, stage string, err error) {
	s.failures = append(s.failures, LoadFailure{Identifier: id, Stage: stage, Err: err})
	s.log.Error().Str("model", id).Str("stage", stage).Err(err).Msg("model failed to load, skipping")
	s.events.Publish(Event{Name: EventLoadFailed, Model: id, Fields: map[string]any{"stage": stage, "error": err.Error()}})
}

// DefaultModel returns the configured default identifier.
func (s *State) DefaultModel() string { return s.defaultModel }

// Device returns the device models were loaded on.
func (s *State) Device() embed.Device { return s.device }

// Get returns the client for name, or for the default model when name is
// empty. A name carrying a revision ("org/model:rev") resolves to its
// logical name.
func (s *State) Get(name string) (EmbeddingsClient, error) {
	e, err := s.lookup(name)
	if err != nil {
		return EmbeddingsClient{}, err
	}
	return e.client, nil
}

// Resolve returns the logical name Get would serve for name.
func (s *State) Resolve(name string) (string, error) {
	e, err := s.lookup(name)
	if err != nil {
		return "", err
	}
	return e.ref.Name, nil
}

func (s *State) lookup(name string) (*entry, error) {
	isDefault := name == ""
	if isDefault {
		name = s.defaultModel
	}
	if e, ok := s.models[name]; ok {
		return e, nil
	}
	if ref, err := repo.Parse(name); err == nil {
		if e, ok := s.models[ref.Name]; ok {
			return e, nil
		}
	}
	if isDefault {
		return nil, defaultUnavailableError{identifier: s.defaultModel}
	}
	return nil, ErrModelNotFound(name)
}

// Has reports whether Get would succeed for name, with the same default
// and revision resolution.
func (s *State) Has(name string) bool {
	_, err := s.lookup(name)
	return err == nil
}

// Names returns the served model names, sorted.
func (s *State) Names() []string {
	names := make([]string, 0, len(s.models))
	for n := range s.models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of served models.
func (s *State) Len() int { return len(s.models) }

// Failures returns the identifiers that did not load.
func (s *State) Failures() []LoadFailure {
	return append([]LoadFailure(nil), s.failures...)
}

// ReadySince returns when name finished loading.
func (s *State) ReadySince(name string) (time.Time, bool) {
	e, ok := s.models[name]
	if !ok {
		return time.Time{}, false
	}
	return e.readyAt, true
}

// Ready reports whether at least one model's worker is serving.
func (s *State) Ready() bool {
	for _, e := range s.models {
		if e.executor.Stats().State == infer.StateReady {
			return true
		}
	}
	return false
}

// Shutdown stops every worker and waits for them, or for ctx. Later calls
// return the first result.
func (s *State) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.events.Publish(Event{Name: EventShutdownStart})
		var errs []error
		for _, name := range s.Names() {
			if err := s.models[name].executor.Shutdown(ctx); err != nil {
				s.log.Warn().Str("model", name).Err(err).Msg("worker did not stop in time")
				errs = append(errs, err)
			}
		}
		s.shutdownErr = errors.Join(errs...)
		s.events.Publish(Event{Name: EventShutdownDone})
	})
	return s.shutdownErr
}
