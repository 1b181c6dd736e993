package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/daemon"

	"glowrs/internal/config"
	"glowrs/internal/embed"
	"glowrs/internal/hub"
	"glowrs/internal/infer"
	"glowrs/internal/logx"
	"glowrs/internal/server"
)

func newHub(cfg config.Config, opts ...hub.Option) (*hub.Client, error) {
	base := []hub.Option{hub.WithToken(cfg.HFToken)}
	if cfg.HubURL != "" {
		base = append(base, hub.WithBaseURL(cfg.HubURL))
	}
	return hub.New(cfg.CacheDir, append(base, opts...)...)
}

func newLoader(cfg config.Config, h *hub.Client) (embed.Loader, error) {
	pooling, err := embed.ParsePooling(cfg.Pooling)
	if err != nil {
		return nil, err
	}
	o := embed.LoaderOptions{
		Pooling:     pooling,
		Dimensions:  cfg.Dimensions,
		Hub:         h,
		OnnxLibrary: cfg.ONNX.Library,
		ModelFile:   cfg.Llama.ModelFile,
		GPULayers:   cfg.Llama.GPULayers,
	}
	switch strings.ToLower(cfg.Backend) {
	case "onnx":
		o.Threads, o.MaxTokens = cfg.ONNX.Threads, cfg.ONNX.MaxTokens
	case "llama":
		o.Threads, o.MaxTokens = cfg.Llama.Threads, cfg.Llama.ContextSize
	}
	return embed.NewLoader(cfg.Backend, o)
}

// newCache returns nil when caching is off. The returned func releases it.
func newCache(ctx context.Context, cfg config.Config) (embed.Cache, func(), error) {
	switch strings.ToLower(cfg.EmbedCache.Kind) {
	case "", "none":
		return nil, func() {}, nil
	case "memory":
		return embed.NewMemoryCache(cfg.EmbedCache.Size), func() {}, nil
	case "redis":
		c, err := embed.NewRedisCache(ctx, cfg.EmbedCache.RedisAddr, cfg.EmbedCache.TTL.Std())
		if err != nil {
			return nil, nil, fmt.Errorf("embed cache: %w", err)
		}
		return c, func() { _ = c.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("embed cache: unknown kind %q", cfg.EmbedCache.Kind)
	}
}

// newState loads identifiers with the configured backend.
func newState(ctx context.Context, cfg config.Config, identifiers []string, loader embed.Loader, cache embed.Cache, events server.EventPublisher) (*server.State, error) {
	device, err := embed.ParseDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	policy, err := infer.ParseFailurePolicy(cfg.FailurePolicy)
	if err != nil {
		return nil, err
	}
	handlerOpts := []embed.HandlerOption{embed.WithMaxInputs(cfg.MaxInputs)}
	if cache != nil {
		handlerOpts = append(handlerOpts, embed.WithCache(cache))
	}
	return server.New(ctx, identifiers, device,
		server.WithLoader(loader),
		server.WithHandlerOptions(handlerOpts...),
		server.WithQueueOptions(infer.WithFailurePolicy(policy)),
		server.WithLogger(logx.For("server")),
		server.WithEventPublisher(events),
	)
}

// notifyPublisher forwards model lifecycle events to systemd's STATUS line.
// Outside systemd SdNotify is a no-op.
type notifyPublisher struct{}

func (notifyPublisher) Publish(ev server.Event) {
	var status string
	switch ev.Name {
	case server.EventLoadStart:
		status = "loading " + ev.Model
	case server.EventLoadReady:
		status = "loaded " + ev.Model
	case server.EventLoadFailed:
		status = "failed to load " + ev.Model
	case server.EventShutdownStart:
		status = "stopping workers"
	default:
		return
	}
	_, _ = daemon.SdNotify(false, "STATUS="+status)
}
