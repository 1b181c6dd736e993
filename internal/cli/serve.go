package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"glowrs/internal/config"
	"glowrs/internal/httpapi"
	"glowrs/internal/logx"
)

type serveFlags struct {
	addr           string
	models         []string
	failurePolicy  string
	requestTimeout time.Duration
	maxInputs      int
	cors           bool
	corsOrigins    []string
	embedCache     string
	redisAddr      string
}

func newServeCmd(g *globalFlags) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the embeddings API",
		Example: "  glowrs serve -m jinaai/jina-embeddings-v2-small-en\n" +
			"  glowrs serve -m org/modelA -m org/modelB:v2 --addr 127.0.0.1:8080",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			f.apply(cmd.Flags(), &cfg)
			if err := finishConfig(cmd, &cfg); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Serve(ctx, cfg, nil)
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func (f *serveFlags) register(fl *pflag.FlagSet) {
	fl.StringVar(&f.addr, "addr", "", "Listen address (default 0.0.0.0:3000)")
	fl.StringSliceVarP(&f.models, "model-repo", "m", nil, "Model to serve as owner/model[:revision]; repeat for more, the first is the default")
	fl.StringVar(&f.failurePolicy, "failure-policy", "", "On a failed request: continue|stop the model's worker")
	fl.DurationVar(&f.requestTimeout, "request-timeout", 0, "Per-request timeout including queue wait")
	fl.IntVar(&f.maxInputs, "max-inputs", 0, "Maximum texts per request")
	fl.BoolVar(&f.cors, "cors", false, "Enable CORS")
	fl.StringSliceVar(&f.corsOrigins, "cors-origins", nil, "Allowed CORS origins")
	fl.StringVar(&f.embedCache, "embed-cache", "", "Embedding cache: none|memory|redis")
	fl.StringVar(&f.redisAddr, "redis-addr", "", "Redis address or redis:// URL for the redis cache")
}

func (f *serveFlags) apply(fl *pflag.FlagSet, cfg *config.Config) {
	if fl.Changed("addr") {
		cfg.Addr = f.addr
	}
	if fl.Changed("model-repo") {
		cfg.ModelRepos = f.models
	}
	if fl.Changed("failure-policy") {
		cfg.FailurePolicy = f.failurePolicy
	}
	if fl.Changed("request-timeout") {
		cfg.RequestTimeout = config.Duration(f.requestTimeout)
	}
	if fl.Changed("max-inputs") {
		cfg.MaxInputs = f.maxInputs
	}
	if fl.Changed("cors") {
		cfg.CORS.Enabled = f.cors
	}
	if fl.Changed("cors-origins") {
		cfg.CORS.Origins = f.corsOrigins
	}
	if fl.Changed("embed-cache") {
		cfg.EmbedCache.Kind = f.embedCache
	}
	if fl.Changed("redis-addr") {
		cfg.EmbedCache.RedisAddr = f.redisAddr
	}
}

// Serve loads every configured model, serves HTTP until ctx ends and then
// shuts down: the listener first, in-flight requests next, workers last.
// onListen, when set, receives the bound address.
func Serve(ctx context.Context, cfg config.Config, onListen func(net.Addr)) error {
	log := logx.For("serve")

	h, err := newHub(cfg)
	if err != nil {
		return err
	}
	loader, err := newLoader(cfg, h)
	if err != nil {
		return err
	}
	cache, closeCache, err := newCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	state, err := newState(ctx, cfg, cfg.ModelRepos, loader, cache, notifyPublisher{})
	if err != nil {
		return err
	}
	stopWorkers := func() error {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Std())
		defer cancel()
		return state.Shutdown(sctx)
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetMaxInputs(cfg.MaxInputs)
	httpapi.SetRequestTimeout(cfg.RequestTimeout.Std())
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, nil, nil)
	httpapi.SetLogger(logx.For("http"))
	httpapi.SetRequestLogLevel(cfg.LogLevel)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return errors.Join(err, stopWorkers())
	}
	srv := &http.Server{
		Handler:           httpapi.NewMux(state),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	if onListen != nil {
		onListen(ln.Addr())
	}
	log.Info().Str("addr", ln.Addr().String()).Strs("models", state.Names()).
		Str("default", state.DefaultModel()).Str("backend", cfg.Backend).Msg("listening")
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug().Err(err).Msg("sd_notify failed")
	}

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
		_ = srv.Close()
	}
	// Requests still waiting on a worker give up now.
	cancelBase()
	if err := stopWorkers(); err != nil {
		log.Warn().Err(err).Msg("workers did not stop in time")
		return errors.Join(serveErr, err)
	}
	log.Info().Msg("stopped")
	return serveErr
}
