package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"glowrs/internal/common/fsutil"
	"glowrs/internal/embed"
	"glowrs/internal/infer"
)

// Duration is a time.Duration written as "30s" in every config format and
// in the environment.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// CORS controls cross-origin access to the HTTP API.
type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins" env:"ORIGINS" envSeparator:","`
}

// EmbedCache selects the embedding cache: none, memory or redis.
type EmbedCache struct {
	Kind      string   `json:"kind" yaml:"kind" toml:"kind" env:"KIND"`
	Size      int      `json:"size" yaml:"size" toml:"size" env:"SIZE"`
	RedisAddr string   `json:"redis_addr" yaml:"redis_addr" toml:"redis_addr" env:"REDIS_ADDR"`
	TTL       Duration `json:"ttl" yaml:"ttl" toml:"ttl" env:"TTL"`
}

// ONNX configures the onnx backend.
type ONNX struct {
	Library   string `json:"library" yaml:"library" toml:"library" env:"LIBRARY"`
	Threads   int    `json:"threads" yaml:"threads" toml:"threads" env:"THREADS"`
	MaxTokens int    `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens" env:"MAX_TOKENS"`
}

// Llama configures the llama backend.
type Llama struct {
	ModelFile   string `json:"model_file" yaml:"model_file" toml:"model_file" env:"MODEL_FILE"`
	Threads     int    `json:"threads" yaml:"threads" toml:"threads" env:"THREADS"`
	ContextSize int    `json:"context_size" yaml:"context_size" toml:"context_size" env:"CONTEXT_SIZE"`
	GPULayers   int    `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers" env:"GPU_LAYERS"`
}

// Config holds runtime parameters for the server.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr" env:"ADDR"`
	// ModelRepos are "owner/model[:revision]" identifiers; the first is the default.
	ModelRepos []string `json:"model_repos" yaml:"model_repos" toml:"model_repos" env:"MODEL_REPOS" envSeparator:","`
	Device     string   `json:"device" yaml:"device" toml:"device" env:"DEVICE"`
	Backend    string   `json:"backend" yaml:"backend" toml:"backend" env:"BACKEND"`
	Pooling    string   `json:"pooling" yaml:"pooling" toml:"pooling" env:"POOLING"`
	// Dimensions is the output width of the hash backend.
	Dimensions int    `json:"dimensions" yaml:"dimensions" toml:"dimensions" env:"DIMENSIONS"`
	CacheDir   string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir" env:"CACHE_DIR"`
	HFToken    string `json:"hf_token" yaml:"hf_token" toml:"hf_token" env:"HF_TOKEN"`
	HubURL     string `json:"hub_url" yaml:"hub_url" toml:"hub_url" env:"HUB_URL"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format" env:"LOG_FORMAT"`

	RequestTimeout  Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout" env:"REQUEST_TIMEOUT"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	MaxInputs       int      `json:"max_inputs" yaml:"max_inputs" toml:"max_inputs" env:"MAX_INPUTS"`
	// FailurePolicy is "continue" or "stop".
	FailurePolicy string `json:"failure_policy" yaml:"failure_policy" toml:"failure_policy" env:"FAILURE_POLICY"`

	CORS       CORS       `json:"cors" yaml:"cors" toml:"cors" envPrefix:"CORS_"`
	EmbedCache EmbedCache `json:"embed_cache" yaml:"embed_cache" toml:"embed_cache" envPrefix:"EMBED_CACHE_"`
	ONNX       ONNX       `json:"onnx" yaml:"onnx" toml:"onnx" envPrefix:"ONNX_"`
	Llama      Llama      `json:"llama" yaml:"llama" toml:"llama" envPrefix:"LLAMA_"`
}

// DefaultModelRepo is served when nothing is configured.
const DefaultModelRepo = "jinaai/jina-embeddings-v2-small-en"

// Defaults returns a fully populated configuration.
func Defaults() Config {
	return Config{
		Addr:            "0.0.0.0:3000",
		ModelRepos:      []string{DefaultModelRepo},
		Device:          "cpu",
		Backend:         "hash",
		Pooling:         string(embed.PoolMean),
		Dimensions:      embed.DefaultHashDimensions,
		CacheDir:        fsutil.DefaultCacheDir(),
		LogLevel:        "info",
		LogFormat:       "console",
		RequestTimeout:  Duration(30 * time.Second),
		ShutdownTimeout: Duration(10 * time.Second),
		MaxBodyBytes:    4 << 20,
		MaxInputs:       embed.DefaultMaxInputs,
		FailurePolicy:   infer.ContinueOnError.String(),
		EmbedCache:      EmbedCache{Kind: "none", Size: 10000, TTL: Duration(24 * time.Hour)},
		Llama:           Llama{ModelFile: "model.gguf", ContextSize: 512},
	}
}

// ApplyDefaults fills every zero field from Defaults.
func (c *Config) ApplyDefaults() {
	d := Defaults()
	setStr := func(p *string, v string) {
		if strings.TrimSpace(*p) == "" {
			*p = v
		}
	}
	setStr(&c.Addr, d.Addr)
	setStr(&c.Device, d.Device)
	setStr(&c.Backend, d.Backend)
	setStr(&c.Pooling, d.Pooling)
	setStr(&c.CacheDir, d.CacheDir)
	setStr(&c.LogLevel, d.LogLevel)
	setStr(&c.LogFormat, d.LogFormat)
	setStr(&c.FailurePolicy, d.FailurePolicy)
	setStr(&c.EmbedCache.Kind, d.EmbedCache.Kind)
	setStr(&c.Llama.ModelFile, d.Llama.ModelFile)
	if len(c.ModelRepos) == 0 {
		c.ModelRepos = d.ModelRepos
	}
	if c.Dimensions == 0 {
		c.Dimensions = d.Dimensions
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.MaxInputs == 0 {
		c.MaxInputs = d.MaxInputs
	}
	if c.EmbedCache.Size == 0 {
		c.EmbedCache.Size = d.EmbedCache.Size
	}
	if c.EmbedCache.TTL == 0 {
		c.EmbedCache.TTL = d.EmbedCache.TTL
	}
	if c.Llama.ContextSize == 0 {
		c.Llama.ContextSize = d.Llama.ContextSize
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if len(c.ModelRepos) == 0 {
		errs = append(errs, errors.New("model_repos: at least one model is required"))
	}
	if _, err := embed.ParseDevice(c.Device); err != nil {
		errs = append(errs, fmt.Errorf("device: %w", err))
	}
	if _, err := embed.ParsePooling(c.Pooling); err != nil {
		errs = append(errs, fmt.Errorf("pooling: %w", err))
	}
	if !contains(embed.Backends(), strings.ToLower(c.Backend)) {
		errs = append(errs, fmt.Errorf("backend: unknown %q (have %s)", c.Backend, strings.Join(embed.Backends(), ", ")))
	}
	if _, err := infer.ParseFailurePolicy(c.FailurePolicy); err != nil {
		errs = append(errs, fmt.Errorf("failure_policy: %w", err))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: unknown %q", c.LogFormat))
	}
	switch strings.ToLower(c.EmbedCache.Kind) {
	case "", "none", "memory":
	case "redis":
		if c.EmbedCache.RedisAddr == "" {
			errs = append(errs, errors.New("embed_cache.redis_addr: required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("embed_cache.kind: unknown %q", c.EmbedCache.Kind))
	}
	if c.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("max_body_bytes: must not be negative"))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request_timeout: must not be negative"))
	}
	return errors.Join(errs...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
