package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "GLOWRS_"

// ApplyEnv overrides cfg with GLOWRS_* variables. environ replaces the
// process environment when non-nil. HF_TOKEN is honoured without the prefix
// when GLOWRS_HF_TOKEN is unset.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return err
	}
	if cfg.HFToken == "" {
		if environ != nil {
			cfg.HFToken = environ["HF_TOKEN"]
		} else {
			cfg.HFToken = os.Getenv("HF_TOKEN")
		}
	}
	return nil
}

// LoadDotEnv loads variables from path into the process environment without
// overriding ones already set. An empty path tries ./.env and ignores its
// absence.
func LoadDotEnv(path string) error {
	if path != "" {
		return godotenv.Load(path)
	}
	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
