package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/daniela2708/ganaderia/pkg/dashboard"
)

// envPrefix namespaces every environment override.
const envPrefix = "GANADERIA_"

type config struct {
	Addr          string        `yaml:"addr" validate:"required"`
	DataDir       string        `yaml:"data_dir" validate:"required"`
	LogLevel      string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	Watch         bool          `yaml:"watch"`
	CacheTTL      time.Duration `yaml:"cache_ttl" validate:"gte=0"`
	RateLimit     float64       `yaml:"rate_limit" validate:"gte=0"`
	Burst         int           `yaml:"burst" validate:"gte=0"`
	CheckInterval time.Duration `yaml:"check_interval" validate:"gte=0"`
	TLS           tlsConfig     `yaml:"tls"`
}

type tlsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file" validate:"required_with=KeyFile"`
	KeyFile  string `yaml:"key_file" validate:"required_with=CertFile"`
}

func defaultConfig() config {
	return config{
		Addr:     ":8420",
		DataDir:  "data",
		LogLevel: "info",
		Watch:    true,
		CacheTTL: dashboard.DefaultTTL,
		Burst:    20,
	}
}

// loadConfig reads the YAML file at path (missing means defaults), loads
// envFile into the process environment when it exists, then applies
// GANADERIA_* overrides.
func loadConfig(path, envFile string) (config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays the environment variables that are set.
func applyEnv(cfg *config, getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(envPrefix + key)); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(envPrefix + key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(getenv(envPrefix + key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("ADDR", &cfg.Addr)
	str("DATA_DIR", &cfg.DataDir)
	str("LOG_LEVEL", &cfg.LogLevel)
	boolean("WATCH", &cfg.Watch)
	duration("CACHE_TTL", &cfg.CacheTTL)
	duration("CHECK_INTERVAL", &cfg.CheckInterval)
	boolean("TLS_ENABLED", &cfg.TLS.Enabled)
	str("TLS_CERT_FILE", &cfg.TLS.CertFile)
	str("TLS_KEY_FILE", &cfg.TLS.KeyFile)

	if v := strings.TrimSpace(getenv(envPrefix + "RATE_LIMIT")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRATE_LIMIT: %w", envPrefix, err))
		} else {
			cfg.RateLimit = f
		}
	}
	if v := strings.TrimSpace(getenv(envPrefix + "BURST")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sBURST: %w", envPrefix, err))
		} else {
			cfg.Burst = n
		}
	}
	return errors.Join(errs...)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
