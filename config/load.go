package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PRICER_"

// LoadFile overlays a YAML file onto cfg. Keys absent from the file keep their values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv loads the optional .env files and overlays PRICER_* variables onto cfg.
func ApplyEnv(cfg *Config, envFiles ...string) error {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	} else if err != nil {
		slog.Debug("no .env file found, using process environment")
	}

	if v, ok := EnvString(envPrefix + "RENDER_PROXY_URL"); ok {
		cfg.RenderProxyURL = v
	}
	if v, ok := EnvString(envPrefix + "RENDER_PROXY_API_KEY"); ok {
		cfg.RenderProxyAPIKey = v
	}
	if v, ok := EnvString(envPrefix + "RENDER_PROXY_COUNTRY"); ok {
		cfg.RenderProxyCountry = v
	}
	if v, ok := EnvString(envPrefix + "FETCH_BACKEND"); ok {
		cfg.FetchBackend = strings.ToLower(v)
	}
	if v, ok := EnvString(envPrefix + "DATABASE_DRIVER"); ok {
		cfg.DatabaseDriver = strings.ToLower(v)
	}
	if v, ok := EnvString(envPrefix + "DATABASE_DSN"); ok {
		cfg.DatabaseDSN = v
	}
	if v, ok := EnvString(envPrefix + "HTTP_ADDR"); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := EnvString(envPrefix + "METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := EnvString(envPrefix + "OUTPUT"); ok {
		cfg.OutputFile = v
	}

	ints := map[string]*int{
		"PARALLEL":       &cfg.Parallelism,
		"MAX_RETRIES":    &cfg.MaxRetries,
		"CACHE_SIZE":     &cfg.CacheSize,
		"MAX_PRICES":     &cfg.MaxPricesPerMarketplace,
		"MAX_ITERATIONS": &cfg.SolverMaxIterations,
	}
	for name, dst := range ints {
		value, ok, err := EnvInt(envPrefix + name)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		if ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"TIMEOUT":   &cfg.Timeout,
		"CACHE_TTL": &cfg.CacheTTL,
	}
	for name, dst := range durations {
		value, ok, err := EnvDuration(envPrefix + name)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		if ok {
			*dst = value
		}
	}
	return nil
}

// EnvString returns a non-empty environment variable.
func EnvString(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses an integer environment variable.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// EnvDuration parses a duration environment variable such as "30s".
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, err
	}
	return d, true, nil
}
