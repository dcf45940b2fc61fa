package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "negative parallelism",
			mutate: func(cfg *Config) {
				cfg.Parallelism = -1
			},
			wantErr: "parallelism",
		},
		{
			name: "invalid proxy url",
			mutate: func(cfg *Config) {
				cfg.RenderProxyURL = "http://"
			},
			wantErr: "render proxy URL",
		},
		{
			name: "unknown fetch backend",
			mutate: func(cfg *Config) {
				cfg.FetchBackend = "curl"
			},
			wantErr: "fetch backend",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "inverted price ratios",
			mutate: func(cfg *Config) {
				cfg.PriceFloorRatio = 3
				cfg.PriceCeilingRatio = 0.3
			},
			wantErr: "price ratios",
		},
		{
			name: "step down above one",
			mutate: func(cfg *Config) {
				cfg.SolverStepDown = 1.2
			},
			wantErr: "step down",
		},
		{
			name: "zero iterations",
			mutate: func(cfg *Config) {
				cfg.SolverMaxIterations = 0
			},
			wantErr: "iterations",
		},
		{
			name: "unknown database driver",
			mutate: func(cfg *Config) {
				cfg.DatabaseDriver = "mysql"
			},
			wantErr: "database driver",
		},
		{
			name: "NaN floor ratio",
			mutate: func(cfg *Config) {
				cfg.PriceFloorRatio = math.NaN()
			},
			wantErr: "price floor ratio",
		},
		{
			name: "infinite ceiling ratio",
			mutate: func(cfg *Config) {
				cfg.PriceCeilingRatio = math.Inf(1)
			},
			wantErr: "price ceiling ratio",
		},
		{
			name: "infinite step up",
			mutate: func(cfg *Config) {
				cfg.SolverStepUp = math.Inf(1)
			},
			wantErr: "step up",
		},
		{
			name: "NaN inflation rate",
			mutate: func(cfg *Config) {
				cfg.InflationRates = map[string]float64{"USD": math.NaN()}
			},
			wantErr: "inflation rate for USD",
		},
		{
			name: "infinite elasticity override",
			mutate: func(cfg *Config) {
				cfg.Elasticities = map[string]float64{"toys": math.Inf(-1)}
			},
			wantErr: "elasticity for toys",
		},
		{
			name: "bad output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricer.yaml")
	content := `
render_proxy_url: https://proxy.example.test/
parallelism: 8
timeout: 30s
elasticities:
  electronics: -2.0
inflation_rates:
  SAR: 0.018
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := DefaultConfig()
	if err := LoadFile(cfg, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.RenderProxyURL != "https://proxy.example.test/" {
		t.Errorf("RenderProxyURL = %q", cfg.RenderProxyURL)
	}
	if cfg.Parallelism != 8 {
		t.Errorf("Parallelism = %d, want 8", cfg.Parallelism)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.Elasticities["electronics"] != -2.0 {
		t.Errorf("electronics elasticity = %v", cfg.Elasticities["electronics"])
	}
	if cfg.InflationRates["SAR"] != 0.018 {
		t.Errorf("SAR inflation = %v", cfg.InflationRates["SAR"])
	}
	if cfg.MaxPricesPerMarketplace != 20 {
		t.Errorf("untouched default changed: %d", cfg.MaxPricesPerMarketplace)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PRICER_PARALLEL", "3")
	t.Setenv("PRICER_FETCH_BACKEND", "RESTY")
	t.Setenv("PRICER_CACHE_TTL", "2m")
	t.Setenv("PRICER_DATABASE_DSN", "postgres://localhost/pricer")

	cfg := DefaultConfig()
	if err := ApplyEnv(cfg, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Parallelism != 3 {
		t.Errorf("Parallelism = %d, want 3", cfg.Parallelism)
	}
	if cfg.FetchBackend != "resty" {
		t.Errorf("FetchBackend = %q, want resty", cfg.FetchBackend)
	}
	if cfg.CacheTTL != 2*time.Minute {
		t.Errorf("CacheTTL = %v, want 2m", cfg.CacheTTL)
	}
	if cfg.DatabaseDSN != "postgres://localhost/pricer" {
		t.Errorf("DatabaseDSN = %q", cfg.DatabaseDSN)
	}
}

func TestApplyEnvInvalidInt(t *testing.T) {
	t.Setenv("PRICER_PARALLEL", "many")
	cfg := DefaultConfig()
	if err := ApplyEnv(cfg, filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatalf("expected error for non-numeric PRICER_PARALLEL")
	}
}

func TestApplyEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("PRICER_TEST_ONLY_ADDR=:9999\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("PRICER_TEST_ONLY_ADDR", "")
	os.Unsetenv("PRICER_TEST_ONLY_ADDR")

	cfg := DefaultConfig()
	if err := ApplyEnv(cfg, path); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if got, _ := EnvString("PRICER_TEST_ONLY_ADDR"); got != ":9999" {
		t.Fatalf("env file not loaded, got %q", got)
	}
}
