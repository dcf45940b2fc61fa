package config

import (
	"fmt"
	"math"
	"net/url"
	"time"
)

// Config holds pricer configuration.
type Config struct {
	RenderProxyURL     string        `yaml:"render_proxy_url"`
	RenderProxyAPIKey  string        `yaml:"render_proxy_api_key"`
	RenderProxyCountry string        `yaml:"render_proxy_country"`
	FetchBackend       string        `yaml:"fetch_backend"` // colly or resty
	Parallelism        int           `yaml:"parallelism"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryBackoff       time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax    time.Duration `yaml:"retry_backoff_max"`
	UserAgent          string        `yaml:"user_agent"`
	CacheSize          int           `yaml:"cache_size"`
	CacheTTL           time.Duration `yaml:"cache_ttl"`

	MaxPricesPerMarketplace int     `yaml:"max_prices_per_marketplace"`
	PriceFloorRatio         float64 `yaml:"price_floor_ratio"`
	PriceCeilingRatio       float64 `yaml:"price_ceiling_ratio"`

	SolverMaxIterations int     `yaml:"solver_max_iterations"`
	SolverStepDown      float64 `yaml:"solver_step_down"`
	SolverStepUp        float64 `yaml:"solver_step_up"`

	Elasticities   map[string]float64 `yaml:"elasticities"`
	InflationRates map[string]float64 `yaml:"inflation_rates"`

	DatabaseDriver string `yaml:"database_driver"` // sqlite or postgres
	DatabaseDSN    string `yaml:"database_dsn"`
	HTTPAddr       string `yaml:"http_addr"`
	MetricsAddr    string `yaml:"metrics_addr"`
	OutputFile     string `yaml:"output_file"`
	OutputFormat   string `yaml:"output_format"` // csv, json, or dual
	Verbose        bool   `yaml:"verbose"`
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() *Config {
	return &Config{
		FetchBackend:            "colly",
		Parallelism:             4,
		Timeout:                 60 * time.Second,
		MaxRetries:              2,
		RetryBackoff:            500 * time.Millisecond,
		RetryBackoffMax:         5 * time.Second,
		UserAgent:               "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		CacheSize:               256,
		CacheTTL:                15 * time.Minute,
		MaxPricesPerMarketplace: 20,
		PriceFloorRatio:         0.3,
		PriceCeilingRatio:       3.0,
		SolverMaxIterations:     10,
		SolverStepDown:          0.95,
		SolverStepUp:            1.05,
		DatabaseDriver:          "sqlite",
		DatabaseDSN:             "file:pricer.db?_pragma=busy_timeout(5000)",
		HTTPAddr:                ":8080",
		MetricsAddr:             "",
		OutputFile:              "output/pricing.csv",
		OutputFormat:            "csv",
		Verbose:                 false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.RenderProxyURL != "" {
		parsedURL, err := url.Parse(c.RenderProxyURL)
		if err != nil {
			return fmt.Errorf("invalid render proxy URL: %w", err)
		}
		if parsedURL.Host == "" {
			return fmt.Errorf("render proxy URL must include a host")
		}
	}
	if c.FetchBackend != "colly" && c.FetchBackend != "resty" {
		return fmt.Errorf("fetch backend must be colly or resty")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache ttl cannot be negative")
	}
	if c.MaxPricesPerMarketplace <= 0 {
		return fmt.Errorf("max prices per marketplace must be positive")
	}
	for name, v := range map[string]float64{
		"price floor ratio":   c.PriceFloorRatio,
		"price ceiling ratio": c.PriceCeilingRatio,
		"solver step down":    c.SolverStepDown,
		"solver step up":      c.SolverStepUp,
	} {
		if !finite(v) {
			return fmt.Errorf("%s must be a finite number", name)
		}
	}
	if c.PriceFloorRatio <= 0 || c.PriceCeilingRatio <= c.PriceFloorRatio {
		return fmt.Errorf("price ratios must satisfy 0 < floor (%.2f) < ceiling (%.2f)", c.PriceFloorRatio, c.PriceCeilingRatio)
	}
	if c.SolverMaxIterations <= 0 {
		return fmt.Errorf("solver max iterations must be positive")
	}
	if c.SolverStepDown <= 0 || c.SolverStepDown >= 1 {
		return fmt.Errorf("solver step down must be in (0, 1)")
	}
	if c.SolverStepUp <= 1 {
		return fmt.Errorf("solver step up must be greater than 1")
	}
	for currency, rate := range c.InflationRates {
		if !finite(rate) || rate <= -1 {
			return fmt.Errorf("inflation rate for %s must be a finite number greater than -1", currency)
		}
	}
	for category, e := range c.Elasticities {
		if !finite(e) || e == 0 {
			return fmt.Errorf("elasticity for %s must be a finite non-zero number", category)
		}
	}
	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
		return fmt.Errorf("database driver must be sqlite or postgres")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database dsn cannot be empty")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}

	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
