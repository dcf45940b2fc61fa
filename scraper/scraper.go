package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aluiziolira/go-price-pilot/config"
	"github.com/gocolly/colly/v2"
)

// Fetcher retrieves rendered HTML for a marketplace search URL.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (string, error)
}

// NewFetcher builds the configured backend, wrapped in a page cache when enabled.
func NewFetcher(cfg *config.Config, metrics *Metrics) (Fetcher, error) {
	var fetcher Fetcher
	switch cfg.FetchBackend {
	case "resty":
		fetcher = NewRestyFetcher(cfg, metrics)
	case "colly", "":
		collyFetcher, err := NewCollyFetcher(cfg, metrics)
		if err != nil {
			return nil, err
		}
		fetcher = collyFetcher
	default:
		return nil, fmt.Errorf("unsupported fetch backend: %s", cfg.FetchBackend)
	}

	if cfg.CacheSize > 0 && cfg.CacheTTL > 0 {
		fetcher = NewCachedFetcher(fetcher, cfg.CacheSize, cfg.CacheTTL, metrics)
	}
	return fetcher, nil
}

// CollyFetcher fetches pages through a colly collector, optionally via a render proxy.
type CollyFetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	retry     retryPolicy
	Metrics   *Metrics
}

// NewCollyFetcher builds a fetcher configured from cfg.
func NewCollyFetcher(cfg *config.Config, metrics *Metrics) (*CollyFetcher, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	return &CollyFetcher{
		cfg:       cfg,
		collector: collector,
		retry:     newRetryPolicy(cfg),
		Metrics:   metrics,
	}, nil
}

// WithTransport swaps the HTTP transport, mainly for tests.
func (f *CollyFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch returns the page body, retrying transient failures with capped backoff.
func (f *CollyFetcher) Fetch(ctx context.Context, target string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	requestURL, err := renderURL(f.cfg, target)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", ErrTimeout{Err: err}
		}

		body, err := f.fetchOnce(requestURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		f.Metrics.IncError(errorTypeLabel(err))

		if !retryable(err) || attempt >= f.cfg.MaxRetries {
			break
		}
		f.Metrics.IncRetries()
		delay := f.retry.backoff(attempt + 1)
		slog.Debug("retrying fetch",
			slog.String("url", target),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if err := f.retry.wait(ctx, delay); err != nil {
			return "", ErrTimeout{Err: err}
		}
	}
	return "", fmt.Errorf("fetch %s: %w", target, lastErr)
}

func (f *CollyFetcher) fetchOnce(requestURL string) (string, error) {
	c := f.collector.Clone()

	var (
		body     []byte
		fetchErr error
	)
	c.OnRequest(func(r *colly.Request) {
		f.Metrics.IncRequest("started")
	})
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = classifyError(err, statusCode)
	})

	start := time.Now()
	err := c.Visit(requestURL)
	f.Metrics.ObserveDuration(time.Since(start))

	if fetchErr != nil {
		f.Metrics.IncRequest("failed")
		return "", fetchErr
	}
	if err != nil {
		f.Metrics.IncRequest("failed")
		return "", classifyError(err, 0)
	}
	f.Metrics.IncRequest("succeeded")
	return string(body), nil
}

// renderURL wraps target in the render proxy request when one is configured.
func renderURL(cfg *config.Config, target string) (string, error) {
	if cfg.RenderProxyURL == "" {
		return target, nil
	}
	proxy, err := url.Parse(cfg.RenderProxyURL)
	if err != nil {
		return "", fmt.Errorf("parse render proxy url: %w", err)
	}
	q := proxy.Query()
	if cfg.RenderProxyAPIKey != "" {
		q.Set("api_key", cfg.RenderProxyAPIKey)
	}
	q.Set("url", target)
	q.Set("render", "true")
	if cfg.RenderProxyCountry != "" {
		q.Set("country_code", cfg.RenderProxyCountry)
	}
	proxy.RawQuery = q.Encode()
	return proxy.String(), nil
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case statusCode == http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case statusCode == http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		case statusCode >= http.StatusInternalServerError:
			return ErrServer{Status: statusCode, Err: wrapped}
		}
	}

	if err == nil {
		return fmt.Errorf("http status %d", statusCode)
	}
	return err
}

type retryPolicy struct {
	base time.Duration
	max  time.Duration
}

func newRetryPolicy(cfg *config.Config) retryPolicy {
	return retryPolicy{base: cfg.RetryBackoff, max: cfg.RetryBackoffMax}
}

func (rp retryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rp.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := rp.max; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func (rp retryPolicy) wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
