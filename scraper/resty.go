package scraper

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aluiziolira/go-price-pilot/config"
	"github.com/go-resty/resty/v2"
)

// RestyFetcher fetches pages with a resty client. Retries are handled by resty itself.
type RestyFetcher struct {
	cfg     *config.Config
	client  *resty.Client
	Metrics *Metrics
}

// NewRestyFetcher builds a resty-backed fetcher configured from cfg.
func NewRestyFetcher(cfg *config.Config, metrics *Metrics) *RestyFetcher {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryBackoff).
		SetRetryMaxWaitTime(cfg.RetryBackoffMax).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return retryable(classifyError(err, 0))
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		}).
		AddRetryHook(func(r *resty.Response, err error) {
			metrics.IncRetries()
		})

	return &RestyFetcher{cfg: cfg, client: client, Metrics: metrics}
}

// WithTransport swaps the HTTP transport, mainly for tests.
func (f *RestyFetcher) WithTransport(rt http.RoundTripper) {
	f.client.SetTransport(rt)
}

// Fetch returns the page body or a classified transport error.
func (f *RestyFetcher) Fetch(ctx context.Context, target string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	requestURL, err := renderURL(f.cfg, target)
	if err != nil {
		return "", err
	}

	f.Metrics.IncRequest("started")
	start := time.Now()
	resp, err := f.client.R().SetContext(ctx).Get(requestURL)
	f.Metrics.ObserveDuration(time.Since(start))

	if err != nil {
		classified := classifyError(err, 0)
		f.Metrics.IncRequest("failed")
		f.Metrics.IncError(errorTypeLabel(classified))
		return "", fmt.Errorf("fetch %s: %w", target, classified)
	}
	if resp.IsError() {
		classified := classifyError(nil, resp.StatusCode())
		f.Metrics.IncRequest("failed")
		f.Metrics.IncError(errorTypeLabel(classified))
		return "", fmt.Errorf("fetch %s: %w", target, classified)
	}

	f.Metrics.IncRequest("succeeded")
	return resp.String(), nil
}
