package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aluiziolira/go-price-pilot/config"
	"github.com/jarcoal/httpmock"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Parallelism = 2
	cfg.Timeout = 5 * time.Second
	cfg.MaxRetries = 0
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 5 * time.Millisecond
	cfg.CacheSize = 0
	return cfg
}

func TestRetryPolicyBackoffCapped(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond

	rp := newRetryPolicy(cfg)

	if got := rp.backoff(1); got != 200*time.Millisecond {
		t.Fatalf("first backoff = %v, want 200ms", got)
	}
	if got := rp.backoff(2); got != 400*time.Millisecond {
		t.Fatalf("second backoff = %v, want 400ms", got)
	}
	delay := rp.backoff(4)
	if delay > cfg.RetryBackoffMax {
		t.Fatalf("delay %v exceeds max %v", delay, cfg.RetryBackoffMax)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: nil, statusCode: http.StatusBadGateway, expected: "server_error"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestExtractionFailureLabel(t *testing.T) {
	wrapped := ExtractionFailure{Marketplace: "noon", Err: ErrTimeout{Err: context.DeadlineExceeded}}
	if got := errorTypeLabel(wrapped); got != "timeout" {
		t.Fatalf("label = %q, want timeout", got)
	}
	parse := ExtractionFailure{Marketplace: "noon", Err: errors.New("bad html")}
	if got := errorTypeLabel(parse); got != "extraction" {
		t.Fatalf("label = %q, want extraction", got)
	}
}

func TestErrorTypeLabelThroughWrapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		label     string
		retryable bool
	}{
		{
			name:      "server error inside extraction",
			err:       fmt.Errorf("run: %w", ExtractionFailure{Marketplace: "noon", Err: fmt.Errorf("fetch: %w", ErrServer{Status: 502, Err: errors.New("bad gateway")})}),
			label:     "server_error",
			retryable: true,
		},
		{
			name:      "forbidden inside extraction",
			err:       ExtractionFailure{Marketplace: "ebay", Err: ErrForbidden{Err: errors.New("http status 403")}},
			label:     "forbidden",
			retryable: false,
		},
		{
			name:      "wrapped extraction without cause",
			err:       fmt.Errorf("run: %w", ExtractionFailure{Marketplace: "amazon-us", Err: errors.New("no prices")}),
			label:     "extraction",
			retryable: false,
		},
		{
			name:      "plain error",
			err:       errors.New("boom"),
			label:     "other",
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(tt.err); got != tt.label {
				t.Fatalf("errorTypeLabel() = %q, want %q", got, tt.label)
			}
			if got := retryable(tt.err); got != tt.retryable {
				t.Fatalf("retryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestErrServerMessage(t *testing.T) {
	err := ErrServer{Status: 503, Err: errors.New("http status 503")}
	if got := err.Error(); got != "server_error 503: http status 503" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestRenderURL(t *testing.T) {
	cfg := config.DefaultConfig()
	target := "https://www.noon.com/saudi-en/search/?q=desk+lamp"

	direct, err := renderURL(cfg, target)
	if err != nil || direct != target {
		t.Fatalf("renderURL without proxy = %q, %v", direct, err)
	}

	cfg.RenderProxyURL = "https://proxy.example.test/render"
	cfg.RenderProxyAPIKey = "secret"
	cfg.RenderProxyCountry = "sa"
	proxied, err := renderURL(cfg, target)
	if err != nil {
		t.Fatalf("renderURL: %v", err)
	}
	parsed, err := url.Parse(proxied)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := parsed.Query()
	if parsed.Host != "proxy.example.test" || q.Get("url") != target || q.Get("api_key") != "secret" ||
		q.Get("render") != "true" || q.Get("country_code") != "sa" {
		t.Fatalf("unexpected proxied url %s", proxied)
	}
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func TestCollyFetcherFetch(t *testing.T) {
	cfg := testConfig()
	target := "http://shop.example.test/search?q=lamp"
	page := buildAmazonPage([]listing{{title: "Desk Lamp", price: "$40.00"}})

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", target, htmlResponder(page))

	f, err := NewCollyFetcher(cfg, NewMetrics())
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	f.WithTransport(transport)

	body, err := f.Fetch(context.Background(), target)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if body != page {
		t.Fatalf("body mismatch: %q", body)
	}

	// Revisits must not be rejected as already visited.
	if _, err := f.Fetch(context.Background(), target); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
}

func TestCollyFetcherHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
		{status: http.StatusServiceUnavailable, expected: "server_error"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			cfg := testConfig()
			target := "http://shop.example.test/search?q=lamp"

			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", target, httpmock.NewStringResponder(tt.status, ""))

			f, err := NewCollyFetcher(cfg, NewMetrics())
			if err != nil {
				t.Fatalf("new fetcher: %v", err)
			}
			f.WithTransport(transport)

			_, err = f.Fetch(context.Background(), target)
			if err == nil {
				t.Fatalf("expected error for status %d", tt.status)
			}
			if got := errorTypeLabel(err); got != tt.expected {
				t.Fatalf("label = %q, want %q (err=%v)", got, tt.expected, err)
			}
		})
	}
}

func TestCollyFetcherRetriesTransientFailures(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	target := "http://shop.example.test/search?q=lamp"

	var calls int32
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", target, func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return httpmock.NewStringResponse(http.StatusBadGateway, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, "<html>ok</html>"), nil
	})

	f, err := NewCollyFetcher(cfg, NewMetrics())
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	f.WithTransport(transport)

	body, err := f.Fetch(context.Background(), target)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(body, "ok") {
		t.Fatalf("unexpected body %q", body)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestCollyFetcherDoesNotRetryNotFound(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3
	target := "http://shop.example.test/missing"

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", target, httpmock.NewStringResponder(http.StatusNotFound, ""))

	f, err := NewCollyFetcher(cfg, NewMetrics())
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	f.WithTransport(transport)

	if _, err := f.Fetch(context.Background(), target); err == nil {
		t.Fatalf("expected not found error")
	}
	if got := transport.GetCallCountInfo()["GET "+target]; got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestCollyFetcherUsesRenderProxy(t *testing.T) {
	cfg := testConfig()
	cfg.RenderProxyURL = "http://proxy.example.test/"
	cfg.RenderProxyAPIKey = "k"
	target := "https://www.amazon.com/s?k=lamp"

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://proxy.example.test/", func(req *http.Request) (*http.Response, error) {
		if req.URL.Query().Get("url") != target || req.URL.Query().Get("render") != "true" {
			return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, "<html>rendered</html>"), nil
	})

	f, err := NewCollyFetcher(cfg, nil)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	f.WithTransport(transport)

	body, err := f.Fetch(context.Background(), target)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if body != "<html>rendered</html>" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestCollyFetcherCanceledContext(t *testing.T) {
	f, err := NewCollyFetcher(testConfig(), nil)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Fetch(ctx, "http://shop.example.test/"); err == nil {
		t.Fatalf("expected error for canceled context")
	}
}

func TestRestyFetcher(t *testing.T) {
	cfg := testConfig()
	target := "http://shop.example.test/search?q=lamp"
	missing := "http://shop.example.test/missing"

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", target, htmlResponder("<html>resty</html>"))
	transport.RegisterResponder("GET", missing, httpmock.NewStringResponder(http.StatusForbidden, "blocked"))

	f := NewRestyFetcher(cfg, NewMetrics())
	f.WithTransport(transport)

	body, err := f.Fetch(context.Background(), target)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if body != "<html>resty</html>" {
		t.Fatalf("unexpected body %q", body)
	}

	_, err = f.Fetch(context.Background(), missing)
	var forbidden ErrForbidden
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCachedFetcher(t *testing.T) {
	inner := &stubFetcher{
		pages: map[string]string{"a": "page-a"},
		errs:  map[string]error{"b": errors.New("boom")},
	}
	metrics := NewMetrics()
	cached := NewCachedFetcher(inner, 8, time.Minute, metrics)

	for i := 0; i < 3; i++ {
		body, err := cached.Fetch(context.Background(), "a")
		if err != nil || body != "page-a" {
			t.Fatalf("fetch a = %q, %v", body, err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("inner calls = %d, want 1", inner.calls)
	}

	for i := 0; i < 2; i++ {
		if _, err := cached.Fetch(context.Background(), "b"); err == nil {
			t.Fatalf("expected error for b")
		}
	}
	if inner.calls != 3 {
		t.Fatalf("failures must not be cached, inner calls = %d", inner.calls)
	}
	if cached.Len() != 1 {
		t.Fatalf("cache len = %d, want 1", cached.Len())
	}
}

func TestNewFetcherBackends(t *testing.T) {
	cfg := testConfig()
	cfg.FetchBackend = "resty"
	f, err := NewFetcher(cfg, nil)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	if _, ok := f.(*RestyFetcher); !ok {
		t.Fatalf("expected *RestyFetcher, got %T", f)
	}

	cfg.FetchBackend = "colly"
	cfg.CacheSize = 4
	cfg.CacheTTL = time.Minute
	f, err = NewFetcher(cfg, nil)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	if _, ok := f.(*CachedFetcher); !ok {
		t.Fatalf("expected *CachedFetcher, got %T", f)
	}

	cfg.FetchBackend = "wget"
	if _, err := NewFetcher(cfg, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
