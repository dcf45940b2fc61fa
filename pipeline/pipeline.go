// Package pipeline runs a baseline through inflation lookup, marketplace extraction,
// market aggregation and the price solver, recording status along the way.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-price-pilot/config"
	"github.com/aluiziolira/go-price-pilot/inflation"
	"github.com/aluiziolira/go-price-pilot/market"
	"github.com/aluiziolira/go-price-pilot/marketplace"
	"github.com/aluiziolira/go-price-pilot/models"
	"github.com/aluiziolira/go-price-pilot/parser"
	"github.com/aluiziolira/go-price-pilot/pricing"
	"github.com/aluiziolira/go-price-pilot/scraper"
	"github.com/aluiziolira/go-price-pilot/storage"
)

var (
	// ErrPipelineClosed is returned when Submit is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for report output.
type OutputWriter interface {
	Write(result *models.RunResult) error
	Close() error
	Validate() error
}

// Orchestrator coordinates one processing run per baseline. It is safe for concurrent use
// by different baselines.
type Orchestrator struct {
	fetcher   scraper.Fetcher
	store     storage.Store
	writer    OutputWriter
	inflation *inflation.Table
	prom      *scraper.Metrics

	workers   int
	extract   scraper.ExtractOptions
	params    pricing.Params
	overrides map[string]float64

	metrics metrics
	wg      sync.WaitGroup

	mu     sync.Mutex // guards closed
	closed bool

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewOrchestrator wires an orchestrator. store and prom may be nil.
func NewOrchestrator(cfg *config.Config, fetcher scraper.Fetcher, store storage.Store, prom *scraper.Metrics) *Orchestrator {
	return &Orchestrator{
		fetcher:   fetcher,
		store:     store,
		inflation: inflation.NewTable(cfg.InflationRates),
		prom:      prom,
		workers:   cfg.Parallelism,
		extract:   scraper.ExtractOptionsFromConfig(cfg),
		params:    pricing.ParamsFromConfig(cfg),
		overrides: cfg.Elasticities,
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}
}

// SetWriter attaches a report writer that receives every completed run.
func (o *Orchestrator) SetWriter(w OutputWriter) {
	o.writer = w
}

// Prepare validates the baseline and normalizes its product name. It performs no I/O.
func (o *Orchestrator) Prepare(baseline *models.Baseline) (models.ProductQuery, error) {
	if err := parser.ValidateBaseline(baseline); err != nil {
		return models.ProductQuery{}, err
	}
	return parser.NormalizeQuery(baseline.ProductName)
}

// Submit validates synchronously and then runs the baseline in the background.
func (o *Orchestrator) Submit(ctx context.Context, baseline *models.Baseline) error {
	if _, err := o.Prepare(baseline); err != nil {
		if baseline != nil {
			o.fail(ctx, baseline.ID, err)
		}
		return err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrPipelineClosed
	}
	o.wg.Add(1)
	o.mu.Unlock()

	o.setStatus(ctx, baseline.ID, models.StatePending, "queued")

	// The run outlives the request that submitted it.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer o.wg.Done()
		if _, err := o.Run(runCtx, baseline); err != nil {
			slog.Error("baseline run failed", slog.String("baseline_id", baseline.ID), slog.Any("error", err))
		}
	}()
	return nil
}

// Run processes one baseline end to end. Validation errors are returned before any
// marketplace work. On failure the status is marked failed and stored results are untouched.
func (o *Orchestrator) Run(ctx context.Context, baseline *models.Baseline) (*models.RunResult, error) {
	if baseline == nil {
		return nil, parser.ValidationError{Reason: "baseline is nil"}
	}
	start := time.Now()
	o.setStatus(ctx, baseline.ID, models.StatePending, "")

	query, err := o.Prepare(baseline)
	if err != nil {
		o.fail(ctx, baseline.ID, err)
		return nil, err
	}

	o.setStatus(ctx, baseline.ID, models.StateFetchingInflation, "")
	rate := o.inflation.Lookup(baseline.Currency)

	ids := baseline.Marketplaces
	if len(ids) == 0 {
		ids = marketplace.ForCurrency(baseline.Currency)
	}
	o.setStatus(ctx, baseline.ID, models.StateScraping, fmt.Sprintf("searching %d marketplaces", len(ids)))
	slog.Info("scraping marketplaces",
		slog.String("baseline_id", baseline.ID),
		slog.String("query", query.SimplifiedName),
		slog.Any("marketplaces", ids),
	)
	results := o.scrapeAll(ctx, ids, query, baseline.CurrentPrice)
	stats := market.Aggregate(results)

	o.setStatus(ctx, baseline.ID, models.StateOptimizing, "")
	priced, err := pricing.Solve(pricing.Input{
		CurrentPrice:    baseline.CurrentPrice,
		CurrentQuantity: baseline.Quantity,
		CostPerUnit:     baseline.CostPerUnit,
		BaseElasticity:  pricing.CategoryElasticity(baseline.Category, o.overrides),
		InflationRate:   rate.Rate,
		Market:          stats,
	}, o.params)
	if err != nil {
		o.fail(ctx, baseline.ID, err)
		return nil, err
	}
	priced.InflationSource = rate.Source
	o.prom.ObserveSolve(priced.IterationsUsed, pricing.ClampDirection(priced))

	if o.store != nil {
		if err := o.store.SaveRun(ctx, baseline.ID, results, priced); err != nil {
			err = fmt.Errorf("save run: %w", err)
			o.fail(ctx, baseline.ID, err)
			return nil, err
		}
	}

	run := &models.RunResult{
		BaselineID:   baseline.ID,
		Query:        query,
		Marketplaces: results,
		Market:       stats,
		Pricing:      priced,
		StartTime:    start,
		EndTime:      time.Now(),
		ErrorsByType: errorsByType(results),
	}

	if o.writer != nil {
		if err := o.writer.Write(run); err != nil {
			err = fmt.Errorf("write report: %w", err)
			o.fail(ctx, baseline.ID, err)
			return nil, err
		}
	}

	o.metrics.incrementCompleted()
	o.setStatus(ctx, baseline.ID, models.StateCompleted, fmt.Sprintf("suggested price %.2f", priced.SuggestedPrice))
	slog.Info("baseline run completed",
		slog.String("baseline_id", baseline.ID),
		slog.Float64("suggested_price", priced.SuggestedPrice),
		slog.Int("iterations", priced.IterationsUsed),
		slog.String("warning", priced.Warning),
		slog.Duration("duration", run.EndTime.Sub(start)),
	)
	return run, nil
}

// Close waits for background runs to finish and prevents more submissions.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.signalShutdown()
	o.wg.Wait()
	return nil
}

// GetMetrics returns a snapshot of the internal counters.
func (o *Orchestrator) GetMetrics() map[string]interface{} {
	return o.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (o *Orchestrator) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				snapshot := o.GetMetrics()
				slog.Info("pipeline progress",
					slog.Int64("completed_runs", snapshot["completed_runs"].(int64)),
					slog.Int64("failed_runs", snapshot["failed_runs"].(int64)),
					slog.Any("marketplace_statuses", snapshot["marketplace_statuses"]),
				)
			case <-o.shutdown:
				return
			}
		}
	}()
}

// scrapeAll fans marketplaces out to a bounded worker pool. Results keep the input order.
func (o *Orchestrator) scrapeAll(ctx context.Context, ids []string, query models.ProductQuery, baselinePrice float64) []*models.MarketplaceResult {
	results := make([]*models.MarketplaceResult, len(ids))
	if len(ids) == 0 {
		return results
	}

	workers := o.workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(ids) {
		workers = len(ids)
	}

	jobs := make(chan int, len(ids))
	for i := range ids {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				result := scraper.ScrapeMarketplace(ctx, o.fetcher, ids[idx], query, baselinePrice, o.extract, o.prom)
				o.metrics.addMarketplace(string(result.Status))
				results[idx] = result
			}
		}()
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) fail(ctx context.Context, baselineID string, err error) {
	o.metrics.incrementFailed()
	o.setStatus(ctx, baselineID, models.StateFailed, err.Error())
}

func (o *Orchestrator) setStatus(ctx context.Context, baselineID string, state models.ProcessingState, message string) {
	if o.store == nil {
		return
	}
	// Status must still land when the run itself was canceled.
	ctx = context.WithoutCancel(ctx)
	err := o.store.SetStatus(ctx, models.ProcessingStatus{
		BaselineID: baselineID,
		State:      state,
		Message:    message,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("recording processing status",
			slog.String("baseline_id", baselineID),
			slog.String("state", string(state)),
			slog.Any("error", err),
		)
	}
}

func (o *Orchestrator) signalShutdown() {
	o.shutdownOnce.Do(func() {
		close(o.shutdown)
	})
}

func errorsByType(results []*models.MarketplaceResult) map[string]int {
	counts := make(map[string]int)
	for _, r := range results {
		if r != nil && r.Status == models.StatusFailed {
			counts[r.ErrorType]++
		}
	}
	return counts
}

type metrics struct {
	mu           sync.Mutex
	completed    int64
	failed       int64
	marketplaces map[string]int
}

func newMetrics() metrics {
	return metrics{
		marketplaces: make(map[string]int),
	}
}

func (m *metrics) incrementCompleted() {
	m.mu.Lock()
	m.completed++
	m.mu.Unlock()
}

func (m *metrics) incrementFailed() {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()
}

func (m *metrics) addMarketplace(status string) {
	m.mu.Lock()
	m.marketplaces[status]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make(map[string]int, len(m.marketplaces))
	for k, v := range m.marketplaces {
		statuses[k] = v
	}

	return map[string]interface{}{
		"completed_runs":       m.completed,
		"failed_runs":          m.failed,
		"marketplace_statuses": statuses,
	}
}
