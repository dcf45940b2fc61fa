// Package models defines data structures shared by the extraction pipeline and the price solver.
package models

import "time"

// Baseline holds the merchant's declared product facts before any adjustment.
type Baseline struct {
	ID           string   `json:"id"`
	ProductName  string   `json:"product_name"`
	Category     string   `json:"category"`
	Currency     string   `json:"currency"`
	CurrentPrice float64  `json:"current_price"`
	CostPerUnit  float64  `json:"cost_per_unit"`
	Quantity     float64  `json:"quantity"`
	Marketplaces []string `json:"marketplaces,omitempty"`
}

// ProductQuery is the search form of a product name. Immutable once built.
type ProductQuery struct {
	RawName        string   `json:"raw_name"`
	SimplifiedName string   `json:"simplified_name"`
	Keywords       []string `json:"keywords"`
}

// ExtractedOffer is one (title, price) pair pulled from a listing container.
type ExtractedOffer struct {
	Title        string
	RawPriceText string
	ParsedPrice  *float64
}

// MarketplaceStatus is the terminal state of one marketplace fetch.
type MarketplaceStatus string

const (
	StatusSuccess MarketplaceStatus = "success"
	StatusNoData  MarketplaceStatus = "no_data"
	StatusFailed  MarketplaceStatus = "failed"
)

// MarketplaceResult is the outcome of fetching and extracting one marketplace.
type MarketplaceResult struct {
	Marketplace  string            `json:"marketplace"`
	Status       MarketplaceStatus `json:"status"`
	Prices       []float64         `json:"prices"`
	Lowest       *float64          `json:"lowest,omitempty"`
	Average      *float64          `json:"average,omitempty"`
	Highest      *float64          `json:"highest,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ErrorType    string            `json:"error_type,omitempty"`
	URL          string            `json:"url,omitempty"`
	ScrapedAt    time.Time         `json:"scraped_at"`
}

// MarketStats aggregates all successful marketplaces. A nil field means no market signal.
type MarketStats struct {
	Lowest  *float64 `json:"lowest,omitempty"`
	Average *float64 `json:"average,omitempty"`
	Highest *float64 `json:"highest,omitempty"`
}

// HasBounds reports whether both ends of the competitive band are known.
func (s MarketStats) HasBounds() bool {
	return s.Lowest != nil && s.Highest != nil
}

// PricingResult is the solver output for one run.
type PricingResult struct {
	OptimalPrice         float64   `json:"optimal_price"`
	SuggestedPrice       float64   `json:"suggested_price"`
	CalibratedElasticity float64   `json:"calibrated_elasticity"`
	CompetitorFactor     float64   `json:"competitor_factor"`
	InflationAdjustment  float64   `json:"inflation_adjustment"`
	ExpectedDemand       float64   `json:"expected_demand"`
	ExpectedProfit       float64   `json:"expected_profit"`
	CurrentProfit        float64   `json:"current_profit"`
	ProfitDelta          float64   `json:"profit_delta"`
	ProfitDeltaPercent   float64   `json:"profit_delta_percent"`
	PositionVsMarket     *float64  `json:"position_vs_market,omitempty"`
	Warning              string    `json:"warning,omitempty"`
	IterationsUsed       int       `json:"iterations_used"`
	Converged            bool      `json:"converged"`
	InflationSource      string    `json:"inflation_source,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// RunResult holds the overall result of one baseline processing run.
type RunResult struct {
	BaselineID   string               `json:"baseline_id"`
	Query        ProductQuery         `json:"query"`
	Marketplaces []*MarketplaceResult `json:"marketplaces"`
	Market       MarketStats          `json:"market"`
	Pricing      *PricingResult       `json:"pricing"`
	StartTime    time.Time            `json:"start_time"`
	EndTime      time.Time            `json:"end_time"`
	ErrorsByType map[string]int       `json:"errors_by_type,omitempty"`
}

// ProcessingState is a step in the orchestrator's status machine.
type ProcessingState string

const (
	StatePending           ProcessingState = "pending"
	StateFetchingInflation ProcessingState = "fetching_inflation"
	StateScraping          ProcessingState = "scraping"
	StateOptimizing        ProcessingState = "optimizing"
	StateCompleted         ProcessingState = "completed"
	StateFailed            ProcessingState = "failed"
)

// ProcessingStatus is the user-facing progress record for a baseline.
type ProcessingStatus struct {
	BaselineID string          `json:"baseline_id"`
	State      ProcessingState `json:"state"`
	Message    string          `json:"message,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Float returns a pointer to v, for optional fields.
func Float(v float64) *float64 {
	return &v
}
