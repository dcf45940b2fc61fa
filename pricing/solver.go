// Package pricing computes a recommended price from a linear demand model bounded by
// competitor prices.
package pricing

import (
	"fmt"
	"math"
	"time"

	"github.com/aluiziolira/go-price-pilot/config"
	"github.com/aluiziolira/go-price-pilot/models"
	"github.com/aluiziolira/go-price-pilot/parser"
)

const (
	underpricedThreshold = 0.95
	overpricedThreshold  = 1.05
	underpricedFactor    = 1.10
	overpricedFactor     = 0.90

	bandLowRatio    = 0.95
	bandHighRatio   = 1.10
	aboveClampRatio = 1.05
)

// Warnings attached when the guard rail overrides the computed optimum.
const (
	WarningBelowBand = "optimal price below market range; suggesting the lowest competitor price"
	WarningAboveBand = "optimal price above market range; suggesting 5% above the highest competitor price"
)

// Clamp directions reported for metrics.
const (
	ClampNone  = ""
	ClampBelow = "below"
	ClampAbove = "above"
)

// InvalidBaselineError is returned when the solver preconditions do not hold.
type InvalidBaselineError struct {
	Err error
}

func (e InvalidBaselineError) Error() string {
	return fmt.Errorf("invalid baseline: %w", e.Err).Error()
}

func (e InvalidBaselineError) Unwrap() error {
	return e.Err
}

// Params are the tuning constants of the bounded elasticity search.
type Params struct {
	MaxIterations int
	StepDown      float64
	StepUp        float64
}

// DefaultParams returns 10 rounds with a 5% elasticity step either way.
func DefaultParams() Params {
	return Params{MaxIterations: 10, StepDown: 0.95, StepUp: 1.05}
}

// ParamsFromConfig reads solver tuning from cfg.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		MaxIterations: cfg.SolverMaxIterations,
		StepDown:      cfg.SolverStepDown,
		StepUp:        cfg.SolverStepUp,
	}
}

// Input is everything one solve needs.
type Input struct {
	CurrentPrice    float64
	CurrentQuantity float64
	CostPerUnit     float64
	BaseElasticity  float64
	InflationRate   float64
	Market          models.MarketStats
}

// demandCurve is quantity(price) = a - b*price.
type demandCurve struct {
	a, b float64
}

// linearDemand pins the line through (price, quantity) with slope |elasticity|*quantity/price.
func linearDemand(elasticity, price, quantity float64) demandCurve {
	b := math.Abs(elasticity) * quantity / price
	return demandCurve{a: quantity + b*price, b: b}
}

// optimalPrice maximises (price-cost)*quantity(price).
func (d demandCurve) optimalPrice(cost float64) float64 {
	return (d.a + d.b*cost) / (2 * d.b)
}

func (d demandCurve) quantityAt(price float64) float64 {
	return math.Max(0, d.a-d.b*price)
}

// CompetitorFactor nudges elasticity up when underpriced against the market average and
// down when overpriced. Without an average it is neutral.
func CompetitorFactor(currentPrice float64, average *float64) float64 {
	if average == nil {
		return 1.0
	}
	switch {
	case currentPrice < *average*underpricedThreshold:
		return underpricedFactor
	case currentPrice > *average*overpricedThreshold:
		return overpricedFactor
	default:
		return 1.0
	}
}

// Solve runs the bounded fixed-point search and applies the guard-rail clamp.
// Non-convergence is not an error: the last computed price is clamped and returned.
func Solve(in Input, params Params) (*models.PricingResult, error) {
	if err := validateInput(in); err != nil {
		return nil, InvalidBaselineError{Err: err}
	}
	if params.MaxIterations <= 0 {
		params.MaxIterations = DefaultParams().MaxIterations
	}

	inflationAdjustment := 1 + in.InflationRate
	competitorFactor := CompetitorFactor(in.CurrentPrice, in.Market.Average)
	elasticity := in.BaseElasticity * inflationAdjustment * competitorFactor

	bounded := in.Market.HasBounds()
	var bandLow, bandHigh float64
	if bounded {
		bandLow = *in.Market.Lowest * bandLowRatio
		bandHigh = *in.Market.Highest * bandHighRatio
	}

	var (
		curve      demandCurve
		optimal    float64
		iterations int
		converged  bool
	)
	for {
		iterations++
		curve = linearDemand(elasticity, in.CurrentPrice, in.CurrentQuantity)
		optimal = curve.optimalPrice(in.CostPerUnit)
		if !bounded || (optimal >= bandLow && optimal <= bandHigh) {
			converged = true
			break
		}
		if iterations >= params.MaxIterations {
			break
		}
		if optimal < bandLow {
			elasticity *= params.StepDown
		} else {
			elasticity *= params.StepUp
		}
	}

	suggested, warning := clamp(optimal, in.Market, bandLow, bandHigh)

	demand := curve.quantityAt(suggested)
	expectedProfit := (suggested - in.CostPerUnit) * demand
	currentProfit := (in.CurrentPrice - in.CostPerUnit) * in.CurrentQuantity
	delta := expectedProfit - currentProfit

	result := &models.PricingResult{
		OptimalPrice:         optimal,
		SuggestedPrice:       suggested,
		CalibratedElasticity: elasticity,
		CompetitorFactor:     competitorFactor,
		InflationAdjustment:  inflationAdjustment,
		ExpectedDemand:       demand,
		ExpectedProfit:       expectedProfit,
		CurrentProfit:        currentProfit,
		ProfitDelta:          delta,
		ProfitDeltaPercent:   delta / currentProfit * 100,
		Warning:              warning,
		IterationsUsed:       iterations,
		Converged:            converged,
		CreatedAt:            time.Now().UTC(),
	}
	if avg := in.Market.Average; avg != nil && *avg != 0 {
		result.PositionVsMarket = models.Float((suggested - *avg) / *avg * 100)
	}
	return result, nil
}

// clamp keeps the suggestion inside [lowest, highest*1.10]. Optima outside the tolerance
// band carry a warning; optima inside it but under the lowest competitor snap up silently.
func clamp(optimal float64, market models.MarketStats, bandLow, bandHigh float64) (float64, string) {
	if !market.HasBounds() {
		return optimal, ""
	}
	switch {
	case optimal < bandLow:
		return *market.Lowest, WarningBelowBand
	case optimal > bandHigh:
		return *market.Highest * aboveClampRatio, WarningAboveBand
	case optimal < *market.Lowest:
		return *market.Lowest, ""
	default:
		return optimal, ""
	}
}

// ClampDirection reports which guard rail, if any, produced the suggestion.
func ClampDirection(result *models.PricingResult) string {
	if result == nil {
		return ClampNone
	}
	switch result.Warning {
	case WarningBelowBand:
		return ClampBelow
	case WarningAboveBand:
		return ClampAbove
	default:
		return ClampNone
	}
}

func validateInput(in Input) error {
	if err := parser.ValidateEconomics(in.CurrentPrice, in.CostPerUnit, in.CurrentQuantity); err != nil {
		return err
	}
	if in.BaseElasticity == 0 || !parser.IsFinite(in.BaseElasticity) {
		return parser.ValidationError{Field: "elasticity", Reason: "must be a finite non-zero number"}
	}
	if !parser.IsFinite(in.InflationRate) || in.InflationRate <= -1 {
		return parser.ValidationError{Field: "inflation rate", Reason: "must be a finite number greater than -1"}
	}
	for _, v := range []*float64{in.Market.Lowest, in.Market.Average, in.Market.Highest} {
		if v != nil && !parser.IsFinite(*v) {
			return parser.ValidationError{Field: "market", Reason: "competitor prices must be finite"}
		}
	}
	if in.Market.Lowest != nil && in.Market.Highest != nil && *in.Market.Lowest > *in.Market.Highest {
		return parser.ValidationError{Field: "market", Reason: "lowest exceeds highest"}
	}
	return nil
}
