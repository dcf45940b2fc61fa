// Package storage persists marketplace results, pricing results and processing status.
package storage

import (
	"context"
	"errors"

	"github.com/aluiziolira/go-price-pilot/models"
)

// ErrNotFound is returned when a baseline has no stored record of the requested kind.
var ErrNotFound = errors.New("storage: not found")

// Store is the persistence surface the orchestrator and HTTP API depend on.
type Store interface {
	// SaveRun replaces the marketplace results of a baseline and appends its pricing
	// result in one transaction.
	SaveRun(ctx context.Context, baselineID string, results []*models.MarketplaceResult, pricing *models.PricingResult) error
	SetStatus(ctx context.Context, status models.ProcessingStatus) error
	Status(ctx context.Context, baselineID string) (*models.ProcessingStatus, error)
	MarketplaceResults(ctx context.Context, baselineID string) ([]*models.MarketplaceResult, error)
	LatestPricing(ctx context.Context, baselineID string) (*models.PricingResult, error)
	Close() error
}
