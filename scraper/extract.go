package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-price-pilot/config"
	"github.com/aluiziolira/go-price-pilot/market"
	"github.com/aluiziolira/go-price-pilot/marketplace"
	"github.com/aluiziolira/go-price-pilot/models"
	"github.com/aluiziolira/go-price-pilot/parser"
)

// ExtractOptions bounds which prices are accepted from a search page.
type ExtractOptions struct {
	MaxPrices    int
	FloorRatio   float64
	CeilingRatio float64
}

// DefaultExtractOptions keeps the first 20 prices within [0.3x, 3x] of the baseline.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{MaxPrices: 20, FloorRatio: 0.3, CeilingRatio: 3.0}
}

// ExtractOptionsFromConfig reads the extraction limits from cfg.
func ExtractOptionsFromConfig(cfg *config.Config) ExtractOptions {
	return ExtractOptions{
		MaxPrices:    cfg.MaxPricesPerMarketplace,
		FloorRatio:   cfg.PriceFloorRatio,
		CeilingRatio: cfg.PriceCeilingRatio,
	}
}

// ExtractOffers reads (title, price) pairs from every listing container in document order.
// Containers missing either child are skipped.
func ExtractOffers(doc *goquery.Document, profile marketplace.Profile) []models.ExtractedOffer {
	var offers []models.ExtractedOffer
	doc.Find(profile.Selectors.Container).Each(func(_ int, container *goquery.Selection) {
		titleSel := container.Find(profile.Selectors.Title).First()
		priceSel := container.Find(profile.Selectors.Price).First()
		if titleSel.Length() == 0 || priceSel.Length() == 0 {
			return
		}

		offer := models.ExtractedOffer{
			Title:        strings.TrimSpace(titleSel.Text()),
			RawPriceText: strings.TrimSpace(priceSel.Text()),
		}
		if price, ok := parser.ParsePrice(offer.RawPriceText); ok {
			offer.ParsedPrice = &price
		}
		offers = append(offers, offer)
	})
	return offers
}

// ValidatePrices keeps offers whose title matches a keyword and whose price is plausible
// against the baseline, in encounter order, capped at opts.MaxPrices.
func ValidatePrices(offers []models.ExtractedOffer, keywords []string, baselinePrice float64, opts ExtractOptions) []float64 {
	floor := opts.FloorRatio * baselinePrice
	ceiling := opts.CeilingRatio * baselinePrice

	prices := make([]float64, 0, opts.MaxPrices)
	for _, offer := range offers {
		if len(prices) >= opts.MaxPrices {
			break
		}
		if !parser.MatchesKeywords(offer.Title, keywords) {
			continue
		}
		if offer.ParsedPrice == nil {
			continue
		}
		price := *offer.ParsedPrice
		if price < floor || price > ceiling {
			continue
		}
		prices = append(prices, price)
	}
	return prices
}

// Extract returns validated prices for marketplaceID from a parsed page. Unknown
// marketplaces yield an empty result without touching the document.
func Extract(doc *goquery.Document, marketplaceID string, keywords []string, baselinePrice float64, opts ExtractOptions) []float64 {
	profile, ok := marketplace.Lookup(marketplaceID)
	if !ok {
		return nil
	}
	return ValidatePrices(ExtractOffers(doc, profile), keywords, baselinePrice, opts)
}

// ExtractHTML parses html and runs Extract on it.
func ExtractHTML(html, marketplaceID string, keywords []string, baselinePrice float64, opts ExtractOptions) ([]float64, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return Extract(doc, marketplaceID, keywords, baselinePrice, opts), nil
}

// ScrapeMarketplace fetches and extracts one marketplace. Every failure, including a panic
// from a malformed selector, is converted into a failed result so siblings keep running.
func ScrapeMarketplace(ctx context.Context, fetcher Fetcher, marketplaceID string, query models.ProductQuery, baselinePrice float64, opts ExtractOptions, metrics *Metrics) (result *models.MarketplaceResult) {
	result = &models.MarketplaceResult{
		Marketplace: marketplaceID,
		Status:      models.StatusNoData,
		Prices:      []float64{},
		ScrapedAt:   time.Now().UTC(),
	}
	defer func() {
		if r := recover(); r != nil {
			fail(result, ExtractionFailure{Marketplace: marketplaceID, Err: fmt.Errorf("panic: %v", r)}, metrics)
		}
		metrics.ObserveMarketplace(marketplaceID, string(result.Status), len(result.Prices))
	}()

	profile, ok := marketplace.Lookup(marketplaceID)
	if !ok {
		slog.Debug("no selector profile for marketplace", slog.String("marketplace", marketplaceID))
		return result
	}

	result.URL = profile.SearchURL(query.SimplifiedName)
	html, err := fetcher.Fetch(ctx, result.URL)
	if err != nil {
		fail(result, ExtractionFailure{Marketplace: marketplaceID, Err: err}, metrics)
		return result
	}

	prices, err := ExtractHTML(html, marketplaceID, query.Keywords, baselinePrice, opts)
	if err != nil {
		fail(result, ExtractionFailure{Marketplace: marketplaceID, Err: err}, metrics)
		return result
	}
	if len(prices) == 0 {
		return result
	}

	summary := market.Summarize(prices)
	result.Status = models.StatusSuccess
	result.Prices = prices
	result.Lowest = summary.Lowest
	result.Average = summary.Average
	result.Highest = summary.Highest
	return result
}

func fail(result *models.MarketplaceResult, err error, metrics *Metrics) {
	result.Status = models.StatusFailed
	result.Prices = []float64{}
	result.Lowest, result.Average, result.Highest = nil, nil, nil
	result.ErrorMessage = err.Error()
	result.ErrorType = errorTypeLabel(err)
	metrics.IncError(result.ErrorType)
	slog.Warn("marketplace extraction failed",
		slog.String("marketplace", result.Marketplace),
		slog.String("url", result.URL),
		slog.Any("error", err),
	)
}
