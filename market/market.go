// Package market reduces marketplace price lists into summary statistics.
package market

import "github.com/aluiziolira/go-price-pilot/models"

// Summary holds lowest/average/highest for a price list. Fields are nil when the list is empty.
type Summary struct {
	Lowest  *float64
	Average *float64
	Highest *float64
}

// Summarize computes min, mean and max of prices.
func Summarize(prices []float64) Summary {
	if len(prices) == 0 {
		return Summary{}
	}
	lowest, highest := prices[0], prices[0]
	var total float64
	for _, p := range prices {
		total += p
		if p < lowest {
			lowest = p
		}
		if p > highest {
			highest = p
		}
	}
	return Summary{
		Lowest:  models.Float(lowest),
		Average: models.Float(total / float64(len(prices))),
		Highest: models.Float(highest),
	}
}

// Aggregate pools the lowest/average/highest triple of every successful marketplace
// and returns the pool-wide min, mean and max. Raw listing prices are not pooled.
func Aggregate(results []*models.MarketplaceResult) models.MarketStats {
	pool := make([]float64, 0, len(results)*3)
	for _, r := range results {
		if r == nil || r.Status != models.StatusSuccess {
			continue
		}
		for _, v := range []*float64{r.Lowest, r.Average, r.Highest} {
			if v != nil {
				pool = append(pool, *v)
			}
		}
	}

	s := Summarize(pool)
	return models.MarketStats{
		Lowest:  s.Lowest,
		Average: s.Average,
		Highest: s.Highest,
	}
}
