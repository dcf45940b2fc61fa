package pricing

import "strings"

// DefaultElasticity applies to categories missing from the table.
const DefaultElasticity = -1.0

var categoryElasticity = map[string]float64{
	"electronics": -1.5,
	"fashion":     -1.2,
	"clothing":    -1.2,
	"beauty":      -1.0,
	"home":        -1.1,
	"groceries":   -0.5,
	"food":        -0.5,
	"books":       -0.9,
	"toys":        -1.3,
	"sports":      -1.2,
	"automotive":  -0.8,
	"health":      -0.7,
}

// CategoryElasticity returns the base elasticity for a category, preferring overrides.
func CategoryElasticity(category string, overrides map[string]float64) float64 {
	key := strings.ToLower(strings.TrimSpace(category))
	for name, value := range overrides {
		if strings.ToLower(strings.TrimSpace(name)) == key {
			return value
		}
	}
	if value, ok := categoryElasticity[key]; ok {
		return value
	}
	return DefaultElasticity
}
