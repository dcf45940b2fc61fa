// Package inflation provides the static per-currency inflation lookup.
package inflation

import "strings"

// Rate is an annual inflation rate expressed as a fraction, with its source.
type Rate struct {
	Rate   float64 `json:"rate"`
	Source string  `json:"source"`
}

// DefaultRate applies to currencies missing from the table.
var DefaultRate = Rate{Rate: 0.03, Source: "default estimate"}

var rates = map[string]Rate{
	"USD": {Rate: 0.029, Source: "US Bureau of Labor Statistics CPI"},
	"SAR": {Rate: 0.023, Source: "Saudi General Authority for Statistics"},
	"AED": {Rate: 0.021, Source: "UAE Federal Competitiveness and Statistics Centre"},
	"EUR": {Rate: 0.024, Source: "Eurostat HICP"},
	"GBP": {Rate: 0.032, Source: "UK Office for National Statistics CPI"},
	"EGP": {Rate: 0.255, Source: "CAPMAS Egypt"},
	"KWD": {Rate: 0.029, Source: "Kuwait Central Statistical Bureau"},
	"QAR": {Rate: 0.012, Source: "Qatar Planning and Statistics Authority"},
	"CAD": {Rate: 0.024, Source: "Statistics Canada CPI"},
	"AUD": {Rate: 0.028, Source: "Australian Bureau of Statistics CPI"},
	"INR": {Rate: 0.049, Source: "India Ministry of Statistics CPI"},
}

// Table resolves currency codes to rates, preferring configured overrides.
type Table struct {
	overrides map[string]float64
}

// NewTable builds a lookup table. overrides maps currency codes to rates.
func NewTable(overrides map[string]float64) *Table {
	normalized := make(map[string]float64, len(overrides))
	for code, rate := range overrides {
		normalized[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	return &Table{overrides: normalized}
}

// Lookup returns the inflation rate for currency.
func (t *Table) Lookup(currency string) Rate {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if t != nil {
		if rate, ok := t.overrides[code]; ok {
			return Rate{Rate: rate, Source: "configured override"}
		}
	}
	if rate, ok := rates[code]; ok {
		return rate
	}
	return DefaultRate
}
