// Package parser turns raw product names and listing text into values the pipeline can trust.
package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/aluiziolira/go-price-pilot/models"
)

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

var (
	parenthesized = regexp.MustCompile(`\([^)]*\)`)
	noiseTokens   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(5G|4G|LTE|WiFi|Bluetooth)\b`),
		regexp.MustCompile(`(?i)\b\d+\s*GB\b`),
		regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s*inch(es)?\b`),
	}
	priceNumber = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
)

// minKeywordLen is exclusive: keywords must be longer than this many characters.
const minKeywordLen = 2

// NormalizeQuery reduces a raw product name to a search string and its relevance keywords.
func NormalizeQuery(raw string) (models.ProductQuery, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return models.ProductQuery{}, ValidationError{Field: "product name", Reason: "cannot be empty"}
	}

	name := SimplifyName(trimmed)
	if name == "" {
		// Names made only of noise tokens still need something to search for.
		name = strings.Join(strings.Fields(trimmed), " ")
	}

	return models.ProductQuery{
		RawName:        raw,
		SimplifiedName: name,
		Keywords:       Keywords(name),
	}, nil
}

// SimplifyName applies the normalisation rules until the name stops changing.
func SimplifyName(name string) string {
	for i := 0; i < 4; i++ {
		next := simplifyOnce(name)
		if next == name {
			break
		}
		name = next
	}
	return name
}

func simplifyOnce(name string) string {
	if idx := strings.Index(name, ","); idx >= 0 {
		name = name[:idx]
	}
	name = parenthesized.ReplaceAllString(name, " ")
	if idx := strings.Index(name, " - "); idx >= 0 {
		name = name[:idx]
	}
	for _, pattern := range noiseTokens {
		name = pattern.ReplaceAllString(name, " ")
	}
	return strings.Join(strings.Fields(name), " ")
}

// Keywords splits a simplified name into lower-cased tokens longer than two characters.
// Order is preserved and repeats are kept.
func Keywords(name string) []string {
	fields := strings.Fields(strings.ToLower(name))
	keywords := make([]string, 0, len(fields))
	for _, field := range fields {
		if utf8.RuneCountInString(field) > minKeywordLen {
			keywords = append(keywords, field)
		}
	}
	return keywords
}

// NormalizeTitle lower-cases and trims listing title text.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// MatchesKeywords reports whether at least one keyword occurs in the title.
func MatchesKeywords(title string, keywords []string) bool {
	normalized := NormalizeTitle(title)
	if normalized == "" {
		return false
	}
	for _, keyword := range keywords {
		keyword = strings.ToLower(keyword)
		if keyword != "" && strings.Contains(normalized, keyword) {
			return true
		}
	}
	return false
}

// ParsePrice extracts the first number from price text, dropping thousands separators.
func ParsePrice(text string) (float64, bool) {
	match := priceNumber.FindString(text)
	if match == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// ValidateBaseline checks the preconditions a solve run depends on.
func ValidateBaseline(b *models.Baseline) error {
	if b == nil {
		return ValidationError{Reason: "baseline is nil"}
	}
	if strings.TrimSpace(b.ProductName) == "" {
		return ValidationError{Field: "product name", Reason: "cannot be empty"}
	}
	return ValidateEconomics(b.CurrentPrice, b.CostPerUnit, b.Quantity)
}

// ValidateEconomics checks price, cost and quantity are finite and positive and cost is below price.
func ValidateEconomics(price, cost, quantity float64) error {
	for _, v := range []struct {
		field string
		value float64
	}{{"current price", price}, {"cost per unit", cost}, {"quantity", quantity}} {
		if !IsFinite(v.value) {
			return ValidationError{Field: v.field, Reason: "must be a finite number"}
		}
	}
	if price <= 0 {
		return ValidationError{Field: "current price", Reason: "must be positive"}
	}
	if cost <= 0 {
		return ValidationError{Field: "cost per unit", Reason: "must be positive"}
	}
	if quantity <= 0 {
		return ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if cost >= price {
		return ValidationError{
			Field:  "cost per unit",
			Reason: fmt.Sprintf("(%.2f) must be below current price (%.2f)", cost, price),
		}
	}
	return nil
}

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
