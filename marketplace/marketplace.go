// Package marketplace holds the static search and selector profiles for supported marketplaces.
package marketplace

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Selectors locate listing containers and their title/price children.
type Selectors struct {
	Container string
	Title     string
	Price     string
}

// Profile describes how to search one marketplace and read its result page.
type Profile struct {
	ID                string
	SearchURLTemplate string
	Selectors         Selectors
}

// SearchURL fills the template with the escaped query.
func (p Profile) SearchURL(query string) string {
	return strings.ReplaceAll(p.SearchURLTemplate, "{query}", url.QueryEscape(query))
}

const (
	Amazon         = "amazon"
	AmazonSA       = "amazon-sa"
	Noon           = "noon"
	Extra          = "extra"
	Jarir          = "jarir"
	Walmart        = "walmart"
	Ebay           = "ebay"
	Target         = "target"
	GoogleShopping = "google-shopping"
)

var amazonSelectors = Selectors{
	Container: `div[data-component-type="s-search-result"]`,
	Title:     "h2 span",
	Price:     "span.a-price span.a-offscreen",
}

var profiles = map[string]Profile{
	Amazon: {
		ID:                Amazon,
		SearchURLTemplate: "https://www.amazon.com/s?k={query}",
		Selectors:         amazonSelectors,
	},
	AmazonSA: {
		ID:                AmazonSA,
		SearchURLTemplate: "https://www.amazon.sa/s?k={query}&language=en_AE",
		Selectors:         amazonSelectors,
	},
	Noon: {
		ID:                Noon,
		SearchURLTemplate: "https://www.noon.com/saudi-en/search/?q={query}",
		Selectors: Selectors{
			Container: `div[data-qa="product-block"]`,
			Title:     `[data-qa="product-name"]`,
			Price:     "strong.amount",
		},
	},
	Extra: {
		ID:                Extra,
		SearchURLTemplate: "https://www.extra.com/en-sa/search/?text={query}",
		Selectors: Selectors{
			Container: "div.product-tile",
			Title:     "div.product-name",
			Price:     "span.price",
		},
	},
	Jarir: {
		ID:                Jarir,
		SearchURLTemplate: "https://www.jarir.com/sa-en/catalogsearch/result?search={query}",
		Selectors: Selectors{
			Container: "div.product-tile",
			Title:     "p.product-title__title",
			Price:     "span.price",
		},
	},
	Walmart: {
		ID:                Walmart,
		SearchURLTemplate: "https://www.walmart.com/search?q={query}",
		Selectors: Selectors{
			Container: "div[data-item-id]",
			Title:     `span[data-automation-id="product-title"]`,
			Price:     `div[data-automation-id="product-price"]`,
		},
	},
	Ebay: {
		ID:                Ebay,
		SearchURLTemplate: "https://www.ebay.com/sch/i.html?_nkw={query}",
		Selectors: Selectors{
			Container: "li.s-item",
			Title:     "div.s-item__title",
			Price:     "span.s-item__price",
		},
	},
	Target: {
		ID:                Target,
		SearchURLTemplate: "https://www.target.com/s?searchTerm={query}",
		Selectors: Selectors{
			Container: `div[data-test="@web/site-top-of-funnel/ProductCardWrapper"]`,
			Title:     `a[data-test="product-title"]`,
			Price:     `span[data-test="current-price"]`,
		},
	},
	GoogleShopping: {
		ID:                GoogleShopping,
		SearchURLTemplate: "https://www.google.com/search?tbm=shop&q={query}",
		Selectors: Selectors{
			Container: "div.sh-dgr__content",
			Title:     "h3",
			Price:     "span.a8Pemb",
		},
	},
}

var currencyMarketplaces = map[string][]string{
	"SAR": {AmazonSA, Noon, Extra, Jarir},
	"USD": {Amazon, Walmart, Ebay, Target, GoogleShopping},
}

var defaultMarketplaces = []string{Amazon, GoogleShopping}

// Lookup returns the profile registered for id.
func Lookup(id string) (Profile, bool) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(id))]
	return p, ok
}

// MustLookup is Lookup for ids known at compile time.
func MustLookup(id string) Profile {
	p, ok := Lookup(id)
	if !ok {
		panic(fmt.Sprintf("marketplace: unknown profile %q", id))
	}
	return p
}

// IDs lists every registered marketplace in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(profiles))
	for id := range profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ForCurrency returns the marketplaces searched for a baseline priced in currency.
func ForCurrency(currency string) []string {
	ids, ok := currencyMarketplaces[strings.ToUpper(strings.TrimSpace(currency))]
	if !ok {
		ids = defaultMarketplaces
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
