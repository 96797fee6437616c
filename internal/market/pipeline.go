package market

import (
	"sort"
	"strings"

	"github.com/sobhanashine/sobhan-wallex-2/internal/model"
)

// Criteria holds every input of the display pipeline
type Criteria struct {
	// AllowPrefixes restricts the list to symbols starting with one of the
	// prefixes. Empty means no restriction.
	AllowPrefixes []string
	Search        string
	Quote         model.QuoteFilter
	SpotOnly      bool
	SortKey       model.SortKey
	SortAsc       bool
}

// Apply derives the display-ordered list from the canonical markets. The
// input slice is never modified.
func Apply(markets []model.Market, c Criteria) []model.Market {
	search := strings.ToLower(c.Search)

	result := make([]model.Market, 0, len(markets))
	for _, m := range markets {
		if !allowed(m.Symbol, c.AllowPrefixes) {
			continue
		}
		if c.Search != "" && !matchesSearch(m, search, c.Search) {
			continue
		}
		if !matchesQuote(m, c.Quote) {
			continue
		}
		if c.SpotOnly && !m.IsSpot {
			continue
		}
		result = append(result, m)
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i].SortValue(c.SortKey), result[j].SortValue(c.SortKey)
		if c.SortAsc {
			return a < b
		}
		return a > b
	})

	return result
}

func allowed(symbol string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(symbol, p) {
			return true
		}
	}
	return false
}

// matchesSearch is case-insensitive on the symbol and exact-case on the
// localized name.
func matchesSearch(m model.Market, lowered, raw string) bool {
	return strings.Contains(strings.ToLower(m.Symbol), lowered) ||
		strings.Contains(m.FaBaseAsset, raw)
}

func matchesQuote(m model.Market, q model.QuoteFilter) bool {
	switch q {
	case model.QuoteUSDT:
		return m.IsUSDTBased
	case model.QuoteTMN:
		return m.IsTMNBased
	default:
		return true
	}
}
