package model

import (
	"errors"
	"fmt"
)

// Market represents one tradable symbol in its canonical form
type Market struct {
	Symbol       string  `json:"symbol"`
	BaseAsset    string  `json:"base_asset"`
	QuoteAsset   string  `json:"quote_asset"`
	FaBaseAsset  string  `json:"fa_base_asset,omitempty"`
	FaQuoteAsset string  `json:"fa_quote_asset,omitempty"`
	Price        float64 `json:"price"`
	Change24h    float64 `json:"change_24h"`
	Volume24h    float64 `json:"volume_24h"`
	Change7D     float64 `json:"change_7D"`
	IsSpot       bool    `json:"is_spot"`
	IsUSDTBased  bool    `json:"is_usdt_based"`
	IsTMNBased   bool    `json:"is_tmn_based"`
}

// SortValue returns the numeric field selected by key
func (m Market) SortValue(key SortKey) float64 {
	switch key {
	case SortByPrice:
		return m.Price
	case SortByVolume24h:
		return m.Volume24h
	default:
		return m.Change24h
	}
}

// Candle represents one OHLC bar; Timestamp is in unix seconds
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
}

// HistoryQuery holds the parameters of a UDF history request
type HistoryQuery struct {
	Symbol     string
	Resolution string
	From       string
	To         string
}

// SortKey selects the market field used for ordering
type SortKey string

const (
	SortByPrice     SortKey = "price"
	SortByChange24h SortKey = "change_24h"
	SortByVolume24h SortKey = "volume_24h"
)

// QuoteFilter restricts markets to a settlement asset
type QuoteFilter string

const (
	QuoteAll  QuoteFilter = "ALL"
	QuoteUSDT QuoteFilter = "USDT"
	QuoteTMN  QuoteFilter = "TMN"
)

// Resolution is the candle bar width understood by the UDF endpoint
type Resolution string

const (
	ResolutionHour     Resolution = "60"
	ResolutionFourHour Resolution = "240"
	ResolutionDay      Resolution = "D"
	ResolutionWeek     Resolution = "W"
)

// DateRange names a chart time window
type DateRange string

const (
	RangeToday      DateRange = "today"
	RangeWeek       DateRange = "week"
	RangeMonth      DateRange = "month"
	RangeThreeMonth DateRange = "3months"
	RangeSixMonth   DateRange = "6months"
	RangeYear       DateRange = "year"
	RangeCustom     DateRange = "custom"
)

var (
	ErrInvalidSortKey     = errors.New("invalid sort key")
	ErrInvalidQuoteFilter = errors.New("invalid quote filter")
	ErrInvalidResolution  = errors.New("invalid resolution")
	ErrInvalidDateRange   = errors.New("invalid date range")
)

// ParseSortKey validates a sort key
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case SortByPrice, SortByChange24h, SortByVolume24h:
		return k, nil
	}
	return "", fmt.Errorf("%w '%s'. Supported values: price, change_24h, volume_24h", ErrInvalidSortKey, s)
}

// ParseQuoteFilter validates a quote filter
func ParseQuoteFilter(s string) (QuoteFilter, error) {
	switch q := QuoteFilter(s); q {
	case QuoteAll, QuoteUSDT, QuoteTMN:
		return q, nil
	}
	return "", fmt.Errorf("%w '%s'. Supported values: ALL, USDT, TMN", ErrInvalidQuoteFilter, s)
}

// ParseResolution validates a resolution
func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(s); r {
	case ResolutionHour, ResolutionFourHour, ResolutionDay, ResolutionWeek:
		return r, nil
	}
	return "", fmt.Errorf("%w '%s'. Supported values: 60, 240, D, W", ErrInvalidResolution, s)
}

// ParseDateRange validates a date range name
func ParseDateRange(s string) (DateRange, error) {
	switch r := DateRange(s); r {
	case RangeToday, RangeWeek, RangeMonth, RangeThreeMonth, RangeSixMonth, RangeYear, RangeCustom:
		return r, nil
	}
	return "", fmt.Errorf("%w '%s'", ErrInvalidDateRange, s)
}

// Days returns the length of a preset range in days. Custom and unknown
// ranges fall back to 30.
func (r DateRange) Days() int64 {
	switch r {
	case RangeToday:
		return 1
	case RangeWeek:
		return 7
	case RangeMonth:
		return 30
	case RangeThreeMonth:
		return 90
	case RangeSixMonth:
		return 180
	case RangeYear:
		return 365
	default:
		return 30
	}
}
