package core

import (
	"time"

	"github.com/sobhanashine/sobhan-wallex-2/internal/model"
)

const (
	// MaxSelected caps the number of symbols charted together
	MaxSelected   = 5
	secondsPerDay = 24 * 60 * 60
)

// DefaultSelection is the selection a fresh session starts with
var DefaultSelection = []string{"SOLUSDT", "BTCUSDT"}

// ViewState is the dashboard state shared by the market table and the chart.
// Every With* method is a pure transition returning a new state; the receiver
// is never modified.
type ViewState struct {
	Search      string            `json:"search"`
	SortKey     model.SortKey     `json:"sortKey"`
	SortAsc     bool              `json:"sortAsc"`
	QuoteFilter model.QuoteFilter `json:"quoteFilter"`
	Selected    []string          `json:"selected"`
	Resolution  model.Resolution  `json:"resolution"`
	DateRange   model.DateRange   `json:"dateRange"`
	DateFrom    int64             `json:"dateFrom"`
	DateTo      int64             `json:"dateTo"`
}

// DefaultViewState returns the state seeded at store creation
func DefaultViewState(now time.Time) ViewState {
	s := ViewState{
		SortKey:     model.SortByChange24h,
		SortAsc:     false,
		QuoteFilter: model.QuoteUSDT,
		Selected:    append([]string(nil), DefaultSelection...),
		Resolution:  model.ResolutionDay,
	}
	return s.WithDateRange(model.RangeMonth, 0, 0, now)
}

func (s ViewState) clone() ViewState {
	c := s
	c.Selected = append(make([]string, 0, len(s.Selected)), s.Selected...)
	return c
}

// IsSelected reports whether symbol is part of the selection
func (s ViewState) IsSelected(symbol string) bool {
	for _, sym := range s.Selected {
		if sym == symbol {
			return true
		}
	}
	return false
}

func (s ViewState) WithSearch(v string) ViewState {
	c := s.clone()
	c.Search = v
	return c
}

func (s ViewState) WithSortKey(k model.SortKey) ViewState {
	c := s.clone()
	c.SortKey = k
	return c
}

func (s ViewState) WithSortOrderToggled() ViewState {
	c := s.clone()
	c.SortAsc = !s.SortAsc
	return c
}

func (s ViewState) WithQuoteFilter(q model.QuoteFilter) ViewState {
	c := s.clone()
	c.QuoteFilter = q
	return c
}

// WithToggledSelection removes symbol when it is selected. Otherwise symbol is
// appended and the selection is cut back to its first MaxSelected entries, so
// adding to a full selection leaves it unchanged.
func (s ViewState) WithToggledSelection(symbol string) ViewState {
	c := s.clone()

	next := make([]string, 0, len(s.Selected)+1)
	found := false
	for _, sym := range s.Selected {
		if sym == symbol {
			found = true
			continue
		}
		next = append(next, sym)
	}

	if !found {
		next = append(next, symbol)
		if len(next) > MaxSelected {
			next = next[:MaxSelected]
		}
	}

	c.Selected = next
	return c
}

func (s ViewState) WithClearedSelection() ViewState {
	c := s.clone()
	c.Selected = []string{}
	return c
}

func (s ViewState) WithResolution(r model.Resolution) ViewState {
	c := s.clone()
	c.Resolution = r
	return c
}

// WithDateRange stores from/to verbatim for a custom range when both are
// non-zero. Any other call computes the window ending at now from the
// range's length in days.
func (s ViewState) WithDateRange(r model.DateRange, from, to int64, now time.Time) ViewState {
	c := s.clone()
	c.DateRange = r

	if r == model.RangeCustom && from != 0 && to != 0 {
		c.DateFrom = from
		c.DateTo = to
		return c
	}

	end := now.Unix()
	c.DateFrom = end - r.Days()*secondsPerDay
	c.DateTo = end
	return c
}
