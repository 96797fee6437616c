package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sobhanashine/sobhan-wallex-2/internal/market"
	"github.com/sobhanashine/sobhan-wallex-2/internal/model"
)

// MarketSource returns the raw market records of the exchange
type MarketSource interface {
	Markets(ctx context.Context) ([]json.RawMessage, error)
}

// StoreConfig holds configuration for the view-state store
type StoreConfig struct {
	AllowPrefixes []string
	Clock         func() time.Time
}

// DefaultStoreConfig returns a config without an allow-list using the wall clock
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{Clock: time.Now}
}

// Snapshot is a consistent view of the store for rendering
type Snapshot struct {
	State     ViewState      `json:"state"`
	Markets   []model.Market `json:"markets"`
	Count     int            `json:"count"`
	Total     int            `json:"total"`
	Loading   bool           `json:"loading"`
	FetchedAt int64          `json:"fetchedAt,omitempty"`
	LastError string         `json:"lastError,omitempty"`
}

// Store owns the canonical market list and the view state of the session
type Store struct {
	source MarketSource
	config StoreConfig
	logger *slog.Logger

	mu        sync.RWMutex
	markets   []model.Market
	state     ViewState
	loading   bool
	fetchGen  uint64
	fetchedAt time.Time
	lastErr   error
}

// NewStore creates a store seeded with the default view state
func NewStore(source MarketSource, config StoreConfig, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &Store{
		source:  source,
		config:  config,
		logger:  logger,
		markets: []model.Market{},
		state:   DefaultViewState(config.Clock()),
	}
}

// FetchMarkets pulls the market list and replaces the canonical list in one
// step. When a newer fetch started meanwhile the result is dropped. A failed
// fetch keeps the previous list.
func (s *Store) FetchMarkets(ctx context.Context) error {
	s.mu.Lock()
	s.fetchGen++
	gen := s.fetchGen
	s.loading = true
	s.mu.Unlock()

	raw, err := s.source.Markets(ctx)

	var markets []model.Market
	if err == nil {
		markets = market.Normalize(raw)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.fetchGen {
		s.logger.Debug("discarding superseded market fetch", "generation", gen, "current", s.fetchGen)
		return nil
	}

	s.loading = false
	s.lastErr = err
	if err != nil {
		s.logger.Error("failed to fetch markets", "error", err)
		return fmt.Errorf("failed to fetch markets: %w", err)
	}

	s.markets = markets
	s.fetchedAt = s.config.Clock()
	s.logger.Info("markets refreshed", "count", len(markets))
	return nil
}

// Markets returns a copy of the canonical list
func (s *Store) Markets() []model.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Market, len(s.markets))
	copy(result, s.markets)
	return result
}

// State returns a copy of the current view state
func (s *Store) State() ViewState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Loading reports whether a market fetch is in flight
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Visible runs the display pipeline over the current markets and state.
// spotOnly is owned by the caller, not by the view state.
func (s *Store) Visible(spotOnly bool) []model.Market {
	return s.Snapshot(spotOnly).Markets
}

// Snapshot returns the state together with the derived market list
func (s *Store) Snapshot(spotOnly bool) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visible := market.Apply(s.markets, s.criteria(spotOnly))
	snap := Snapshot{
		State:   s.state.clone(),
		Markets: visible,
		Count:   len(visible),
		Total:   len(s.markets),
		Loading: s.loading,
	}
	if !s.fetchedAt.IsZero() {
		snap.FetchedAt = s.fetchedAt.Unix()
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

func (s *Store) criteria(spotOnly bool) market.Criteria {
	return market.Criteria{
		AllowPrefixes: s.config.AllowPrefixes,
		Search:        s.state.Search,
		Quote:         s.state.QuoteFilter,
		SpotOnly:      spotOnly,
		SortKey:       s.state.SortKey,
		SortAsc:       s.state.SortAsc,
	}
}

func (s *Store) update(fn func(ViewState) ViewState) ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = fn(s.state)
	return s.state.clone()
}

func (s *Store) SetSearch(v string) ViewState {
	return s.update(func(st ViewState) ViewState { return st.WithSearch(v) })
}

func (s *Store) SetSort(k model.SortKey) (ViewState, error) {
	if _, err := model.ParseSortKey(string(k)); err != nil {
		return s.State(), err
	}
	return s.update(func(st ViewState) ViewState { return st.WithSortKey(k) }), nil
}

func (s *Store) ToggleSortOrder() ViewState {
	return s.update(ViewState.WithSortOrderToggled)
}

func (s *Store) SetQuoteFilter(q model.QuoteFilter) (ViewState, error) {
	if _, err := model.ParseQuoteFilter(string(q)); err != nil {
		return s.State(), err
	}
	return s.update(func(st ViewState) ViewState { return st.WithQuoteFilter(q) }), nil
}

func (s *Store) ToggleSelected(symbol string) ViewState {
	return s.update(func(st ViewState) ViewState { return st.WithToggledSelection(symbol) })
}

func (s *Store) ClearSelected() ViewState {
	return s.update(ViewState.WithClearedSelection)
}

// SetResolution replaces the candle resolution. Candle data is not refetched
// here; the chart reads the new resolution on its next load.
func (s *Store) SetResolution(r model.Resolution) (ViewState, error) {
	if _, err := model.ParseResolution(string(r)); err != nil {
		return s.State(), err
	}
	return s.update(func(st ViewState) ViewState { return st.WithResolution(r) }), nil
}

// SetDateRange applies a preset or custom range; from and to are unix seconds
// and only used for the custom range.
func (s *Store) SetDateRange(r model.DateRange, from, to int64) (ViewState, error) {
	if _, err := model.ParseDateRange(string(r)); err != nil {
		return s.State(), err
	}
	now := s.config.Clock()
	return s.update(func(st ViewState) ViewState { return st.WithDateRange(r, from, to, now) }), nil
}
