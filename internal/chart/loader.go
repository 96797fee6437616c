// Package chart assembles chart series for the selected symbols.
package chart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sobhanashine/sobhan-wallex-2/internal/indicator"
	"github.com/sobhanashine/sobhan-wallex-2/internal/metrics"
	"github.com/sobhanashine/sobhan-wallex-2/internal/model"
)

// ErrSuperseded is returned when a newer load started before this one finished
var ErrSuperseded = errors.New("chart load superseded by a newer request")

// Palette colors series by selection index
var Palette = []string{"#8b5cf6", "#06b6d4", "#10b981", "#f59e0b", "#ef4444"}

const IndicatorColor = "#8b5cf6"

// HistorySource fetches raw UDF history bodies
type HistorySource interface {
	History(ctx context.Context, q model.HistoryQuery) ([]byte, error)
}

type SeriesKind string

const (
	KindCandlestick SeriesKind = "candlestick"
	KindLine        SeriesKind = "line"
)

// Point is one value of a line series
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// Series is one drawable series
type Series struct {
	Symbol  string         `json:"symbol"`
	Kind    SeriesKind     `json:"kind"`
	Title   string         `json:"title,omitempty"`
	Color   string         `json:"color,omitempty"`
	Candles []model.Candle `json:"candles,omitempty"`
	Points  []Point        `json:"points,omitempty"`
}

// Request describes one chart load
type Request struct {
	Symbols    []string
	Resolution model.Resolution
	From       int64
	To         int64
	Indicator  indicator.Kind
	Period     int
}

// Chart is the assembled result of a load
type Chart struct {
	Generation uint64   `json:"generation"`
	Series     []Series `json:"series"`
	// Missing lists symbols that produced no data
	Missing []string `json:"missing,omitempty"`
}

// Loader fetches history for every requested symbol concurrently. A symbol
// that fails or returns no data is left out; the others still render.
type Loader struct {
	source     HistorySource
	logger     *slog.Logger
	generation atomic.Uint64
}

// NewLoader creates a new chart loader
func NewLoader(source HistorySource, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, logger: logger}
}

// Generation returns the number of the most recent load
func (l *Loader) Generation() uint64 {
	return l.generation.Load()
}

// Load builds the chart for req. One symbol yields a candlestick series plus
// the optional indicator line; several symbols yield one close-price line
// each. Results of a load overtaken by a newer one are discarded with
// ErrSuperseded.
func (l *Loader) Load(ctx context.Context, req Request) (Chart, error) {
	gen := l.generation.Add(1)

	if req.Indicator != "" && req.Indicator != indicator.None && req.Period < 1 {
		return Chart{}, fmt.Errorf("invalid indicator period %d", req.Period)
	}

	if len(req.Symbols) == 0 {
		return Chart{Generation: gen, Series: []Series{}}, nil
	}

	results := l.fetchAll(ctx, req)

	if current := l.generation.Load(); current != gen {
		l.logger.Debug("discarding superseded chart load", "generation", gen, "current", current)
		return Chart{}, ErrSuperseded
	}
	if err := ctx.Err(); err != nil {
		return Chart{}, fmt.Errorf("chart load cancelled: %w", err)
	}

	chart := Chart{Generation: gen, Series: []Series{}}
	for i, symbol := range req.Symbols {
		if results[i] == nil {
			chart.Missing = append(chart.Missing, symbol)
		}
	}

	if len(req.Symbols) == 1 {
		candles := results[0]
		if candles == nil {
			return chart, nil
		}

		chart.Series = append(chart.Series, Series{
			Symbol:  req.Symbols[0],
			Kind:    KindCandlestick,
			Title:   req.Symbols[0],
			Candles: candles,
		})

		if req.Indicator != "" && req.Indicator != indicator.None {
			line, err := indicatorSeries(req.Symbols[0], candles, req.Indicator, req.Period)
			if err != nil {
				return Chart{}, err
			}
			chart.Series = append(chart.Series, line)
		}
		return chart, nil
	}

	for i, symbol := range req.Symbols {
		candles := results[i]
		if candles == nil {
			continue
		}

		points := make([]Point, len(candles))
		for j, c := range candles {
			points[j] = Point{Time: c.Timestamp, Value: c.Close}
		}

		chart.Series = append(chart.Series, Series{
			Symbol: symbol,
			Kind:   KindLine,
			Title:  symbol,
			Color:  Palette[i%len(Palette)],
			Points: points,
		})
	}

	return chart, nil
}

// fetchAll returns candles per symbol index; nil marks a symbol without data
func (l *Loader) fetchAll(ctx context.Context, req Request) [][]model.Candle {
	results := make([][]model.Candle, len(req.Symbols))
	query := model.HistoryQuery{
		Resolution: string(req.Resolution),
		From:       strconv.FormatInt(req.From, 10),
		To:         strconv.FormatInt(req.To, 10),
	}

	var wg sync.WaitGroup
	for i, symbol := range req.Symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()

			q := query
			q.Symbol = symbol
			body, err := l.source.History(ctx, q)
			if err != nil {
				metrics.ChartSeriesTotal.WithLabelValues("error").Inc()
				l.logger.Warn("failed to fetch history",
					"symbol", symbol,
					"resolution", q.Resolution,
					"error", err)
				return
			}

			candles, ok := ParseHistory(body)
			if !ok {
				metrics.ChartSeriesTotal.WithLabelValues("no_data").Inc()
				l.logger.Debug("no history data", "symbol", symbol, "resolution", q.Resolution)
				return
			}

			metrics.ChartSeriesTotal.WithLabelValues("ok").Inc()
			results[i] = candles
		}(i, symbol)
	}
	wg.Wait()

	return results
}

func indicatorSeries(symbol string, candles []model.Candle, kind indicator.Kind, period int) (Series, error) {
	values, err := indicator.Calculate(kind, Closes(candles), period)
	if err != nil {
		return Series{}, err
	}

	points := make([]Point, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		points = append(points, Point{Time: candles[i].Timestamp, Value: v})
	}

	return Series{
		Symbol: symbol,
		Kind:   KindLine,
		Title:  fmt.Sprintf("%s(%d)", strings.ToUpper(string(kind)), period),
		Color:  IndicatorColor,
		Points: points,
	}, nil
}
