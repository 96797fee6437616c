// Package indicator computes moving averages over closing-price series.
package indicator

import (
	"fmt"
	"math"
)

// Kind selects the overlay drawn on top of a single-symbol chart
type Kind string

const (
	None                     Kind = "none"
	SimpleMovingAverage      Kind = "sma"
	ExponentialMovingAverage Kind = "ema"
)

const (
	DefaultPeriod = 20
	MinPeriod     = 2
	MaxPeriod     = 200
)

// ParseKind validates an indicator name. An empty name means None.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case "":
		return None, nil
	case None, SimpleMovingAverage, ExponentialMovingAverage:
		return k, nil
	}
	return "", fmt.Errorf("unsupported indicator: %s", s)
}

// Calculate dispatches to SMA or EMA
func Calculate(kind Kind, values []float64, period int) ([]float64, error) {
	switch kind {
	case SimpleMovingAverage:
		return SMA(values, period)
	case ExponentialMovingAverage:
		return EMA(values, period)
	default:
		return nil, fmt.Errorf("unsupported indicator: %s", kind)
	}
}

// SMA returns the simple moving average of values. The output has the same
// length as the input; the first period-1 entries are NaN.
func SMA(values []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, fmt.Errorf("invalid SMA period %d", period)
	}

	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = math.NaN()
		}
	}
	return out, nil
}

// EMA returns the exponential moving average of values, seeded with the first
// value and smoothed with k = 2/(period+1).
func EMA(values []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, fmt.Errorf("invalid EMA period %d", period)
	}

	out := make([]float64, len(values))
	if len(values) == 0 {
		return out, nil
	}

	k := 2.0 / float64(period+1)
	prev := values[0]
	for i, v := range values {
		if i > 0 {
			v = v*k + prev*(1-k)
		}
		out[i] = v
		prev = v
	}
	return out, nil
}
