package chart

import (
	"encoding/json"

	"github.com/sobhanashine/sobhan-wallex-2/internal/model"
	"github.com/sobhanashine/sobhan-wallex-2/internal/numeric"
)

type historyPayload struct {
	S string            `json:"s"`
	T []json.RawMessage `json:"t"`
	O []json.RawMessage `json:"o"`
	H []json.RawMessage `json:"h"`
	L []json.RawMessage `json:"l"`
	C []json.RawMessage `json:"c"`
}

// ParseHistory maps a UDF history body onto candles. It reports false, meaning
// "no data for this symbol", when the body is not JSON, the status is present
// and not "ok", any of the t/o/h/l/c arrays is missing, t is empty, or the
// arrays differ in length.
func ParseHistory(body []byte) ([]model.Candle, bool) {
	var p historyPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, false
	}

	if p.S != "" && p.S != "ok" {
		return nil, false
	}
	if p.T == nil || p.O == nil || p.H == nil || p.L == nil || p.C == nil || len(p.T) == 0 {
		return nil, false
	}

	n := len(p.T)
	if len(p.O) != n || len(p.H) != n || len(p.L) != n || len(p.C) != n {
		return nil, false
	}

	candles := make([]model.Candle, n)
	for i := range p.T {
		candles[i] = model.Candle{
			Timestamp: int64(numeric.Float(p.T[i])),
			Open:      numeric.Float(p.O[i]),
			High:      numeric.Float(p.H[i]),
			Low:       numeric.Float(p.L[i]),
			Close:     numeric.Float(p.C[i]),
		}
	}
	return candles, true
}

// Closes extracts the closing prices
func Closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
