// Package numeric coerces loosely typed JSON values coming from the exchange
// into Go scalars. Upstream payloads mix numbers, numeric strings and nulls
// for the same field, so every conversion here is total: bad input yields the
// zero value instead of an error.
package numeric

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// maxMagnitude is the largest decimal order of magnitude accepted, a little
// beyond the float64 range
const maxMagnitude = 400

// Present reports whether raw holds a value other than null.
func Present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// Float coerces raw into a float64. Absent, null and non-numeric values are 0.
func Float(raw json.RawMessage) float64 {
	v, _ := ParseFloat(raw)
	return v
}

// ParseFloat parses a JSON number or numeric string. The boolean is false when
// raw does not hold a finite number.
func ParseFloat(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false
		}
	}

	return parseText(text)
}

func parseText(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, false
	}
	if d.IsZero() {
		return 0, true
	}

	// Float64 expands 10^exponent exactly; bound the magnitude first so a
	// value like "1e30000000" fails fast instead of stalling the caller.
	magnitude := int64(d.Exponent()) + int64(d.NumDigits()) - 1
	if magnitude > maxMagnitude || magnitude < -maxMagnitude {
		return 0, false
	}

	f, _ := d.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Bool coerces raw into a bool. Numbers are true when non-zero; strings are
// parsed with strconv.ParseBool and otherwise count as true when non-empty.
// "false" and "0" are therefore false on purpose, unlike plain truthiness.
func Bool(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if !Present(raw) {
		return false
	}

	switch raw[0] {
	case 't':
		return bytes.Equal(raw, []byte("true"))
	case 'f':
		return false
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return false
		}
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
		return s != ""
	case '{', '[':
		return true
	}

	f, ok := ParseFloat(raw)
	return ok && f != 0
}

// String returns the text of a JSON string, the literal text of a JSON number,
// and "" for anything else.
func String(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if !Present(raw) {
		return ""
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}

	if _, ok := ParseFloat(raw); ok {
		return string(raw)
	}
	return ""
}
