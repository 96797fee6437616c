package api

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/sobhanashine/sobhan-wallex-2/internal/indicator"
	"github.com/sobhanashine/sobhan-wallex-2/internal/model"
)

const maxInputLength = 100

// ErrMissingParams is returned when a candles request lacks symbol, from or to
var ErrMissingParams = errors.New("symbol, from and to parameters are required")

// Validator handles validation logic separate from HTTP concerns
type Validator struct {
	symbolRegex *regexp.Regexp
}

var (
	validatorInstance *Validator
	validatorOnce     sync.Once
)

// GetValidator returns the singleton validator instance
func GetValidator() *Validator {
	validatorOnce.Do(func() {
		validatorInstance = &Validator{
			// Exchange symbols are concatenated base and quote assets, e.g. BTCUSDT
			symbolRegex: regexp.MustCompile(`^[A-Z0-9]{2,20}$`),
		}
	})
	return validatorInstance
}

// ValidateCandlesRequest sanitizes the history parameters. Resolution defaults
// to hourly; the values themselves are left for the exchange to judge.
func (v *Validator) ValidateCandlesRequest(symbol, resolution, from, to string) (model.HistoryQuery, error) {
	q := model.HistoryQuery{
		Symbol:     v.sanitizeInput(symbol),
		Resolution: v.sanitizeInput(resolution),
		From:       v.sanitizeInput(from),
		To:         v.sanitizeInput(to),
	}
	if q.Symbol == "" || q.From == "" || q.To == "" {
		return model.HistoryQuery{}, ErrMissingParams
	}
	if q.Resolution == "" {
		q.Resolution = DefaultResolution
	}
	return q, nil
}

// ValidateChartRequest validates the indicator overlay and its period
func (v *Validator) ValidateChartRequest(kindStr, periodStr string) (indicator.Kind, int, error) {
	kind, err := indicator.ParseKind(strings.ToLower(v.sanitizeInput(kindStr)))
	if err != nil {
		return "", 0, err
	}

	period, err := v.validatePeriod(periodStr)
	if err != nil {
		return "", 0, err
	}

	return kind, period, nil
}

// ValidateSymbol sanitizes and upper-cases a market symbol
func (v *Validator) ValidateSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(v.sanitizeInput(symbol))

	if symbol == "" {
		return "", errors.New("symbol parameter is required")
	}

	if !v.symbolRegex.MatchString(symbol) {
		return "", errors.New("symbol must be 2-20 characters and contain only letters or numbers")
	}

	return symbol, nil
}

// ValidateSpotFlag parses the optional spot-only switch of the market view
func (v *Validator) ValidateSpotFlag(s string) (bool, error) {
	s = v.sanitizeInput(s)
	if s == "" {
		return false, nil
	}

	spot, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid spot flag '%s'. Supported values: true, false", s)
	}
	return spot, nil
}

// SanitizeSearch cleans free-text search input
func (v *Validator) SanitizeSearch(s string) string {
	return v.sanitizeInput(s)
}

// sanitizeInput removes potentially dangerous characters and trims whitespace
func (v *Validator) sanitizeInput(input string) string {
	// Trim whitespace
	input = strings.TrimSpace(input)

	// Remove null bytes and control characters
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 { // Keep tab, LF, CR
			return -1
		}
		return r
	}, input)

	// Limit length to prevent DoS; cut on rune boundaries for Persian names
	if runes := []rune(input); len(runes) > maxInputLength {
		input = string(runes[:maxInputLength])
	}

	return input
}

// validatePeriod validates the indicator period, defaulting when absent
func (v *Validator) validatePeriod(periodStr string) (int, error) {
	periodStr = v.sanitizeInput(periodStr)
	if periodStr == "" {
		return indicator.DefaultPeriod, nil
	}

	period, err := strconv.Atoi(periodStr)
	if err != nil {
		return 0, errors.New("period must be a valid number")
	}

	if period < indicator.MinPeriod || period > indicator.MaxPeriod {
		return 0, fmt.Errorf("period must be between %d and %d", indicator.MinPeriod, indicator.MaxPeriod)
	}

	return period, nil
}
