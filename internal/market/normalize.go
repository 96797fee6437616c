package market

import (
	"encoding/json"

	"github.com/sobhanashine/sobhan-wallex-2/internal/model"
	"github.com/sobhanashine/sobhan-wallex-2/internal/numeric"
)

// Normalize converts raw upstream market records into canonical markets.
// Records that are not JSON objects are skipped. Feeding the JSON encoding of
// a normalized list back in yields the same list.
func Normalize(raw []json.RawMessage) []model.Market {
	markets := make([]model.Market, 0, len(raw))
	for _, r := range raw {
		m, ok := normalizeOne(r)
		if !ok {
			continue
		}
		markets = append(markets, m)
	}
	return markets
}

func normalizeOne(raw json.RawMessage) (model.Market, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return model.Market{}, false
	}

	// Some listings carry the 24h figures only inside "stats"
	var stats map[string]json.RawMessage
	if s, ok := fields["stats"]; ok && numeric.Present(s) {
		_ = json.Unmarshal(s, &stats)
	}

	return model.Market{
		Symbol:       numeric.String(fields["symbol"]),
		BaseAsset:    numeric.String(fields["base_asset"]),
		QuoteAsset:   numeric.String(fields["quote_asset"]),
		FaBaseAsset:  numeric.String(fields["fa_base_asset"]),
		FaQuoteAsset: numeric.String(fields["fa_quote_asset"]),
		Price:        numeric.Float(fields["price"]),
		Change24h:    numeric.Float(firstPresent(fields["change_24h"], stats["24h_ch"])),
		Volume24h:    numeric.Float(firstPresent(fields["volume_24h"], stats["24h_volume"])),
		Change7D:     numeric.Float(firstPresent(fields["change_7D"], stats["7d_ch"])),
		IsSpot:       numeric.Bool(fields["is_spot"]),
		IsUSDTBased:  numeric.Bool(fields["is_usdt_based"]),
		IsTMNBased:   numeric.Bool(fields["is_tmn_based"]),
	}, true
}

// firstPresent returns the first value that is neither absent nor null
func firstPresent(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if numeric.Present(v) {
			return v
		}
	}
	return nil
}
