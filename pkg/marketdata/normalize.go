package marketdata

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// decodePayload reads a JSON object and unwraps a {"data": ...} envelope.
// An array payload yields its first element.
func decodePayload(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	for i := 0; i < 2; i++ {
		switch v := raw.(type) {
		case []any:
			if len(v) == 0 {
				return nil, fmt.Errorf("empty data array")
			}
			raw = v[0]
			continue
		case map[string]any:
			if inner, ok := v["data"]; ok {
				switch inner.(type) {
				case map[string]any, []any:
					raw = inner
					continue
				}
			}
			return v, nil
		}
	}

	if m, ok := raw.(map[string]any); ok {
		return m, nil
	}
	return nil, fmt.Errorf("unexpected payload shape %T", raw)
}

// number coerces a JSON value into a float. Missing or unparseable values report ok=false.
func number(fields map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		v, ok := fields[key]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f, true
			}
		case float64:
			return n, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// numberOrZero defaults missing numeric fields to 0.
func numberOrZero(fields map[string]any, keys ...string) float64 {
	f, _ := number(fields, keys...)
	return f
}

// toRecord maps the provider's field names onto Record. Price is required.
func toRecord(symbol string, fields map[string]any) (Record, bool) {
	price, ok := number(fields, "price", "close")
	if !ok {
		return Record{}, false
	}

	return Record{
		Symbol:           symbol,
		Price:            price,
		PercentChange24h: numberOrZero(fields, "percent_change_24h"),
		Volume24h:        numberOrZero(fields, "volume_24h"),
		MarketCap:        numberOrZero(fields, "market_cap"),
		GalaxyScore:      numberOrZero(fields, "galaxy_score", "sentiment"),
		AltRank:          int(numberOrZero(fields, "alt_rank")),
	}, true
}

func toSocial(symbol string, fields map[string]any) Social {
	return Social{
		Symbol:      symbol,
		GalaxyScore: numberOrZero(fields, "galaxy_score", "sentiment"),
		AltRank:     int(numberOrZero(fields, "alt_rank")),
	}
}
