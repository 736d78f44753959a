// Package parse turns raw exchange payloads into the canonical entities of
// package core. Payloads stay opaque maps; every read goes through a safe
// accessor that falls back to an explicit default when a key is absent, null or
// of the wrong shape.
package parse

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"exchange-core/internal/core"
	"exchange-core/internal/precise"
)

// Dict is a decoded JSON object.
type Dict map[string]any

// AsDict accepts a Dict or a plain decoded JSON object.
func AsDict(v any) (Dict, bool) {
	switch m := v.(type) {
	case Dict:
		return m, true
	case map[string]any:
		return Dict(m), true
	}
	return nil, false
}

// AsList returns v as a JSON array, nil when it is not one.
func AsList(v any) []any {
	list, _ := v.([]any)
	return list
}

func lookup(d Dict, key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func stringOf(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	}
	return "", false
}

func SafeString(d Dict, key, def string) string {
	return SafeStringN(d, []string{key}, def)
}

func SafeString2(d Dict, key1, key2, def string) string {
	return SafeStringN(d, []string{key1, key2}, def)
}

// SafeStringN returns the first key holding a string or number.
func SafeStringN(d Dict, keys []string, def string) string {
	for _, key := range keys {
		v, ok := lookup(d, key)
		if !ok {
			continue
		}
		if s, ok := stringOf(v); ok {
			return s
		}
	}
	return def
}

func SafeDecimal(d Dict, key string, def precise.Decimal) (precise.Decimal, error) {
	return SafeDecimalN(d, []string{key}, def)
}

func SafeDecimal2(d Dict, key1, key2 string, def precise.Decimal) (precise.Decimal, error) {
	return SafeDecimalN(d, []string{key1, key2}, def)
}

// SafeDecimalN reads the first key holding a number or a non-empty string. A
// string that is not a decimal literal is a parse error, not a default.
func SafeDecimalN(d Dict, keys []string, def precise.Decimal) (precise.Decimal, error) {
	for _, key := range keys {
		v, ok := lookup(d, key)
		if !ok {
			continue
		}
		value, usable, err := decimalOf(v)
		if err != nil {
			return def, fmt.Errorf("%w: field %q: %v", core.ErrParse, key, err)
		}
		if usable {
			return value, nil
		}
	}
	return def, nil
}

// decimalOf converts one JSON value. usable is false for null, empty strings
// and non-numeric shapes.
func decimalOf(v any) (value precise.Decimal, usable bool, err error) {
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return precise.Unknown, false, nil
		}
	case json.Number, float64, int, int64:
	default:
		return precise.Unknown, false, nil
	}
	value, err = precise.FromNumber(v)
	if err != nil {
		return precise.Unknown, true, err
	}
	return value, true, nil
}

func SafeInteger(d Dict, key string, def int64) int64 {
	return SafeInteger2(d, key, "", def)
}

// SafeInteger2 reads an integer from a number or numeric string. Fractional
// values are truncated.
func SafeInteger2(d Dict, key1, key2 string, def int64) int64 {
	for _, key := range []string{key1, key2} {
		if key == "" {
			continue
		}
		v, ok := lookup(d, key)
		if !ok {
			continue
		}
		s, ok := stringOf(v)
		if !ok {
			continue
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if x, err := precise.Parse(s); err == nil {
			if i, ok := intPart(x); ok {
				return i
			}
		}
	}
	return def
}

// SafeBool reads a JSON bool or the strings "true"/"false".
func SafeBool(d Dict, key string, def bool) bool {
	v, ok := lookup(d, key)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
			return b
		}
	}
	return def
}

func SafeDict(d Dict, key string) (Dict, bool) {
	v, ok := lookup(d, key)
	if !ok {
		return nil, false
	}
	return AsDict(v)
}

func SafeList(d Dict, key string) []any {
	v, ok := lookup(d, key)
	if !ok {
		return nil
	}
	return AsList(v)
}

var (
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

// intPart truncates x toward zero, refusing values int64 cannot hold.
func intPart(x precise.Decimal) (int64, bool) {
	d := x.Decimal().Truncate(0)
	if d.LessThan(minInt64) || d.GreaterThan(maxInt64) {
		return 0, false
	}
	return d.IntPart(), true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// SafeTimestamp reads epoch milliseconds or an ISO-8601 string. Strings without
// a zone are taken as UTC. Returns the zero time when nothing usable is found.
func SafeTimestamp(d Dict, keys ...string) time.Time {
	for _, key := range keys {
		v, ok := lookup(d, key)
		if !ok {
			continue
		}
		s, ok := stringOf(v)
		if !ok || s == "" {
			continue
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
		if x, err := precise.Parse(s); err == nil {
			if ms, ok := intPart(x); ok {
				return time.UnixMilli(ms).UTC()
			}
			continue
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

// Decode reads a JSON body keeping numbers as json.Number so decimal text is
// never routed through float64.
func Decode(body []byte) (any, error) {
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", core.ErrParse, err)
	}
	return normalize(v), nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(Dict, len(x))
		for k, item := range x {
			out[k] = normalize(item)
		}
		return out
	case []any:
		for i, item := range x {
			x[i] = normalize(item)
		}
		return x
	}
	return v
}

// IsParseError reports whether err came from a malformed payload value.
func IsParseError(err error) bool {
	return errors.Is(err, core.ErrParse)
}
