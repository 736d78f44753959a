package binance

import (
	"exchange-core/internal/parse"
	"exchange-core/internal/precise"
)

var depositStatuses = map[string]string{
	"0": "pending",
	"1": "ok",
	"6": "ok",
	"7": "failed",
	"8": "pending",
}

var withdrawalStatuses = map[string]string{
	"0": "pending",
	"1": "canceled",
	"2": "pending",
	"3": "rejected",
	"4": "processing",
	"5": "failed",
	"6": "completed",
}

func mustRate(s string) precise.Decimal { return precise.MustParse(s) }

// flattenSymbols lifts the LOT_SIZE, PRICE_FILTER and notional filters of each
// exchangeInfo symbol onto the symbol itself, so the default market keys apply.
func flattenSymbols(raw any) any {
	d, ok := parse.AsDict(raw)
	if !ok {
		return raw
	}
	for _, item := range parse.SafeList(d, "symbols") {
		sym, ok := parse.AsDict(item)
		if !ok {
			continue
		}
		flattenFilters(sym)
	}
	return raw
}

func flattenFilters(sym parse.Dict) {
	sym["active"] = parse.SafeString(sym, "status", "") == "TRADING"
	var notional precise.Decimal
	for _, item := range parse.SafeList(sym, "filters") {
		f, ok := parse.AsDict(item)
		if !ok {
			continue
		}
		switch parse.SafeString(f, "filterType", "") {
		case "LOT_SIZE":
			copyKeys(sym, f, "stepSize", "minQty", "maxQty")
		case "PRICE_FILTER":
			copyKeys(sym, f, "tickSize", "minPrice", "maxPrice")
		case "MIN_NOTIONAL", "NOTIONAL":
			// Both filters may be present; keep the stricter minimum.
			v, err := parse.SafeDecimal(f, "minNotional", precise.Unknown)
			if err == nil && v.Cmp(notional) > 0 {
				notional = v
			}
		}
	}
	if notional.Known() {
		sym["minNotional"] = notional.String()
	}
}

// copyKeys copies keys from src to dst, skipping zero values, which Binance
// uses for "no limit".
func copyKeys(dst, src parse.Dict, keys ...string) {
	for _, key := range keys {
		v, err := parse.SafeDecimal(src, key, precise.Unknown)
		if err != nil || !v.Known() || v.IsZero() {
			continue
		}
		dst[key] = v.String()
	}
}

// eachRow applies fn to every object of a list payload.
func eachRow(fn func(parse.Dict)) func(any) any {
	return func(raw any) any {
		for _, item := range parse.AsList(raw) {
			if d, ok := parse.AsDict(item); ok {
				fn(d)
			}
		}
		return raw
	}
}

func publicTradeSide(d parse.Dict) {
	if parse.SafeBool(d, "isBuyerMaker", false) {
		d["side"] = "sell"
	} else {
		d["side"] = "buy"
	}
}

func ownTradeSide(d parse.Dict) {
	if parse.SafeBool(d, "isBuyer", false) {
		d["side"] = "buy"
	} else {
		d["side"] = "sell"
	}
	if parse.SafeBool(d, "isMaker", false) {
		d["takerOrMaker"] = "maker"
	} else {
		d["takerOrMaker"] = "taker"
	}
}

func mapStatus(table map[string]string) func(parse.Dict) {
	return func(d parse.Dict) {
		if v, ok := table[parse.SafeString(d, "status", "")]; ok {
			d["status"] = v
		}
	}
}
