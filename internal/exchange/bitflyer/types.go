package bitflyer

import (
	"strings"

	"exchange-core/internal/parse"
)

const amountTick = "0.00000001"

// spotMarkets keeps the Spot products of a getmarkets listing and fills in
// the grid bitFlyer does not publish: satoshi amounts, whole-yen prices.
func spotMarkets(raw any) any {
	var out []any
	for _, item := range parse.AsList(raw) {
		d, ok := parse.AsDict(item)
		if !ok || !strings.EqualFold(parse.SafeString(d, "market_type", ""), "Spot") {
			continue
		}
		d["amount_precision"] = amountTick
		if strings.HasSuffix(parse.SafeString(d, "product_code", ""), "_JPY") {
			d["price_precision"] = "1"
		}
		out = append(out, d)
	}
	return out
}
