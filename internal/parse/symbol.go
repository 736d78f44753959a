package parse

import (
	"strings"

	"exchange-core/internal/core"
)

// CommonCurrencies are substitutions applied to every adapter's currency codes.
var CommonCurrencies = map[string]string{
	"XBT":   "BTC",
	"BCC":   "BCH",
	"BCHSV": "BSV",
	"XDG":   "DOGE",
}

// SymbolResolver maps venue market ids to unified "BASE/QUOTE" symbols.
type SymbolResolver struct {
	// Separator splits ids that are not in the markets table, "" disables splitting.
	Separator string
	// Common extends CommonCurrencies for one adapter.
	Common map[string]string
}

// CurrencyCode upper-cases code and applies the common-currency substitutions.
func (r SymbolResolver) CurrencyCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if v, ok := r.Common[code]; ok {
		return v
	}
	if v, ok := CommonCurrencies[code]; ok {
		return v
	}
	return code
}

// Resolve returns the unified symbol for id. Known ids come from markets, other
// ids are split on the separator. Ids that cannot be split are returned as is.
func (r SymbolResolver) Resolve(id string, markets *core.MarketSet) string {
	if id == "" {
		return ""
	}
	if m, ok := markets.ByID(id); ok {
		return m.Symbol
	}
	if _, ok := markets.BySymbol(id); ok {
		return id
	}
	if r.Separator == "" {
		return id
	}
	base, quote, ok := strings.Cut(id, r.Separator)
	if !ok || base == "" || quote == "" {
		return id
	}
	return r.CurrencyCode(base) + "/" + r.CurrencyCode(quote)
}

// MarketID is the reverse of Resolve for request construction.
func (r SymbolResolver) MarketID(symbol string, markets *core.MarketSet) string {
	if m, ok := markets.BySymbol(symbol); ok {
		return m.ID
	}
	base, quote, ok := strings.Cut(symbol, "/")
	if !ok {
		return symbol
	}
	return base + r.Separator + quote
}
