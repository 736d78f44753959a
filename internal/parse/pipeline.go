package parse

import (
	"sync/atomic"
	"time"

	"exchange-core/internal/core"
	"exchange-core/internal/precise"
)

// PrecisionMode says how a venue reports amount and price granularity.
type PrecisionMode int

const (
	// TickSize values are the smallest increment, e.g. 0.01.
	TickSize PrecisionMode = iota
	// DecimalPlaces values count fractional digits, e.g. 2.
	DecimalPlaces
)

// Config is the static, per-adapter part of a Pipeline.
type Config struct {
	Schema              Schema
	Symbols             SymbolResolver
	Precision           PrecisionMode
	OrderStatuses       StatusTable[core.OrderStatus]
	TransactionStatuses StatusTable[core.TransactionStatus]
	TransactionTypes    StatusTable[core.TransactionType]
	LedgerTypes         StatusTable[core.LedgerType]
	Sides               StatusTable[core.Side]
	OrderTypes          StatusTable[core.OrderType]
	// Fees seeds every parsed market until the venue reports its own rates.
	Fees core.FeeSchedule
}

// Pipeline converts raw payloads of one adapter into canonical entities. The
// only mutable state is the markets snapshot, swapped wholesale by SetMarkets.
type Pipeline struct {
	cfg     Config
	markets atomic.Pointer[core.MarketSet]
}

func NewPipeline(cfg Config) *Pipeline {
	if cfg.Schema.Trade.ID == nil {
		cfg.Schema = DefaultSchema()
	}
	if cfg.OrderStatuses == nil {
		cfg.OrderStatuses = DefaultOrderStatuses
	}
	if cfg.TransactionStatuses == nil {
		cfg.TransactionStatuses = DefaultTransactionStatuses
	}
	if cfg.TransactionTypes == nil {
		cfg.TransactionTypes = DefaultTransactionTypes
	}
	if cfg.LedgerTypes == nil {
		cfg.LedgerTypes = DefaultLedgerTypes
	}
	if cfg.Sides == nil {
		cfg.Sides = DefaultSides
	}
	if cfg.OrderTypes == nil {
		cfg.OrderTypes = DefaultOrderTypes
	}
	return &Pipeline{cfg: cfg}
}

func (p *Pipeline) SetMarkets(set *core.MarketSet) { p.markets.Store(set) }

// Markets returns the current snapshot, nil before the first refresh.
func (p *Pipeline) Markets() *core.MarketSet { return p.markets.Load() }

func (p *Pipeline) Resolver() SymbolResolver { return p.cfg.Symbols }

// Symbol resolves a raw market id, falling back to the hint's symbol.
func (p *Pipeline) Symbol(id string, hint *core.Market) string {
	if id == "" {
		if hint != nil {
			return hint.Symbol
		}
		return ""
	}
	if hint != nil && hint.ID == id {
		return hint.Symbol
	}
	return p.cfg.Symbols.Resolve(id, p.Markets())
}

// MarketID maps a unified symbol to the venue's market id.
func (p *Pipeline) MarketID(symbol string) string {
	return p.cfg.Symbols.MarketID(symbol, p.Markets())
}

func (p *Pipeline) marketFor(symbol string, hint *core.Market) (core.Market, bool) {
	if hint != nil && (symbol == "" || hint.Symbol == symbol) {
		return *hint, true
	}
	return p.Markets().BySymbol(symbol)
}

func (p *Pipeline) tick(v precise.Decimal) precise.Decimal {
	if p.cfg.Precision == DecimalPlaces && v.Known() {
		return precise.Pow10(-int32(v.Decimal().IntPart()))
	}
	return v
}

// reader reads one raw object and keeps the first parse error.
type reader struct {
	raw Dict
	err error
}

func (r *reader) str(keys Keys) string {
	return SafeStringN(r.raw, keys, "")
}

func (r *reader) dec(keys Keys) precise.Decimal {
	v, err := SafeDecimalN(r.raw, keys, precise.Unknown)
	if err != nil && r.err == nil {
		r.err = err
	}
	return v
}

func (r *reader) ts(keys Keys) time.Time {
	return SafeTimestamp(r.raw, keys...)
}

func (r *reader) boolean(keys Keys, def bool) bool {
	for _, key := range keys {
		if _, ok := lookup(r.raw, key); ok {
			return SafeBool(r.raw, key, def)
		}
	}
	return def
}

func (p *Pipeline) fee(r *reader, keys FeeKeys) core.Fee {
	for _, key := range keys.Nested {
		nested, ok := SafeDict(r.raw, key)
		if !ok {
			continue
		}
		nr := &reader{raw: nested}
		fee := core.Fee{
			Currency: p.cfg.Symbols.CurrencyCode(nr.str(Keys{"currency", "code"})),
			Cost:     nr.dec(Keys{"cost", "amount", "value"}),
			Rate:     nr.dec(Keys{"rate"}),
		}
		if nr.err != nil && r.err == nil {
			r.err = nr.err
		}
		return fee
	}
	fee := core.Fee{
		Cost: r.dec(keys.Cost),
		Rate: r.dec(keys.Rate),
	}
	if code := r.str(keys.Currency); code != "" {
		fee.Currency = p.cfg.Symbols.CurrencyCode(code)
	}
	return fee
}

// rows extracts the objects of a list response. raw may be the array itself or
// an object holding it under one of keys.
func rows(raw any, keys Keys) []Dict {
	list := AsList(raw)
	if list == nil {
		if d, ok := AsDict(raw); ok {
			for _, key := range keys {
				if l := SafeList(d, key); l != nil {
					list = l
					break
				}
			}
		}
	}
	out := make([]Dict, 0, len(list))
	for _, item := range list {
		if d, ok := AsDict(item); ok {
			out = append(out, d)
		}
	}
	return out
}
