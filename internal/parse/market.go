package parse

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"exchange-core/internal/core"
	"exchange-core/internal/precise"
)

// Market parses one market definition and checks its invariants.
func (p *Pipeline) Market(raw Dict) (core.Market, error) {
	m, err := p.market(raw)
	if err != nil {
		return core.Market{}, err
	}
	if err := m.Validate(); err != nil {
		return core.Market{}, err
	}
	return m, nil
}

func (p *Pipeline) market(raw Dict) (core.Market, error) {
	k := p.cfg.Schema.Market
	r := &reader{raw: raw}

	id := r.str(k.ID)
	baseID, quoteID := r.str(k.BaseID), r.str(k.QuoteID)
	if (baseID == "" || quoteID == "") && p.cfg.Symbols.Separator != "" {
		if b, q, ok := strings.Cut(id, p.cfg.Symbols.Separator); ok {
			baseID, quoteID = b, q
		}
	}
	m := core.Market{
		ID:      id,
		BaseID:  baseID,
		QuoteID: quoteID,
		Base:    p.cfg.Symbols.CurrencyCode(baseID),
		Quote:   p.cfg.Symbols.CurrencyCode(quoteID),
		Active:  r.boolean(k.Active, true),
		Precision: core.Precision{
			Amount: p.tick(r.dec(k.AmountTick)),
			Price:  p.tick(r.dec(k.PriceTick)),
		},
		Limits: core.Limits{
			Amount: core.MinMax{Min: r.dec(k.MinAmount), Max: r.dec(k.MaxAmount)},
			Price:  core.MinMax{Min: r.dec(k.MinPrice), Max: r.dec(k.MaxPrice)},
			Cost:   core.MinMax{Min: r.dec(k.MinCost)},
		},
		Fees: p.cfg.Fees,
		Info: raw,
	}
	m.Symbol = m.Base + "/" + m.Quote
	m.Fees.MakerTiers = append([]core.FeeTier(nil), p.cfg.Fees.MakerTiers...)
	m.Fees.TakerTiers = append([]core.FeeTier(nil), p.cfg.Fees.TakerTiers...)
	if maker := r.dec(k.Maker); maker.Known() {
		m.Fees.Maker = maker
	}
	if taker := r.dec(k.Taker); taker.Known() {
		m.Fees.Taker = taker
	}
	if r.err != nil {
		return core.Market{}, fmt.Errorf("market %q: %w", id, r.err)
	}
	return m, nil
}

// ParseMarkets parses a markets listing. A row with a malformed number fails
// the listing; a row without a usable base/quote pair is logged and skipped.
func (p *Pipeline) ParseMarkets(raw any) ([]core.Market, error) {
	items := rows(raw, p.cfg.Schema.Market.List)
	out := make([]core.Market, 0, len(items))
	for _, item := range items {
		m, err := p.market(item)
		if err != nil {
			return nil, err
		}
		if err := m.Validate(); err != nil {
			log.Warn().Err(err).Str("event", "market_skipped").Str("market", m.ID).Send()
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// LoadMarkets parses a listing and swaps it in as the current snapshot.
func (p *Pipeline) LoadMarkets(raw any) (*core.MarketSet, error) {
	markets, err := p.ParseMarkets(raw)
	if err != nil {
		return nil, err
	}
	set, err := core.NewMarketSet(markets)
	if err != nil {
		return nil, err
	}
	p.SetMarkets(set)
	return set, nil
}

var two = precise.FromInt(2)

// Ticker parses a ticker. Close and last stand in for each other; change,
// average and percentage are derived from open and last when missing.
func (p *Pipeline) Ticker(raw Dict, hint *core.Market) (core.Ticker, error) {
	k := p.cfg.Schema.Ticker
	r := &reader{raw: raw}
	t := core.Ticker{
		Symbol:        p.Symbol(r.str(k.Symbol), hint),
		Timestamp:     r.ts(k.Timestamp),
		High:          r.dec(k.High),
		Low:           r.dec(k.Low),
		Bid:           r.dec(k.Bid),
		BidVolume:     r.dec(k.BidVolume),
		Ask:           r.dec(k.Ask),
		AskVolume:     r.dec(k.AskVolume),
		VWAP:          r.dec(k.VWAP),
		Open:          r.dec(k.Open),
		Close:         r.dec(k.Close),
		Last:          r.dec(k.Last),
		PreviousClose: r.dec(k.PreviousClose),
		Change:        r.dec(k.Change),
		Percentage:    r.dec(k.Percentage),
		BaseVolume:    r.dec(k.BaseVolume),
		QuoteVolume:   r.dec(k.QuoteVolume),
		Info:          raw,
	}
	if r.err != nil {
		return core.Ticker{}, fmt.Errorf("ticker %q: %w", t.Symbol, r.err)
	}
	t.Close = t.Close.Or(t.Last)
	t.Last = t.Last.Or(t.Close)
	if t.Open.Known() && t.Last.Known() {
		if !t.Change.Known() {
			t.Change = t.Last.Sub(t.Open)
		}
		if !t.Average.Known() {
			sum := t.Last.Add(t.Open)
			avg, err := sum.Div(two, sum.Scale()+1)
			if err != nil {
				return core.Ticker{}, err
			}
			t.Average = avg
		}
		if !t.Percentage.Known() && !t.Open.IsZero() {
			pct, err := t.Change.Mul(precise.FromInt(100)).DivGuard(t.Open, 4)
			if err != nil {
				return core.Ticker{}, err
			}
			t.Percentage = pct
		}
	}
	return t, nil
}
