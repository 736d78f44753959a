package parse

import (
	"fmt"

	"exchange-core/internal/core"
	"exchange-core/internal/precise"
)

// averageGuard is the number of extra fractional digits kept when an average
// price is derived from cost / filled.
const averageGuard = 8

// Trade parses one fill. A negative amount means a sell when the venue gave no
// side. A missing cost is derived as price × amount; a reported cost that is
// off by more than one price tick per unit is replaced by the derived one.
func (p *Pipeline) Trade(raw Dict, hint *core.Market) (core.Trade, error) {
	k := p.cfg.Schema.Trade
	r := &reader{raw: raw}
	t := core.Trade{
		ID:           r.str(k.ID),
		Order:        r.str(k.Order),
		Timestamp:    r.ts(k.Timestamp),
		Symbol:       p.Symbol(r.str(k.Symbol), hint),
		Type:         p.cfg.OrderTypes.Map(r.str(k.Type)),
		Side:         p.cfg.Sides.Map(r.str(k.Side)),
		TakerOrMaker: liquidityOf(r.str(k.TakerOrMaker)),
		Price:        r.dec(k.Price),
		Amount:       r.dec(k.Amount),
		Cost:         r.dec(k.Cost),
		Info:         raw,
	}
	t.Fee = p.fee(r, k.Fee)
	if r.err != nil {
		return core.Trade{}, fmt.Errorf("trade %q: %w", t.ID, r.err)
	}
	if t.Amount.IsNegative() {
		if t.Side == "" {
			t.Side = core.Sell
		}
		t.Amount = t.Amount.Abs()
	}
	t.Cost = t.Cost.Abs()

	if t.Price.Known() && t.Amount.Known() {
		derived := t.Price.Mul(t.Amount)
		switch {
		case !t.Cost.Known():
			t.Cost = derived
		default:
			tolerance := precise.Zero
			if m, ok := p.marketFor(t.Symbol, hint); ok && m.Precision.Price.IsPositive() {
				tolerance = t.Amount.Mul(m.Precision.Price)
			}
			if t.Cost.Sub(derived).Abs().Cmp(tolerance) > 0 {
				t.Cost = derived
				t.CostReconciled = true
			}
		}
	}
	return t, nil
}

func (p *Pipeline) Trades(raw any, hint *core.Market) ([]core.Trade, error) {
	items := rows(raw, Keys{"trades", "data", "items"})
	out := make([]core.Trade, 0, len(items))
	for _, item := range items {
		t, err := p.Trade(item, hint)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Order parses an order snapshot and reconciles its quantities:
// remaining is always amount − filled when both are known; missing filled,
// cost and fee are summed from embedded trades; average is cost / filled.
func (p *Pipeline) Order(raw Dict, hint *core.Market) (core.Order, error) {
	k := p.cfg.Schema.Order
	r := &reader{raw: raw}
	o := core.Order{
		ID:                 r.str(k.ID),
		ClientOrderID:      r.str(k.ClientOrderID),
		Timestamp:          r.ts(k.Timestamp),
		LastTradeTimestamp: r.ts(k.LastTradeTimestamp),
		Symbol:             p.Symbol(r.str(k.Symbol), hint),
		Type:               p.cfg.OrderTypes.Map(r.str(k.Type)),
		TimeInForce:        r.str(k.TimeInForce),
		Side:               p.cfg.Sides.Map(r.str(k.Side)),
		Status:             p.cfg.OrderStatuses.Map(r.str(k.Status)),
		Price:              r.dec(k.Price),
		TriggerPrice:       r.dec(k.TriggerPrice),
		Amount:             r.dec(k.Amount),
		Filled:             r.dec(k.Filled),
		Remaining:          r.dec(k.Remaining),
		Cost:               r.dec(k.Cost),
		Average:            r.dec(k.Average),
		Info:               raw,
	}
	o.Fee = p.fee(r, k.Fee)
	if r.err != nil {
		return core.Order{}, fmt.Errorf("order %q: %w", o.ID, r.err)
	}
	if o.Amount.IsNegative() && o.Side == "" {
		o.Side = core.Sell
	}
	o.Amount, o.Filled, o.Remaining = o.Amount.Abs(), o.Filled.Abs(), o.Remaining.Abs()

	var tradeHint *core.Market
	if m, ok := p.marketFor(o.Symbol, hint); ok {
		tradeHint = &m
	}
	for _, key := range k.Trades {
		list := SafeList(raw, key)
		if list == nil {
			continue
		}
		for _, item := range list {
			d, ok := AsDict(item)
			if !ok {
				continue
			}
			t, err := p.Trade(d, tradeHint)
			if err != nil {
				return core.Order{}, fmt.Errorf("order %q: %w", o.ID, err)
			}
			if t.Order == "" {
				t.Order = o.ID
			}
			if t.Symbol == "" {
				t.Symbol = o.Symbol
			}
			if t.Side == "" {
				t.Side = o.Side
			}
			o.Trades = append(o.Trades, t)
		}
		break
	}
	if err := reconcileOrder(&o); err != nil {
		return core.Order{}, fmt.Errorf("order %q: %w", o.ID, err)
	}
	return o, nil
}

func reconcileOrder(o *core.Order) error {
	if len(o.Trades) > 0 {
		amounts := make([]precise.Decimal, 0, len(o.Trades))
		costs := make([]precise.Decimal, 0, len(o.Trades))
		fees := make([]precise.Decimal, 0, len(o.Trades))
		feeCurrency, sameCurrency := o.Trades[0].Fee.Currency, true
		for _, t := range o.Trades {
			amounts = append(amounts, t.Amount)
			costs = append(costs, t.Cost)
			fees = append(fees, t.Fee.Cost)
			if t.Fee.Currency != feeCurrency {
				sameCurrency = false
			}
			if t.Timestamp.After(o.LastTradeTimestamp) {
				o.LastTradeTimestamp = t.Timestamp
			}
		}
		if !o.Filled.Known() {
			o.Filled = precise.Sum(amounts...)
		}
		if !o.Cost.Known() {
			o.Cost = precise.Sum(costs...)
		}
		if !o.Fee.Cost.Known() && sameCurrency {
			if total := precise.Sum(fees...); total.Known() {
				o.Fee = core.Fee{Currency: feeCurrency, Cost: total}
			}
		}
	}

	if !o.Amount.Known() {
		switch {
		case o.Filled.Known() && o.Remaining.Known():
			o.Amount = o.Filled.Add(o.Remaining)
		case o.Status == core.OrderClosed && o.Filled.Known():
			o.Amount = o.Filled
		}
	}
	if !o.Filled.Known() && o.Amount.Known() && o.Remaining.Known() {
		o.Filled = o.Amount.Sub(o.Remaining)
	}
	if o.Amount.Known() && o.Filled.Known() {
		o.Remaining = o.Amount.Sub(o.Filled)
	}

	if !o.Average.Known() && o.Cost.Known() && o.Filled.IsPositive() {
		avg, err := o.Cost.DivGuard(o.Filled, averageGuard)
		if err != nil {
			return err
		}
		o.Average = avg
	}
	if !o.Cost.Known() && o.Filled.Known() {
		if price := o.Average.Or(o.Price); price.Known() {
			o.Cost = o.Filled.Mul(price)
		}
	}
	if !o.Price.Known() && o.Type == core.OrderMarket {
		o.Price = o.Average
	}
	return nil
}

// FillFromRequest completes an order acknowledgement with what was sent.
// Venues often answer a placement with little more than an id.
func FillFromRequest(o core.Order, req core.OrderRequest) (core.Order, error) {
	if o.Symbol == "" {
		o.Symbol = req.Symbol
	}
	if o.Side == "" {
		o.Side = req.Side
	}
	if o.Type == "" {
		o.Type = req.Type
	}
	if o.ClientOrderID == "" {
		o.ClientOrderID = req.ClientOrderID
	}
	if o.TimeInForce == "" {
		o.TimeInForce = req.TimeInForce
	}
	o.Amount = o.Amount.Or(req.Amount)
	o.TriggerPrice = o.TriggerPrice.Or(req.TriggerPrice)
	if o.Type != core.OrderMarket {
		o.Price = o.Price.Or(req.Price)
	}
	if o.Status == "" {
		o.Status = core.OrderOpen
	}
	if err := reconcileOrder(&o); err != nil {
		return core.Order{}, err
	}
	return o, nil
}

func (p *Pipeline) Orders(raw any, hint *core.Market) ([]core.Order, error) {
	items := rows(raw, Keys{"orders", "data", "items"})
	out := make([]core.Order, 0, len(items))
	for _, item := range items {
		o, err := p.Order(item, hint)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}
