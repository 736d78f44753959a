package parse

import (
	"fmt"
	"sort"

	"exchange-core/internal/core"
)

// OrderBook parses a depth snapshot. Levels are either [price, amount] arrays or
// objects; bids come out best (highest) first and asks lowest first.
func (p *Pipeline) OrderBook(raw Dict, hint *core.Market) (core.OrderBook, error) {
	k := p.cfg.Schema.OrderBook
	r := &reader{raw: raw}
	book := core.OrderBook{
		Timestamp: r.ts(k.Timestamp),
	}
	for _, key := range k.Nonce {
		if n := SafeInteger(raw, key, 0); n != 0 {
			book.Nonce = n
			break
		}
	}
	if hint != nil {
		book.Symbol = hint.Symbol
	}
	var err error
	if book.Bids, err = p.levels(raw, k.Bids, k); err != nil {
		return core.OrderBook{}, fmt.Errorf("order book %q bids: %w", book.Symbol, err)
	}
	if book.Asks, err = p.levels(raw, k.Asks, k); err != nil {
		return core.OrderBook{}, fmt.Errorf("order book %q asks: %w", book.Symbol, err)
	}
	sort.SliceStable(book.Bids, func(i, j int) bool { return book.Bids[i].Price.Cmp(book.Bids[j].Price) > 0 })
	sort.SliceStable(book.Asks, func(i, j int) bool { return book.Asks[i].Price.Cmp(book.Asks[j].Price) < 0 })
	return book, nil
}

func (p *Pipeline) levels(raw Dict, sideKeys Keys, k OrderBookKeys) ([]core.PriceLevel, error) {
	var list []any
	for _, key := range sideKeys {
		if list = SafeList(raw, key); list != nil {
			break
		}
	}
	out := make([]core.PriceLevel, 0, len(list))
	for _, item := range list {
		var level core.PriceLevel
		if pair := AsList(item); len(pair) >= 2 {
			price, _, err := decimalOf(pair[0])
			if err != nil {
				return nil, fmt.Errorf("%w: level price: %v", core.ErrParse, err)
			}
			amount, _, err := decimalOf(pair[1])
			if err != nil {
				return nil, fmt.Errorf("%w: level amount: %v", core.ErrParse, err)
			}
			level = core.PriceLevel{Price: price, Amount: amount}
		} else if d, ok := AsDict(item); ok {
			lr := &reader{raw: d}
			level = core.PriceLevel{Price: lr.dec(k.Price), Amount: lr.dec(k.Amount)}
			if lr.err != nil {
				return nil, lr.err
			}
		} else {
			continue
		}
		if !level.Price.Known() {
			continue
		}
		out = append(out, level)
	}
	return out, nil
}
