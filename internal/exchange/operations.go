package exchange

import (
	"context"
	"fmt"
	"time"

	"exchange-core/internal/core"
	"exchange-core/internal/parse"
)

// LoadMarkets fetches the market list and swaps the snapshot used by every
// later call. Concurrent loads share one request. Without reload a loaded
// snapshot is returned as is.
func (c *Client) LoadMarkets(ctx context.Context, reload bool) (*core.MarketSet, error) {
	if set := c.pipeline.Markets(); set != nil && !reload {
		return set, nil
	}
	v, err, _ := c.flight.Do("markets", func() (any, error) {
		raw, err := c.call(ctx, OpMarkets, Args{})
		if err != nil {
			return nil, err
		}
		set, err := c.pipeline.LoadMarkets(raw)
		if err != nil {
			return nil, c.fail(core.ErrParse, OpMarkets, err)
		}
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.MarketSet), nil
}

// Market looks a symbol up in the loaded snapshot.
func (c *Client) Market(symbol string) (core.Market, error) {
	set := c.pipeline.Markets()
	if set == nil {
		return core.Market{}, c.fail(core.ErrBadRequest, OpMarkets, fmt.Errorf("markets not loaded"))
	}
	m, ok := set.BySymbol(symbol)
	if !ok {
		return core.Market{}, c.fail(core.ErrBadRequest, OpMarkets, fmt.Errorf("unknown symbol %q", symbol))
	}
	return m, nil
}

func (c *Client) market(ctx context.Context, symbol string) (*core.Market, error) {
	if symbol == "" {
		return nil, nil
	}
	if _, err := c.LoadMarkets(ctx, false); err != nil {
		return nil, err
	}
	m, err := c.Market(symbol)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) parseErr(op Operation, err error) error {
	kind := core.KindOf(err)
	if kind == nil {
		kind = core.ErrParse
	}
	return c.fail(kind, op, err)
}

func (c *Client) FetchTicker(ctx context.Context, symbol string) (core.Ticker, error) {
	m, err := c.market(ctx, symbol)
	if err != nil {
		return core.Ticker{}, err
	}
	raw, err := c.call(ctx, OpTicker, Args{Market: m, Symbol: symbol})
	if err != nil {
		return core.Ticker{}, err
	}
	d, err := single(raw)
	if err != nil {
		return core.Ticker{}, c.parseErr(OpTicker, err)
	}
	t, err := c.pipeline.Ticker(d, m)
	if err != nil {
		return core.Ticker{}, c.parseErr(OpTicker, err)
	}
	return t, nil
}

func (c *Client) FetchOrderBook(ctx context.Context, symbol string, limit int) (core.OrderBook, error) {
	m, err := c.market(ctx, symbol)
	if err != nil {
		return core.OrderBook{}, err
	}
	raw, err := c.call(ctx, OpOrderBook, Args{Market: m, Symbol: symbol, Limit: limit})
	if err != nil {
		return core.OrderBook{}, err
	}
	d, err := single(raw)
	if err != nil {
		return core.OrderBook{}, c.parseErr(OpOrderBook, err)
	}
	book, err := c.pipeline.OrderBook(d, m)
	if err != nil {
		return core.OrderBook{}, c.parseErr(OpOrderBook, err)
	}
	if limit > 0 {
		if len(book.Bids) > limit {
			book.Bids = book.Bids[:limit]
		}
		if len(book.Asks) > limit {
			book.Asks = book.Asks[:limit]
		}
	}
	return book, nil
}

// FetchTrades returns public trades, oldest first.
func (c *Client) FetchTrades(ctx context.Context, symbol string, since time.Time, limit int) ([]core.Trade, error) {
	return c.trades(ctx, OpTrades, symbol, since, limit)
}

// FetchMyTrades returns the account's own fills, oldest first.
func (c *Client) FetchMyTrades(ctx context.Context, symbol string, since time.Time, limit int) ([]core.Trade, error) {
	return c.trades(ctx, OpMyTrades, symbol, since, limit)
}

func (c *Client) trades(ctx context.Context, op Operation, symbol string, since time.Time, limit int) ([]core.Trade, error) {
	m, err := c.market(ctx, symbol)
	if err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, op, Args{Market: m, Symbol: symbol, Since: since, Limit: limit})
	if err != nil {
		return nil, err
	}
	trades, err := c.pipeline.Trades(raw, m)
	if err != nil {
		return nil, c.parseErr(op, err)
	}
	return filterByTime(trades, func(t core.Trade) time.Time { return t.Timestamp }, since, limit), nil
}

func (c *Client) FetchBalance(ctx context.Context) (core.Balances, error) {
	raw, err := c.call(ctx, OpBalance, Args{})
	if err != nil {
		return core.Balances{}, err
	}
	b, err := c.pipeline.Balances(raw)
	if err != nil {
		return core.Balances{}, c.parseErr(OpBalance, err)
	}
	return b, nil
}

// CreateOrder rounds the request to the market's precision, checks its
// limits and places it. The returned order is completed from the request
// where the venue's acknowledgement is silent.
func (c *Client) CreateOrder(ctx context.Context, req core.OrderRequest) (core.Order, error) {
	if !c.Has(OpCreateOrder) {
		return core.Order{}, c.fail(core.ErrNotSupported, OpCreateOrder, fmt.Errorf("%s cannot place orders", c.adapter.ID))
	}
	m, err := c.market(ctx, req.Symbol)
	if err != nil {
		return core.Order{}, err
	}
	if m == nil {
		return core.Order{}, c.fail(core.ErrBadRequest, OpCreateOrder, fmt.Errorf("symbol is required"))
	}
	norm, err := core.NormalizeOrder(req, *m)
	if err != nil {
		return core.Order{}, c.parseErr(OpCreateOrder, err)
	}
	if norm.ClientOrderID == "" && c.adapter.ClientOrderIDPrefix != "" {
		norm.ClientOrderID = NewClientOrderID(c.adapter.ClientOrderIDPrefix)
	}
	raw, err := c.call(ctx, OpCreateOrder, Args{Market: m, Symbol: norm.Symbol, Order: norm})
	if err != nil {
		return core.Order{}, err
	}
	order := core.Order{}
	if d, ok := firstDict(raw); ok {
		if order, err = c.pipeline.Order(d, m); err != nil {
			return core.Order{}, c.parseErr(OpCreateOrder, err)
		}
	}
	order, err = parse.FillFromRequest(order, norm)
	if err != nil {
		return core.Order{}, c.parseErr(OpCreateOrder, err)
	}
	if order.Timestamp.IsZero() {
		order.Timestamp = time.Now().UTC()
	}
	c.remember(order)
	return order, nil
}

// CancelOrder cancels by id. Venues that answer with an empty body yield an
// order carrying only the id, symbol and canceled status.
func (c *Client) CancelOrder(ctx context.Context, id, symbol string) (core.Order, error) {
	m, err := c.market(ctx, symbol)
	if err != nil {
		return core.Order{}, err
	}
	args := Args{Market: m, Symbol: symbol, OrderID: id}
	c.ordersMu.RLock()
	if cached, ok := c.orders[id]; ok {
		args.Order = core.OrderRequest{
			Symbol: cached.Symbol,
			Type:   cached.Type,
			Side:   cached.Side,
			Amount: cached.Amount,
			Price:  cached.Price,
		}
	}
	c.ordersMu.RUnlock()
	raw, err := c.call(ctx, OpCancelOrder, args)
	if err != nil {
		return core.Order{}, err
	}
	order := core.Order{}
	if d, ok := firstDict(raw); ok {
		if order, err = c.pipeline.Order(d, m); err != nil {
			return core.Order{}, c.parseErr(OpCancelOrder, err)
		}
	}
	if order.ID == "" {
		order.ID = id
	}
	if order.Symbol == "" {
		order.Symbol = symbol
	}
	if order.Status == "" || order.Status == core.OrderOpen {
		order.Status = core.OrderCanceled
	}
	c.ordersMu.Lock()
	if cached, ok := c.orders[order.ID]; ok && order.Info == nil {
		cached.Status = core.OrderCanceled
		order = cached
	}
	c.ordersMu.Unlock()
	c.remember(order)
	return order, nil
}

func (c *Client) FetchOrder(ctx context.Context, id, symbol string) (core.Order, error) {
	m, err := c.market(ctx, symbol)
	if err != nil {
		return core.Order{}, err
	}
	raw, err := c.call(ctx, OpFetchOrder, Args{Market: m, Symbol: symbol, OrderID: id})
	if err != nil {
		return core.Order{}, err
	}
	d, ok := firstDict(raw)
	if !ok {
		return core.Order{}, c.fail(core.ErrOrderNotFound, OpFetchOrder, fmt.Errorf("order %q not returned", id))
	}
	order, err := c.pipeline.Order(d, m)
	if err != nil {
		return core.Order{}, c.parseErr(OpFetchOrder, err)
	}
	c.remember(order)
	return order, nil
}

// FetchOpenOrders lists open orders, for one symbol or, with an empty symbol,
// for every market the venue reports.
func (c *Client) FetchOpenOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	m, err := c.market(ctx, symbol)
	if err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, OpOpenOrders, Args{Market: m, Symbol: symbol})
	if err != nil {
		return nil, err
	}
	orders, err := c.pipeline.Orders(raw, m)
	if err != nil {
		return nil, c.parseErr(OpOpenOrders, err)
	}
	if m != nil {
		out := orders[:0]
		for _, o := range orders {
			if o.Symbol == m.Symbol {
				out = append(out, o)
			}
		}
		orders = out
	}
	c.remember(orders...)
	return orders, nil
}

func (c *Client) FetchDeposits(ctx context.Context, code string, since time.Time, limit int) ([]core.Transaction, error) {
	return c.transactions(ctx, OpDeposits, core.Deposit, code, since, limit)
}

func (c *Client) FetchWithdrawals(ctx context.Context, code string, since time.Time, limit int) ([]core.Transaction, error) {
	return c.transactions(ctx, OpWithdrawals, core.Withdrawal, code, since, limit)
}

func (c *Client) transactions(ctx context.Context, op Operation, typ core.TransactionType, code string, since time.Time, limit int) ([]core.Transaction, error) {
	raw, err := c.call(ctx, op, Args{Code: code, Since: since, Limit: limit})
	if err != nil {
		return nil, err
	}
	txs, err := c.pipeline.Transactions(raw, typ)
	if err != nil {
		return nil, c.parseErr(op, err)
	}
	out := txs[:0]
	for _, tx := range txs {
		if tx.Type == typ && (code == "" || tx.Currency == code) {
			out = append(out, tx)
		}
	}
	return filterByTime(out, func(t core.Transaction) time.Time { return t.Timestamp }, since, limit), nil
}

func (c *Client) FetchLedger(ctx context.Context, code string, since time.Time, limit int) ([]core.LedgerEntry, error) {
	raw, err := c.call(ctx, OpLedger, Args{Code: code, Since: since, Limit: limit})
	if err != nil {
		return nil, err
	}
	entries, err := c.pipeline.Ledger(raw)
	if err != nil {
		return nil, c.parseErr(OpLedger, err)
	}
	if code != "" {
		out := entries[:0]
		for _, e := range entries {
			if e.Currency == code {
				out = append(out, e)
			}
		}
		entries = out
	}
	return filterByTime(entries, func(e core.LedgerEntry) time.Time { return e.Timestamp }, since, limit), nil
}

func single(raw any) (parse.Dict, error) {
	if d, ok := firstDict(raw); ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: expected an object, got %T", core.ErrParse, raw)
}

// firstDict returns raw as an object, or the first element of a list.
func firstDict(raw any) (parse.Dict, bool) {
	if d, ok := parse.AsDict(raw); ok {
		return d, true
	}
	if list := parse.AsList(raw); len(list) > 0 {
		return parse.AsDict(list[0])
	}
	return nil, false
}

// filterByTime sorts oldest first, drops items before since and keeps the
// newest limit items.
func filterByTime[T any](items []T, at func(T) time.Time, since time.Time, limit int) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if since.IsZero() || !at(item).Before(since) {
			out = append(out, item)
		}
	}
	sortByTime(out, at)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
