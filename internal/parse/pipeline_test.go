package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange-core/internal/core"
	"exchange-core/internal/precise"
)

func newTestPipeline() *Pipeline {
	return NewPipeline(Config{
		Symbols: SymbolResolver{Separator: "_"},
		Fees: core.FeeSchedule{
			Percentage: true,
			TakerTiers: []core.FeeTier{
				{Threshold: precise.MustParse("100000"), Rate: precise.MustParse("0.001")},
				{Threshold: precise.Zero, Rate: precise.MustParse("0.002")},
			},
		},
	})
}

func dec(s string) precise.Decimal { return precise.MustParse(s) }

func TestTickerScenario(t *testing.T) {
	p := newTestPipeline()
	ticker, err := p.Ticker(decode(t, `{"last":"100.00","high":"110","low":"90"}`), nil)
	require.NoError(t, err)

	assert.Equal(t, "100.00", ticker.Last.String())
	assert.True(t, ticker.High.Equal(dec("110")))
	assert.True(t, ticker.Low.Equal(dec("90")))
	assert.False(t, ticker.Bid.Known())
	assert.False(t, ticker.Ask.Known())
	assert.False(t, ticker.Open.Known())
	assert.False(t, ticker.Change.Known())
}

func TestTickerDerivesChangeFromOpen(t *testing.T) {
	p := newTestPipeline()
	ticker, err := p.Ticker(decode(t, `{"symbol":"btc_usdt","open":"80","last":"100.5"}`), nil)
	require.NoError(t, err)

	assert.Equal(t, "BTC/USDT", ticker.Symbol)
	assert.True(t, ticker.Close.Equal(dec("100.5")))
	assert.True(t, ticker.Change.Equal(dec("20.5")))
	assert.True(t, ticker.Average.Equal(dec("90.25")))
	assert.True(t, ticker.Percentage.Equal(dec("25.625")))
}

func TestTickerMalformedNumberIsParseError(t *testing.T) {
	p := newTestPipeline()
	_, err := p.Ticker(decode(t, `{"last":"1OO"}`), nil)
	assert.ErrorIs(t, err, core.ErrParse)
}

func TestOrderScenarioRemainingDerived(t *testing.T) {
	p := newTestPipeline()
	order, err := p.Order(decode(t, `{"amount":"5","filled_amount":"2"}`), nil)
	require.NoError(t, err)

	assert.Equal(t, "3", order.Remaining.String())
}

func TestOrderRemainingRecomputedOverSource(t *testing.T) {
	p := newTestPipeline()
	order, err := p.Order(decode(t, `{"id":"1","amount":"5","filled":"2","remaining":"4"}`), nil)
	require.NoError(t, err)
	assert.True(t, order.Remaining.Equal(dec("3")))

	order, err = p.Order(decode(t, `{"id":"2","remaining":"4","amount":"10"}`), nil)
	require.NoError(t, err)
	assert.True(t, order.Filled.Equal(dec("6")), "filled derived from amount - remaining")
	assert.True(t, order.Remaining.Equal(dec("4")))
}

func TestOrderInvariantAcrossShapes(t *testing.T) {
	p := newTestPipeline()
	bodies := []string{
		`{"amount":"1.5","filled":"0.5"}`,
		`{"filled":"2","remaining":"3"}`,
		`{"amount":"-4","filled":"-1"}`,
		`{"status":"FILLED","filled":"7"}`,
		`{"amount":"2","trades":[{"amount":"0.5","price":"10"},{"amount":"0.25","price":"12"}]}`,
	}
	for _, body := range bodies {
		order, err := p.Order(decode(t, body), nil)
		require.NoError(t, err, body)
		if order.Amount.Known() && order.Filled.Known() {
			assert.True(t, order.Remaining.Equal(order.Amount.Sub(order.Filled)), "%s: remaining %s", body, order.Remaining)
		}
	}
}

func TestOrderFromEmbeddedTrades(t *testing.T) {
	p := newTestPipeline()
	raw := decode(t, `{
		"id": "42",
		"symbol": "eth_btc",
		"type": "MARKET",
		"side": "BUY",
		"status": "FILLED",
		"amount": "1",
		"fills": [
			{"id":"t1","price":"0.05","qty":"0.4","commission":"0.0004","commissionAsset":"ETH"},
			{"id":"t2","price":"0.06","qty":"0.6","commission":"0.0006","commissionAsset":"ETH"}
		]
	}`)
	order, err := p.Order(raw, nil)
	require.NoError(t, err)

	assert.Equal(t, "ETH/BTC", order.Symbol)
	assert.Equal(t, core.OrderMarket, order.Type)
	assert.Equal(t, core.Buy, order.Side)
	assert.Equal(t, core.OrderClosed, order.Status)
	require.Len(t, order.Trades, 2)
	assert.Equal(t, "42", order.Trades[0].Order)
	assert.True(t, order.Filled.Equal(dec("1")))
	assert.True(t, order.Remaining.IsZero())
	assert.True(t, order.Cost.Equal(dec("0.056")))
	assert.True(t, order.Average.Equal(dec("0.056")))
	assert.True(t, order.Price.Equal(order.Average), "market order price falls back to average")
	assert.Equal(t, "ETH", order.Fee.Currency)
	assert.True(t, order.Fee.Cost.Equal(dec("0.001")))
}

func TestOrderCostFromPriceWhenNoAverage(t *testing.T) {
	p := newTestPipeline()
	order, err := p.Order(decode(t, `{"type":"limit","price":"20","amount":"3","filled":"1.5"}`), nil)
	require.NoError(t, err)
	assert.True(t, order.Cost.Equal(dec("30")))
	assert.False(t, order.Average.Known(), "average needs a reported or summed cost")
}

func TestTradeSignedAmountAndCost(t *testing.T) {
	p := newTestPipeline()
	trade, err := p.Trade(decode(t, `{"id":"9","price":"100","amount":"-0.5","takerOrMaker":"maker"}`), nil)
	require.NoError(t, err)

	assert.Equal(t, core.Sell, trade.Side)
	assert.Equal(t, "0.5", trade.Amount.String())
	assert.True(t, trade.Cost.Equal(dec("50")))
	assert.Equal(t, core.Maker, trade.TakerOrMaker)
	assert.False(t, trade.CostReconciled)

	trade, err = p.Trade(decode(t, `{"id":"10","side":"buy","price":"100","amount":"1"}`), nil)
	require.NoError(t, err)
	assert.Equal(t, core.LiquidityUnknown, trade.TakerOrMaker)
	assert.Equal(t, "unknown", trade.TakerOrMaker.String())
}

func TestTradeCostReconciliation(t *testing.T) {
	p := newTestPipeline()
	m := &core.Market{ID: "btc_usdt", Symbol: "BTC/USDT", Base: "BTC", Quote: "USDT", Precision: core.Precision{Price: dec("0.01")}}

	within, err := p.Trade(decode(t, `{"price":"100.00","amount":"2","cost":"200.02"}`), m)
	require.NoError(t, err)
	assert.False(t, within.CostReconciled)
	assert.True(t, within.Cost.Equal(dec("200.02")))

	beyond, err := p.Trade(decode(t, `{"price":"100.00","amount":"2","cost":"200.03"}`), m)
	require.NoError(t, err)
	assert.True(t, beyond.CostReconciled)
	assert.True(t, beyond.Cost.Equal(dec("200")))

	noTick, err := p.Trade(decode(t, `{"price":"100","amount":"2","cost":"200.000001"}`), nil)
	require.NoError(t, err)
	assert.True(t, noTick.CostReconciled)
}

func TestBalancesInvariant(t *testing.T) {
	p := newTestPipeline()
	raw, err := Decode([]byte(`{"balances":[
		{"currency":"btc","free":"1.5","used":"0.5"},
		{"currency":"usdt","free":"100","total":"150"},
		{"currency":"eth","used":"2","total":"5"},
		{"currency":"xbt","free":"1","used":"1","total":"3"},
		{"currency":"sol","total":"9"}
	]}`))
	require.NoError(t, err)

	balances, err := p.Balances(raw)
	require.NoError(t, err)

	for code, b := range balances.Assets {
		if b.Free.Known() && b.Used.Known() && b.Total.Known() {
			assert.True(t, b.Total.Equal(b.Free.Add(b.Used)), "%s total %s != %s + %s", code, b.Total, b.Free, b.Used)
		}
	}
	assert.True(t, balances.Get("BTC").Total.Equal(dec("2")), "XBT is an alias of BTC and rebuilds total")
	assert.True(t, balances.Get("USDT").Used.Equal(dec("50")))
	assert.True(t, balances.Get("ETH").Free.Equal(dec("3")))
	assert.False(t, balances.Get("SOL").Free.Known())
	assert.False(t, balances.Get("DOGE").Total.Known())
}

func TestBalancesKeyedByCurrency(t *testing.T) {
	p := newTestPipeline()
	raw, err := Decode([]byte(`{"EUR":{"available":"10","hold":"2.5"},"timestamp":1700000000000}`))
	require.NoError(t, err)

	balances, err := p.Balances(raw)
	require.NoError(t, err)
	assert.True(t, balances.Get("EUR").Total.Equal(dec("12.5")))
	assert.False(t, balances.Timestamp.IsZero())
}

func TestLedgerScenarioNegativeAmount(t *testing.T) {
	p := newTestPipeline()
	entry, err := p.LedgerEntry(decode(t, `{"id":"L1","amount":"-0.5","currency":"btc","type":"fee","after":"1.5"}`))
	require.NoError(t, err)

	assert.Equal(t, core.Out, entry.Direction)
	assert.Equal(t, "0.5", entry.Amount.String())
	assert.Equal(t, core.LedgerFee, entry.Type)
	assert.True(t, entry.Before.Equal(dec("2")))
}

func TestLedgerSignWinsOverReportedDirection(t *testing.T) {
	p := newTestPipeline()
	entry, err := p.LedgerEntry(decode(t, `{"amount":"3","direction":"out","before":"1"}`))
	require.NoError(t, err)
	assert.Equal(t, core.In, entry.Direction)
	assert.True(t, entry.After.Equal(dec("4")))

	entry, err = p.LedgerEntry(decode(t, `{"amount":"0","direction":"out"}`))
	require.NoError(t, err)
	assert.Equal(t, core.Out, entry.Direction)
}

func TestLedgerUnsignedVenue(t *testing.T) {
	cfg := Config{Schema: DefaultSchema()}
	cfg.Schema.Ledger.Unsigned = true
	p := NewPipeline(cfg)

	entry, err := p.LedgerEntry(decode(t, `{"amount":"3","direction":"out","before":"10"}`))
	require.NoError(t, err)
	assert.Equal(t, core.Out, entry.Direction)
	assert.True(t, entry.After.Equal(dec("7")))
}

func TestTransactions(t *testing.T) {
	p := newTestPipeline()
	raw, err := Decode([]byte(`[
		{"id":"d1","amount":"1.25","currency":"eth","status":"success","type":"deposit"},
		{"id":"w1","amount":"-2","currency":"usdt","status":"canceled"},
		{"id":"x","amount":"4","currency":"usdt","status":"WAITING_FOR_CONFIRMATION"}
	]`))
	require.NoError(t, err)

	txs, err := p.Transactions(raw, "")
	require.NoError(t, err)
	require.Len(t, txs, 3)

	assert.Equal(t, core.Deposit, txs[0].Type)
	assert.Equal(t, core.In, txs[0].Direction)
	assert.Equal(t, core.TransactionOK, txs[0].Status)

	assert.Equal(t, core.Withdrawal, txs[1].Type)
	assert.Equal(t, core.Out, txs[1].Direction)
	assert.Equal(t, "2", txs[1].Amount.String())
	assert.Equal(t, core.TransactionFailed, txs[1].Status)

	assert.Equal(t, core.TransactionStatus("WAITING_FOR_CONFIRMATION"), txs[2].Status)

	hinted, err := p.Transaction(decode(t, `{"amount":"4"}`), core.Withdrawal)
	require.NoError(t, err)
	assert.Equal(t, core.Out, hinted.Direction)
}

func TestOrderBookSortsLevels(t *testing.T) {
	p := newTestPipeline()
	m := &core.Market{ID: "btc_usdt", Symbol: "BTC/USDT"}
	book, err := p.OrderBook(decode(t, `{
		"bids": [["99.5","1"],["100","2"],{"price":"99.9","size":"0.5"}],
		"asks": [["101","1"],["100.5","3"]],
		"lastUpdateId": 77
	}`), m)
	require.NoError(t, err)

	assert.Equal(t, "BTC/USDT", book.Symbol)
	assert.Equal(t, int64(77), book.Nonce)
	require.Len(t, book.Bids, 3)
	assert.Equal(t, "100", book.Bids[0].Price.String())
	assert.Equal(t, "99.9", book.Bids[1].Price.String())
	assert.Equal(t, "100.5", book.Asks[0].Price.String())

	_, err = p.OrderBook(decode(t, `{"bids": [["x","1"]]}`), m)
	assert.ErrorIs(t, err, core.ErrParse)
}

func TestMarketsLoadAndTiers(t *testing.T) {
	p := newTestPipeline()
	raw, err := Decode([]byte(`[
		{"id":"btc_usdt","tick_size":"0.01","lot_size":"0.0001","min_amount":"0.001"},
		{"id":"eth_usdt","base":"eth","quote":"usdt","taker":"0.0015"}
	]`))
	require.NoError(t, err)

	set, err := p.LoadMarkets(raw)
	require.NoError(t, err)
	assert.Same(t, set, p.Markets())

	btc, ok := set.BySymbol("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, "btc_usdt", btc.ID)
	assert.True(t, btc.Precision.Price.Equal(dec("0.01")))
	assert.True(t, btc.Active)
	assert.True(t, btc.Fees.TierBased)
	assert.True(t, btc.Fees.Taker.Equal(dec("0.002")), "taker defaults to lowest tier")
	assert.True(t, btc.Fees.TakerTiers[0].Threshold.IsZero(), "tiers sorted ascending")

	eth, ok := set.BySymbol("ETH/USDT")
	require.True(t, ok)
	assert.True(t, eth.Fees.Taker.Equal(dec("0.0015")))

	assert.Equal(t, "BTC/USDT", p.Symbol("btc_usdt", nil))
	assert.Equal(t, "eth_usdt", p.MarketID("ETH/USDT"))
}

func TestMarketSameBaseQuoteRejected(t *testing.T) {
	p := newTestPipeline()
	_, err := p.Market(decode(t, `{"id":"btc_xbt"}`))
	assert.ErrorIs(t, err, core.ErrParse)
}

func TestLoadMarketsSkipsInvalidRow(t *testing.T) {
	p := newTestPipeline()
	raw, err := Decode([]byte(`[
		{"id":"btc_xbt"},
		{"id":"eth_usdt","base":"eth","quote":"usdt"}
	]`))
	require.NoError(t, err)

	set, err := p.LoadMarkets(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH/USDT"}, set.Symbols())
	assert.Same(t, set, p.Markets())

	_, err = p.ParseMarkets([]any{Dict{"id": "eth_usdt", "min_amount": "lots"}})
	assert.ErrorIs(t, err, core.ErrParse)
}

func TestMarketDecimalPlacesPrecision(t *testing.T) {
	p := NewPipeline(Config{Symbols: SymbolResolver{Separator: "-"}, Precision: DecimalPlaces})
	m, err := p.Market(decode(t, `{"id":"BTC-PLN","price_precision":2,"amount_precision":8}`))
	require.NoError(t, err)
	assert.Equal(t, "0.01", m.Precision.Price.String())
	assert.Equal(t, "0.00000001", m.Precision.Amount.String())
}

func TestFillFromRequestCompletesBareAcknowledgement(t *testing.T) {
	ack := core.Order{ID: "771"}
	req := core.OrderRequest{
		Symbol:        "BTC/USDT",
		Type:          core.OrderLimit,
		Side:          core.Sell,
		Amount:        dec("0.25"),
		Price:         dec("64000.5"),
		ClientOrderID: "cli-1",
	}

	order, err := FillFromRequest(ack, req)
	require.NoError(t, err)

	assert.Equal(t, "771", order.ID)
	assert.Equal(t, "BTC/USDT", order.Symbol)
	assert.Equal(t, core.Sell, order.Side)
	assert.Equal(t, core.OrderLimit, order.Type)
	assert.Equal(t, core.OrderOpen, order.Status)
	assert.Equal(t, "cli-1", order.ClientOrderID)
	assert.Equal(t, "0.25", order.Amount.String())
	assert.Equal(t, "64000.5", order.Price.String())
}

func TestFillFromRequestKeepsVenueValues(t *testing.T) {
	ack := core.Order{ID: "9", Type: core.OrderMarket, Status: core.OrderClosed, Amount: dec("1"), Filled: dec("1")}
	req := core.OrderRequest{Symbol: "ETH/USDT", Type: core.OrderMarket, Side: core.Buy, Amount: dec("2"), Price: dec("3000")}

	order, err := FillFromRequest(ack, req)
	require.NoError(t, err)

	assert.Equal(t, core.OrderClosed, order.Status)
	assert.True(t, order.Amount.Equal(dec("1")))
	assert.False(t, order.Price.Known(), "market order price must not come from the request")
	assert.True(t, order.Remaining.IsZero())
}
