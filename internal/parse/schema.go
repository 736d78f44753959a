package parse

// Keys lists the candidate field names of one concept, tried in order.
type Keys []string

type FeeKeys struct {
	// Nested names an object holding cost/currency/rate, e.g. "fee".
	Nested   Keys
	Cost     Keys
	Currency Keys
	Rate     Keys
}

type MarketKeys struct {
	// List names the array of markets inside the response, empty when the
	// response is the array itself.
	List       Keys
	ID         Keys
	BaseID     Keys
	QuoteID    Keys
	Active     Keys
	AmountTick Keys
	PriceTick  Keys
	MinAmount  Keys
	MaxAmount  Keys
	MinPrice   Keys
	MaxPrice   Keys
	MinCost    Keys
	Maker      Keys
	Taker      Keys
}

type TickerKeys struct {
	Symbol        Keys
	Timestamp     Keys
	High          Keys
	Low           Keys
	Bid           Keys
	BidVolume     Keys
	Ask           Keys
	AskVolume     Keys
	VWAP          Keys
	Open          Keys
	Close         Keys
	Last          Keys
	PreviousClose Keys
	Change        Keys
	Percentage    Keys
	BaseVolume    Keys
	QuoteVolume   Keys
}

type OrderBookKeys struct {
	Bids      Keys
	Asks      Keys
	Timestamp Keys
	Nonce     Keys
	// Price and Amount apply to levels encoded as objects; array levels are
	// read as [price, amount].
	Price  Keys
	Amount Keys
}

type TradeKeys struct {
	ID           Keys
	Order        Keys
	Timestamp    Keys
	Symbol       Keys
	Type         Keys
	Side         Keys
	TakerOrMaker Keys
	Price        Keys
	Amount       Keys
	Cost         Keys
	Fee          FeeKeys
}

type OrderKeys struct {
	ID                 Keys
	ClientOrderID      Keys
	Timestamp          Keys
	LastTradeTimestamp Keys
	Symbol             Keys
	Type               Keys
	TimeInForce        Keys
	Side               Keys
	Status             Keys
	Price              Keys
	TriggerPrice       Keys
	Amount             Keys
	Filled             Keys
	Remaining          Keys
	Cost               Keys
	Average            Keys
	Trades             Keys
	Fee                FeeKeys
}

type BalanceKeys struct {
	// List names the array of per-asset rows; when empty the response is the
	// array itself, or an object keyed by currency code.
	List     Keys
	Currency Keys
	Free     Keys
	Used     Keys
	Total    Keys
}

type TransactionKeys struct {
	ID        Keys
	TxID      Keys
	Timestamp Keys
	Currency  Keys
	Amount    Keys
	Type      Keys
	Status    Keys
	Address   Keys
	Tag       Keys
	Network   Keys
	Fee       FeeKeys
}

type LedgerKeys struct {
	ID               Keys
	Timestamp        Keys
	Account          Keys
	Type             Keys
	Direction        Keys
	Currency         Keys
	Amount           Keys
	Before           Keys
	After            Keys
	Status           Keys
	ReferenceID      Keys
	ReferenceAccount Keys
	Fee              FeeKeys
	// Unsigned marks venues that report magnitudes plus a direction field.
	// Otherwise the sign of the amount decides the direction.
	Unsigned bool
}

// Schema is the field-name table of one adapter.
type Schema struct {
	Market      MarketKeys
	Ticker      TickerKeys
	OrderBook   OrderBookKeys
	Trade       TradeKeys
	Order       OrderKeys
	Balance     BalanceKeys
	Transaction TransactionKeys
	Ledger      LedgerKeys
}

var defaultFee = FeeKeys{
	Nested:   Keys{"fee"},
	Cost:     Keys{"fee_cost", "feeCost", "commission"},
	Currency: Keys{"fee_currency", "feeCurrency", "commissionAsset"},
	Rate:     Keys{"fee_rate", "feeRate"},
}

// DefaultSchema covers the field names most venues share. Adapters start from
// it and override what differs.
func DefaultSchema() Schema {
	return Schema{
		Market: MarketKeys{
			ID:         Keys{"id", "symbol", "market"},
			BaseID:     Keys{"base", "baseAsset", "base_currency"},
			QuoteID:    Keys{"quote", "quoteAsset", "quote_currency"},
			Active:     Keys{"active", "enabled"},
			AmountTick: Keys{"amount_precision", "stepSize", "lot_size"},
			PriceTick:  Keys{"price_precision", "tickSize", "tick_size"},
			MinAmount:  Keys{"min_amount", "minQty", "min_size"},
			MaxAmount:  Keys{"max_amount", "maxQty", "max_size"},
			MinPrice:   Keys{"min_price", "minPrice"},
			MaxPrice:   Keys{"max_price", "maxPrice"},
			MinCost:    Keys{"min_cost", "minNotional", "min_notional"},
			Maker:      Keys{"maker", "maker_fee", "makerFee"},
			Taker:      Keys{"taker", "taker_fee", "takerFee"},
		},
		Ticker: TickerKeys{
			Symbol:        Keys{"symbol", "market", "product_code"},
			Timestamp:     Keys{"timestamp", "time", "closeTime"},
			High:          Keys{"high", "highPrice", "high_24h"},
			Low:           Keys{"low", "lowPrice", "low_24h"},
			Bid:           Keys{"bid", "bidPrice", "best_bid"},
			BidVolume:     Keys{"bidVolume", "bidQty", "best_bid_size"},
			Ask:           Keys{"ask", "askPrice", "best_ask"},
			AskVolume:     Keys{"askVolume", "askQty", "best_ask_size"},
			VWAP:          Keys{"vwap", "weightedAvgPrice"},
			Open:          Keys{"open", "openPrice", "open_24h"},
			Close:         Keys{"close"},
			Last:          Keys{"last", "lastPrice", "ltp", "price"},
			PreviousClose: Keys{"previousClose", "prevClosePrice"},
			Change:        Keys{"change", "priceChange"},
			Percentage:    Keys{"percentage", "priceChangePercent"},
			BaseVolume:    Keys{"volume", "baseVolume", "volume_by_product"},
			QuoteVolume:   Keys{"quoteVolume", "quote_volume"},
		},
		OrderBook: OrderBookKeys{
			Bids:      Keys{"bids", "buy"},
			Asks:      Keys{"asks", "sell"},
			Timestamp: Keys{"timestamp", "time"},
			Nonce:     Keys{"nonce", "lastUpdateId", "seqNo"},
			Price:     Keys{"price", "ra", "rate"},
			Amount:    Keys{"amount", "size", "ca", "quantity", "qty"},
		},
		Trade: TradeKeys{
			ID:           Keys{"id", "trade_id", "tradeId"},
			Order:        Keys{"order", "order_id", "orderId"},
			Timestamp:    Keys{"timestamp", "time", "exec_date", "date"},
			Symbol:       Keys{"symbol", "market", "product_code"},
			Type:         Keys{"type", "order_type"},
			Side:         Keys{"side"},
			TakerOrMaker: Keys{"takerOrMaker", "liquidity"},
			Price:        Keys{"price", "rate"},
			Amount:       Keys{"amount", "size", "qty", "quantity"},
			Cost:         Keys{"cost", "quoteQty", "total"},
			Fee:          defaultFee,
		},
		Order: OrderKeys{
			ID:                 Keys{"id", "order_id", "orderId"},
			ClientOrderID:      Keys{"clientOrderId", "client_order_id", "client_id"},
			Timestamp:          Keys{"timestamp", "time", "created_at"},
			LastTradeTimestamp: Keys{"lastTradeTimestamp", "updateTime", "updated_at"},
			Symbol:             Keys{"symbol", "market", "product_code"},
			Type:               Keys{"type", "order_type"},
			TimeInForce:        Keys{"timeInForce", "time_in_force"},
			Side:               Keys{"side"},
			Status:             Keys{"status", "state"},
			Price:              Keys{"price", "limit_price"},
			TriggerPrice:       Keys{"triggerPrice", "stopPrice", "trigger_price", "stop_price"},
			Amount:             Keys{"amount", "size", "origQty", "quantity"},
			Filled:             Keys{"filled", "filled_amount", "executedQty", "executed_size"},
			Remaining:          Keys{"remaining", "remaining_amount", "outstanding_size"},
			Cost:               Keys{"cost", "cummulativeQuoteQty", "executed_value"},
			Average:            Keys{"average", "average_price", "avgPrice"},
			Trades:             Keys{"trades", "fills"},
			Fee:                defaultFee,
		},
		Balance: BalanceKeys{
			List:     Keys{"balances", "balance"},
			Currency: Keys{"currency", "asset", "currency_code"},
			Free:     Keys{"free", "available"},
			Used:     Keys{"used", "locked", "hold"},
			Total:    Keys{"total", "amount", "balance"},
		},
		Transaction: TransactionKeys{
			ID:        Keys{"id", "transaction_id"},
			TxID:      Keys{"txid", "txId", "tx_hash"},
			Timestamp: Keys{"timestamp", "time", "event_date", "insertTime"},
			Currency:  Keys{"currency", "coin", "asset", "currency_code"},
			Amount:    Keys{"amount"},
			Type:      Keys{"type"},
			Status:    Keys{"status", "state"},
			Address:   Keys{"address"},
			Tag:       Keys{"tag", "memo", "addressTag"},
			Network:   Keys{"network", "chain"},
			Fee:       defaultFee,
		},
		Ledger: LedgerKeys{
			ID:               Keys{"id", "historyId"},
			Timestamp:        Keys{"timestamp", "time", "date"},
			Account:          Keys{"account", "wallet"},
			Type:             Keys{"type"},
			Direction:        Keys{"direction"},
			Currency:         Keys{"currency", "asset"},
			Amount:           Keys{"amount", "value"},
			Before:           Keys{"before", "balance_before"},
			After:            Keys{"after", "balance", "balance_after"},
			Status:           Keys{"status"},
			ReferenceID:      Keys{"referenceId", "reference_id", "refid"},
			ReferenceAccount: Keys{"referenceAccount", "reference_account"},
			Fee:              defaultFee,
		},
	}
}
