package core

import (
	"time"

	"exchange-core/internal/precise"
)

type Side string

type OrderType string

type OrderStatus string

type Liquidity string

type Direction string

type TransactionType string

type TransactionStatus string

type LedgerType string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

const (
	OrderLimit      OrderType = "limit"
	OrderMarket     OrderType = "market"
	OrderStopLimit  OrderType = "stop-limit"
	OrderStopMarket OrderType = "stop-market"
)

// Order states. Partially filled orders are reported as OrderOpen.
const (
	OrderOpen     OrderStatus = "open"
	OrderClosed   OrderStatus = "closed"
	OrderCanceled OrderStatus = "canceled"
	OrderRejected OrderStatus = "rejected"
)

const (
	LiquidityUnknown Liquidity = ""
	Taker            Liquidity = "taker"
	Maker            Liquidity = "maker"
)

func (l Liquidity) String() string {
	if l == LiquidityUnknown {
		return "unknown"
	}
	return string(l)
}

const (
	In  Direction = "in"
	Out Direction = "out"
)

const (
	Deposit    TransactionType = "deposit"
	Withdrawal TransactionType = "withdrawal"
)

const (
	TransactionPending TransactionStatus = "pending"
	TransactionOK      TransactionStatus = "ok"
	TransactionFailed  TransactionStatus = "failed"
)

const (
	LedgerTransaction LedgerType = "transaction"
	LedgerTrade       LedgerType = "trade"
	LedgerFee         LedgerType = "fee"
	LedgerTransfer    LedgerType = "transfer"
)

// Fee is what the venue charged for a trade, order or transfer.
type Fee struct {
	Currency string
	Cost     precise.Decimal
	Rate     precise.Decimal
}

type Ticker struct {
	Symbol        string
	Timestamp     time.Time
	High          precise.Decimal
	Low           precise.Decimal
	Bid           precise.Decimal
	BidVolume     precise.Decimal
	Ask           precise.Decimal
	AskVolume     precise.Decimal
	VWAP          precise.Decimal
	Open          precise.Decimal
	Close         precise.Decimal
	Last          precise.Decimal
	PreviousClose precise.Decimal
	Change        precise.Decimal
	Percentage    precise.Decimal
	Average       precise.Decimal
	BaseVolume    precise.Decimal
	QuoteVolume   precise.Decimal
	Info          map[string]any
}

type PriceLevel struct {
	Price  precise.Decimal
	Amount precise.Decimal
}

// OrderBook holds bids sorted by descending price and asks by ascending price.
type OrderBook struct {
	Symbol    string
	Timestamp time.Time
	Nonce     int64
	Bids      []PriceLevel
	Asks      []PriceLevel
}

type Trade struct {
	ID           string
	Order        string
	Timestamp    time.Time
	Symbol       string
	Type         OrderType
	Side         Side
	TakerOrMaker Liquidity
	Price        precise.Decimal
	Amount       precise.Decimal
	Cost         precise.Decimal
	Fee          Fee
	// CostReconciled is set when the reported cost disagreed with price × amount
	// by more than one price tick per unit and was replaced.
	CostReconciled bool
	Info           map[string]any
}

type Order struct {
	ID                 string
	ClientOrderID      string
	Timestamp          time.Time
	LastTradeTimestamp time.Time
	Symbol             string
	Type               OrderType
	TimeInForce        string
	Side               Side
	Status             OrderStatus
	Price              precise.Decimal
	TriggerPrice       precise.Decimal
	Amount             precise.Decimal
	Filled             precise.Decimal
	Remaining          precise.Decimal
	Cost               precise.Decimal
	Average            precise.Decimal
	Fee                Fee
	Trades             []Trade
	Info               map[string]any
}

type Balance struct {
	Free  precise.Decimal
	Used  precise.Decimal
	Total precise.Decimal
}

type Balances struct {
	Timestamp time.Time
	Assets    map[string]Balance
	Info      map[string]any
}

// Get returns the balance of code, all Unknown when the asset was not reported.
func (b Balances) Get(code string) Balance {
	return b.Assets[code]
}

type Transaction struct {
	ID        string
	TxID      string
	Timestamp time.Time
	Currency  string
	Amount    precise.Decimal
	Direction Direction
	Type      TransactionType
	Status    TransactionStatus
	Address   string
	Tag       string
	Network   string
	Fee       Fee
	Info      map[string]any
}

type LedgerEntry struct {
	ID               string
	Timestamp        time.Time
	Account          string
	Direction        Direction
	Type             LedgerType
	Currency         string
	Amount           precise.Decimal
	Before           precise.Decimal
	After            precise.Decimal
	Status           TransactionStatus
	ReferenceID      string
	ReferenceAccount string
	Fee              Fee
	Info             map[string]any
}

// OrderRequest is the caller's intent for CreateOrder.
type OrderRequest struct {
	Symbol        string
	Type          OrderType
	Side          Side
	Amount        precise.Decimal
	Price         precise.Decimal
	TriggerPrice  precise.Decimal
	ClientOrderID string
	TimeInForce   string
}
