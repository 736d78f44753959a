package parse

import (
	"strings"

	"exchange-core/internal/core"
)

// StatusTable maps venue-native strings onto a canonical enum. Lookup tries the
// raw value, then its lower-cased form. Values missing from the table pass
// through unchanged.
type StatusTable[T ~string] map[string]T

func (t StatusTable[T]) Map(raw string) T {
	if raw == "" {
		return T("")
	}
	if v, ok := t[raw]; ok {
		return v
	}
	if v, ok := t[strings.ToLower(raw)]; ok {
		return v
	}
	return T(raw)
}

// Merge returns a copy of t overlaid with extra.
func (t StatusTable[T]) Merge(extra StatusTable[T]) StatusTable[T] {
	out := make(StatusTable[T], len(t)+len(extra))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

var DefaultOrderStatuses = StatusTable[core.OrderStatus]{
	"new":              core.OrderOpen,
	"open":             core.OrderOpen,
	"active":           core.OrderOpen,
	"partially_filled": core.OrderOpen,
	"partially-filled": core.OrderOpen,
	"partial":          core.OrderOpen,
	"filled":           core.OrderClosed,
	"closed":           core.OrderClosed,
	"done":             core.OrderClosed,
	"completed":        core.OrderClosed,
	"canceled":         core.OrderCanceled,
	"cancelled":        core.OrderCanceled,
	"expired":          core.OrderCanceled,
	"rejected":         core.OrderRejected,
}

var DefaultTransactionStatuses = StatusTable[core.TransactionStatus]{
	"pending":    core.TransactionPending,
	"processing": core.TransactionPending,
	"ok":         core.TransactionOK,
	"success":    core.TransactionOK,
	"completed":  core.TransactionOK,
	"complete":   core.TransactionOK,
	"done":       core.TransactionOK,
	"failed":     core.TransactionFailed,
	"fail":       core.TransactionFailed,
	"canceled":   core.TransactionFailed,
	"cancelled":  core.TransactionFailed,
	"rejected":   core.TransactionFailed,
}

var DefaultLedgerTypes = StatusTable[core.LedgerType]{
	"deposit":    core.LedgerTransaction,
	"withdrawal": core.LedgerTransaction,
	"withdraw":   core.LedgerTransaction,
	"trade":      core.LedgerTrade,
	"match":      core.LedgerTrade,
	"fee":        core.LedgerFee,
	"commission": core.LedgerFee,
	"transfer":   core.LedgerTransfer,
}

var DefaultTransactionTypes = StatusTable[core.TransactionType]{
	"deposit":    core.Deposit,
	"withdrawal": core.Withdrawal,
	"withdraw":   core.Withdrawal,
}

var DefaultSides = StatusTable[core.Side]{
	"buy":  core.Buy,
	"sell": core.Sell,
	"bid":  core.Buy,
	"ask":  core.Sell,
}

var DefaultOrderTypes = StatusTable[core.OrderType]{
	"limit":           core.OrderLimit,
	"market":          core.OrderMarket,
	"stop-limit":      core.OrderStopLimit,
	"stop_limit":      core.OrderStopLimit,
	"stop_loss_limit": core.OrderStopLimit,
	"stop-market":     core.OrderStopMarket,
	"stop_market":     core.OrderStopMarket,
	"stop_loss":       core.OrderStopMarket,
}

func liquidityOf(raw string) core.Liquidity {
	switch strings.ToLower(raw) {
	case "taker", "t":
		return core.Taker
	case "maker", "m":
		return core.Maker
	}
	return core.LiquidityUnknown
}
