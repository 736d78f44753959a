package zonda

import (
	"sort"

	"exchange-core/internal/core"
	"exchange-core/internal/parse"
)

var fiat = map[string]bool{"PLN": true, "EUR": true, "USD": true, "GBP": true}

var ledgerTypes = parse.StatusTable[core.LedgerType]{
	"ADD_FUNDS":                          core.LedgerTransaction,
	"BITCOIN_GOLD_FORK":                  core.LedgerTransaction,
	"CREATE_BALANCE":                     core.LedgerTransaction,
	"FUNDS_MIGRATION":                    core.LedgerTransaction,
	"WITHDRAWAL_LOCK_FUNDS":              core.LedgerTransaction,
	"WITHDRAWAL_SUBTRACT_FUNDS":          core.LedgerTransaction,
	"WITHDRAWAL_UNLOCK_FUNDS":            core.LedgerTransaction,
	"TRANSACTION_COMMISSION_OUTCOME":     core.LedgerFee,
	"TRANSACTION_COMMISSION_RETURN":      core.LedgerFee,
	"TRANSACTION_OFFER_ABORTED_RETURN":   core.LedgerTrade,
	"TRANSACTION_OFFER_COMPLETED_RETURN": core.LedgerTrade,
	"TRANSACTION_POST_INCOME":            core.LedgerTrade,
	"TRANSACTION_POST_OUTCOME":           core.LedgerTrade,
	"TRANSACTION_PRE_LOCKING":            core.LedgerTrade,
}

// tickerMarkets turns the ticker listing, an object keyed by market code, into
// a sorted list of flat market rows.
func tickerMarkets(raw any) any {
	d, ok := parse.AsDict(raw)
	if !ok {
		return raw
	}
	items, ok := parse.SafeDict(d, "items")
	if !ok {
		return raw
	}
	codes := make([]string, 0, len(items))
	for code := range items {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	out := make([]any, 0, len(codes))
	for _, code := range codes {
		item, _ := parse.AsDict(items[code])
		m, ok := parse.SafeDict(item, "market")
		if !ok {
			continue
		}
		first, _ := parse.SafeDict(m, "first")
		second, _ := parse.SafeDict(m, "second")
		row := parse.Dict{
			"id":               parse.SafeString(m, "code", code),
			"base":             parse.SafeString(first, "currency", ""),
			"quote":            parse.SafeString(second, "currency", ""),
			"amount_precision": m["amountPrecision"],
			"price_precision":  m["pricePrecision"],
			"min_amount":       first["minOffer"],
			"min_cost":         second["minOffer"],
		}
		if fiat[parse.SafeString(second, "currency", "")] {
			row["maker"] = "0.003"
			row["taker"] = "0.0043"
		}
		out = append(out, row)
	}
	return out
}

// offerStatus replaces the envelope status ("Ok") with the offer's own state.
func offerStatus(raw any) any {
	d, ok := parse.AsDict(raw)
	if !ok {
		return raw
	}
	if parse.SafeBool(d, "completed", false) {
		d["status"] = "closed"
	} else {
		d["status"] = "open"
	}
	return d
}

func openOffers(raw any) any {
	d, ok := parse.AsDict(raw)
	if !ok {
		return raw
	}
	for _, item := range parse.SafeList(d, "items") {
		if offer, ok := parse.AsDict(item); ok {
			offer["status"] = "open"
		}
	}
	return d
}

func ownTrades(raw any) any {
	d, ok := parse.AsDict(raw)
	if !ok {
		return raw
	}
	for _, item := range parse.SafeList(d, "items") {
		t, ok := parse.AsDict(item)
		if !ok {
			continue
		}
		if parse.SafeBool(t, "wasTaker", false) {
			t["takerOrMaker"] = "taker"
		} else {
			t["takerOrMaker"] = "maker"
		}
	}
	return d
}

// flattenHistory lifts the nested balance and funds snapshots of each history
// row onto the row: currency, signed amount, balance before and after.
func flattenHistory(raw any) any {
	d, ok := parse.AsDict(raw)
	if !ok {
		return raw
	}
	for _, item := range parse.SafeList(d, "items") {
		row, ok := parse.AsDict(item)
		if !ok {
			continue
		}
		if balance, ok := parse.SafeDict(row, "balance"); ok {
			row["currency"] = balance["currency"]
		}
		if change, ok := parse.SafeDict(row, "change"); ok {
			row["amount"] = change["total"]
		}
		if before, ok := parse.SafeDict(row, "fundsBefore"); ok {
			row["before"] = before["total"]
		}
		if after, ok := parse.SafeDict(row, "fundsAfter"); ok {
			row["after"] = after["total"]
		}
	}
	return d
}
