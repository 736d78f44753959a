package parse

import (
	"fmt"
	"sort"

	"exchange-core/internal/core"
)

// Balances parses an account balance response. Rows may be an array of
// per-asset objects or an object keyed by currency code. Each asset is
// completed so that total == free + used whenever the three are known.
func (p *Pipeline) Balances(raw any) (core.Balances, error) {
	k := p.cfg.Schema.Balance
	out := core.Balances{Assets: make(map[string]core.Balance)}
	if d, ok := AsDict(raw); ok {
		out.Timestamp = SafeTimestamp(d, "timestamp", "updateTime", "time")
		out.Info = d
	}

	type row struct {
		code string
		raw  Dict
	}
	var items []row
	if list := rows(raw, k.List); len(list) > 0 {
		for _, d := range list {
			items = append(items, row{code: SafeStringN(d, k.Currency, ""), raw: d})
		}
	} else if d, ok := AsDict(raw); ok {
		codes := make([]string, 0, len(d))
		for code := range d {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			if nested, ok := AsDict(d[code]); ok {
				items = append(items, row{code: code, raw: nested})
			}
		}
	}

	for _, item := range items {
		if item.code == "" {
			continue
		}
		r := &reader{raw: item.raw}
		b := core.Balance{Free: r.dec(k.Free), Used: r.dec(k.Used), Total: r.dec(k.Total)}
		if r.err != nil {
			return core.Balances{}, fmt.Errorf("balance %q: %w", item.code, r.err)
		}
		out.Assets[p.cfg.Symbols.CurrencyCode(item.code)] = CompleteBalance(b)
	}
	return out, nil
}

// CompleteBalance recomputes whichever one of free, used and total is missing.
// When all three are reported and disagree, total is rebuilt from free + used.
func CompleteBalance(b core.Balance) core.Balance {
	free, used, total := b.Free.Known(), b.Used.Known(), b.Total.Known()
	switch {
	case free && used:
		b.Total = b.Free.Add(b.Used)
	case free && total:
		b.Used = b.Total.Sub(b.Free)
	case used && total:
		b.Free = b.Total.Sub(b.Used)
	}
	return b
}

// Transaction parses a deposit or withdrawal. typeHint is used when the
// payload does not say which one it is; otherwise a negative amount means a
// withdrawal.
func (p *Pipeline) Transaction(raw Dict, typeHint core.TransactionType) (core.Transaction, error) {
	k := p.cfg.Schema.Transaction
	r := &reader{raw: raw}
	tx := core.Transaction{
		ID:        r.str(k.ID),
		TxID:      r.str(k.TxID),
		Timestamp: r.ts(k.Timestamp),
		Currency:  p.cfg.Symbols.CurrencyCode(r.str(k.Currency)),
		Amount:    r.dec(k.Amount),
		Type:      p.cfg.TransactionTypes.Map(r.str(k.Type)),
		Status:    p.cfg.TransactionStatuses.Map(r.str(k.Status)),
		Address:   r.str(k.Address),
		Tag:       r.str(k.Tag),
		Network:   r.str(k.Network),
		Info:      raw,
	}
	tx.Fee = p.fee(r, k.Fee)
	if r.err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %q: %w", tx.ID, r.err)
	}
	if tx.Type != core.Deposit && tx.Type != core.Withdrawal {
		switch {
		case typeHint != "":
			tx.Type = typeHint
		case tx.Amount.IsNegative():
			tx.Type = core.Withdrawal
		case tx.Amount.IsPositive():
			tx.Type = core.Deposit
		}
	}
	switch tx.Type {
	case core.Deposit:
		tx.Direction = core.In
	case core.Withdrawal:
		tx.Direction = core.Out
	}
	tx.Amount = tx.Amount.Abs()
	return tx, nil
}

func (p *Pipeline) Transactions(raw any, typeHint core.TransactionType) ([]core.Transaction, error) {
	items := rows(raw, Keys{"transactions", "data", "items", "history"})
	out := make([]core.Transaction, 0, len(items))
	for _, item := range items {
		tx, err := p.Transaction(item, typeHint)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// LedgerEntry parses one account-history row. Direction comes from the sign of
// the raw amount; a reported direction is used only when the amount is zero or
// the venue reports unsigned magnitudes. Before and after derive from each
// other.
func (p *Pipeline) LedgerEntry(raw Dict) (core.LedgerEntry, error) {
	k := p.cfg.Schema.Ledger
	r := &reader{raw: raw}
	e := core.LedgerEntry{
		ID:               r.str(k.ID),
		Timestamp:        r.ts(k.Timestamp),
		Account:          r.str(k.Account),
		Type:             p.cfg.LedgerTypes.Map(r.str(k.Type)),
		Currency:         p.cfg.Symbols.CurrencyCode(r.str(k.Currency)),
		Amount:           r.dec(k.Amount),
		Before:           r.dec(k.Before),
		After:            r.dec(k.After),
		Status:           p.cfg.TransactionStatuses.Map(r.str(k.Status)),
		ReferenceID:      r.str(k.ReferenceID),
		ReferenceAccount: r.str(k.ReferenceAccount),
		Info:             raw,
	}
	e.Fee = p.fee(r, k.Fee)
	if r.err != nil {
		return core.LedgerEntry{}, fmt.Errorf("ledger entry %q: %w", e.ID, r.err)
	}
	reported := directionOf(r.str(k.Direction))
	switch {
	case k.Unsigned && reported != "":
		e.Direction = reported
	case e.Amount.IsNegative():
		e.Direction = core.Out
	case e.Amount.IsPositive():
		e.Direction = core.In
	default:
		e.Direction = reported
	}
	e.Amount = e.Amount.Abs()

	signed := e.Amount
	if e.Direction == core.Out {
		signed = signed.Neg()
	}
	switch {
	case !e.After.Known() && e.Before.Known():
		e.After = e.Before.Add(signed)
	case !e.Before.Known() && e.After.Known():
		e.Before = e.After.Sub(signed)
	}
	return e, nil
}

func directionOf(raw string) core.Direction {
	switch raw {
	case "in", "IN", "credit", "deposit":
		return core.In
	case "out", "OUT", "debit", "withdrawal":
		return core.Out
	}
	return ""
}

func (p *Pipeline) Ledger(raw any) ([]core.LedgerEntry, error) {
	items := rows(raw, Keys{"ledger", "data", "items", "history"})
	out := make([]core.LedgerEntry, 0, len(items))
	for _, item := range items {
		e, err := p.LedgerEntry(item)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
