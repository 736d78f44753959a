package swyftx

import (
	"sync"

	"exchange-core/internal/core"
	"exchange-core/internal/parse"
	"exchange-core/internal/precise"
)

// audID is the asset id of the only quote currency.
const (
	audID   = "1"
	audCode = "AUD"
)

var orderStatuses = parse.StatusTable[core.OrderStatus]{
	"1":  core.OrderOpen,
	"2":  core.OrderCanceled,
	"3":  core.OrderOpen,
	"4":  core.OrderClosed,
	"5":  core.OrderOpen,
	"6":  core.OrderCanceled,
	"7":  core.OrderRejected,
	"8":  core.OrderCanceled,
	"9":  core.OrderRejected,
	"10": core.OrderCanceled,
}

type orderKind struct {
	typ  core.OrderType
	side core.Side
}

var orderKinds = map[string]orderKind{
	"1": {core.OrderLimit, core.Buy},
	"2": {core.OrderLimit, core.Sell},
	"3": {core.OrderMarket, core.Buy},
	"4": {core.OrderMarket, core.Sell},
}

// orderCode is the reverse of orderKinds.
func orderCode(typ core.OrderType, side core.Side) (string, bool) {
	for code, k := range orderKinds {
		if k.typ == typ && k.side == side {
			return code, true
		}
	}
	return "", false
}

// assetBook maps Swyftx's numeric asset ids to currency codes. It is filled
// from the markets listing and read when balances and orders come back keyed
// by id.
type assetBook struct {
	mu    sync.RWMutex
	codes map[string]string
}

func newAssetBook() *assetBook {
	return &assetBook{codes: map[string]string{audID: audCode}}
}

// code returns the currency code of id, or id itself when unknown.
func (b *assetBook) code(id string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if c, ok := b.codes[id]; ok {
		return c
	}
	return id
}

func (b *assetBook) replace(codes map[string]string) {
	codes[audID] = audCode
	b.mu.Lock()
	b.codes = codes
	b.mu.Unlock()
}

// markets turns the asset listing into AUD markets keyed by base code and
// records every asset id on the way.
func (b *assetBook) markets(raw any) any {
	codes := map[string]string{}
	var out []any
	for _, item := range parse.AsList(raw) {
		a, ok := parse.AsDict(item)
		if !ok {
			continue
		}
		id, code := parse.SafeString(a, "id", ""), parse.SafeString(a, "code", "")
		if id == "" || code == "" {
			continue
		}
		codes[id] = code
		if id == audID {
			continue
		}
		row := parse.Dict{
			"id":               code,
			"base":             code,
			"quote":            audCode,
			"amount_precision": a["minimum_order_increment"],
			"min_amount":       a["minimum_order"],
			"active":           parse.SafeBool(a, "tradable", true),
		}
		if scale := parse.SafeInteger(a, "price_scale", -1); scale >= 0 {
			row["price_precision"] = precise.Pow10(-int32(scale)).String()
		}
		out = append(out, row)
	}
	b.replace(codes)
	return out
}

func (b *assetBook) balances(raw any) any {
	for _, item := range parse.AsList(raw) {
		if row, ok := parse.AsDict(item); ok {
			row["currency"] = b.code(parse.SafeString(row, "assetId", ""))
		}
	}
	return raw
}

// order flattens a create-order reply and rewrites one order row into the
// shape the pipeline reads: side and type from order_type, the market from
// the secondary asset, and sell prices inverted back to quote per base.
func (b *assetBook) order(raw any) any {
	d, ok := parse.AsDict(raw)
	if !ok {
		return raw
	}
	if nested, ok := parse.SafeDict(d, "order"); ok {
		if id := parse.SafeString(d, "orderUuid", ""); id != "" {
			nested["orderUuid"] = id
		}
		d = nested
	}
	kind, known := orderKinds[parse.SafeString(d, "order_type", "")]
	if known {
		d["type"], d["side"] = string(kind.typ), string(kind.side)
	}
	if id := parse.SafeString(d, "secondary_asset", ""); id != "" {
		d["market"] = b.code(id)
	}
	if id := parse.SafeString(d, "feeAsset", ""); id != "" {
		d["feeCurrency"] = b.code(id)
	}
	rate, err := parse.SafeDecimal2(d, "trigger", "rate", precise.Unknown)
	if err != nil || !rate.IsPositive() || !known {
		return d
	}
	if kind.side == core.Sell {
		if inv, err := precise.FromInt(1).DivGuard(rate, priceGuard); err == nil {
			d["price"] = inv.Decimal().String()
		}
	} else {
		d["price"] = rate.String()
	}
	return d
}

func (b *assetBook) orders(raw any) any {
	for _, item := range rowsOf(raw) {
		b.order(item)
	}
	return raw
}

// openOrders keeps the rows whose status code means the order still rests.
func (b *assetBook) openOrders(raw any) any {
	var out []any
	for _, item := range rowsOf(raw) {
		row, ok := b.order(item).(parse.Dict)
		if !ok {
			continue
		}
		if orderStatuses.Map(parse.SafeString(row, "status", "")) == core.OrderOpen {
			out = append(out, row)
		}
	}
	return out
}

func rowsOf(raw any) []any {
	if list := parse.AsList(raw); list != nil {
		return list
	}
	d, _ := parse.AsDict(raw)
	return parse.SafeList(d, "orders")
}
