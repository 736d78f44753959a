// Package bitflyer describes the bitFlyer Lightning REST API as an
// exchange.Adapter. Only spot products are exposed.
package bitflyer

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"
	"time"

	"exchange-core/internal/core"
	"exchange-core/internal/exchange"
	"exchange-core/internal/exchange/auth"
	"exchange-core/internal/parse"
	"exchange-core/internal/precise"
)

const (
	ID             = "bitflyer"
	DefaultBaseURL = "https://api.bitflyer.com"

	rateLimit = time.Second
)

type Options struct {
	BaseURL string
}

func New(opts Options) exchange.Adapter {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return exchange.Adapter{
		ID:      ID,
		BaseURL: baseURL,
		Endpoints: map[exchange.Operation]exchange.Endpoint{
			exchange.OpMarkets: {
				Method:  http.MethodGet,
				Path:    "/v1/getmarkets",
				Reshape: spotMarkets,
			},
			exchange.OpTicker: {
				Method: http.MethodGet,
				Path:   "/v1/getticker",
				Params: productCode,
			},
			exchange.OpOrderBook: {
				Method: http.MethodGet,
				Path:   "/v1/getboard",
				Params: productCode,
			},
			exchange.OpTrades: {
				Method: http.MethodGet,
				Path:   "/v1/getexecutions",
				Params: pagedProductCode,
			},
			exchange.OpBalance: {
				Method:  http.MethodGet,
				Path:    "/v1/me/getbalance",
				Private: true,
			},
			exchange.OpCreateOrder: {
				Method:   http.MethodPost,
				Path:     "/v1/me/sendchildorder",
				Private:  true,
				Encoding: auth.EncodeJSON,
				Params:   orderParams,
			},
			exchange.OpCancelOrder: {
				Method:   http.MethodPost,
				Path:     "/v1/me/cancelchildorder",
				Private:  true,
				Encoding: auth.EncodeJSON,
				Params:   acceptanceID,
			},
			exchange.OpFetchOrder: {
				Method:  http.MethodGet,
				Path:    "/v1/me/getchildorders",
				Private: true,
				Params:  acceptanceID,
			},
			exchange.OpOpenOrders: {
				Method:  http.MethodGet,
				Path:    "/v1/me/getchildorders",
				Private: true,
				Static:  map[string]any{"child_order_state": "ACTIVE"},
				Params:  productCode,
			},
			exchange.OpMyTrades: {
				Method:  http.MethodGet,
				Path:    "/v1/me/getexecutions",
				Private: true,
				Params:  pagedProductCode,
			},
			exchange.OpDeposits: {
				Method:  http.MethodGet,
				Path:    "/v1/me/getcoinins",
				Private: true,
				Params:  countParam,
			},
			exchange.OpWithdrawals: {
				Method:  http.MethodGet,
				Path:    "/v1/me/getcoinouts",
				Private: true,
				Params:  countParam,
			},
			exchange.OpLedger: {
				Method:  http.MethodGet,
				Path:    "/v1/me/getbalancehistory",
				Private: true,
				Params: func(a exchange.Args) (map[string]any, error) {
					if a.Code == "" {
						return nil, errCodeRequired
					}
					params := a.Paging("", "count")
					params["currency_code"] = a.Code
					return params, nil
				},
			},
		},
		Signer: auth.ConcatHMAC{
			Hash:            sha256.New,
			KeyHeader:       "ACCESS-KEY",
			NonceHeader:     "ACCESS-TIMESTAMP",
			SignatureHeader: "ACCESS-SIGN",
		},
		Parse:     parseConfig(),
		Errors:    errorTable,
		Failure:   detectFailure,
		RateLimit: rateLimit,
	}
}

var orderStatuses = parse.StatusTable[core.OrderStatus]{
	"ACTIVE":    core.OrderOpen,
	"COMPLETED": core.OrderClosed,
	"CANCELED":  core.OrderCanceled,
	"EXPIRED":   core.OrderCanceled,
	"REJECTED":  core.OrderCanceled,
}

var ledgerTypes = parse.DefaultLedgerTypes.Merge(parse.StatusTable[core.LedgerType]{
	"BUY":         core.LedgerTrade,
	"SELL":        core.LedgerTrade,
	"DEPOSIT":     core.LedgerTransaction,
	"WITHDRAW":    core.LedgerTransaction,
	"FEE":         core.LedgerFee,
	"TRANSFER":    core.LedgerTransfer,
	"COIN_IN":     core.LedgerTransaction,
	"COIN_OUT":    core.LedgerTransaction,
	"FUNDING":     core.LedgerTransfer,
	"CANCEL_COIN": core.LedgerTransaction,
})

func parseConfig() parse.Config {
	schema := parse.DefaultSchema()
	schema.Market.ID = parse.Keys{"product_code"}
	schema.Ticker.BaseVolume = parse.Keys{"volume_by_product"}
	schema.Trade.Order = parse.Keys{"child_order_acceptance_id", "child_order_id"}
	schema.Order.ID = parse.Keys{"child_order_acceptance_id", "id"}
	schema.Order.Type = parse.Keys{"child_order_type"}
	schema.Order.Status = parse.Keys{"child_order_state"}
	schema.Order.Timestamp = parse.Keys{"child_order_date"}
	schema.Order.Fee.Cost = parse.Keys{"total_commission"}
	schema.Transaction.ID = parse.Keys{"id", "order_id"}
	schema.Transaction.Fee.Nested = nil
	schema.Transaction.Fee.Cost = parse.Keys{"fee"}
	schema.Ledger.Type = parse.Keys{"trade_type"}
	schema.Ledger.Currency = parse.Keys{"currency_code"}
	return parse.Config{
		Schema:              schema,
		Symbols:             parse.SymbolResolver{Separator: "_"},
		OrderStatuses:       parse.DefaultOrderStatuses.Merge(orderStatuses),
		TransactionStatuses: parse.DefaultTransactionStatuses,
		LedgerTypes:         ledgerTypes,
		Fees: core.FeeSchedule{
			Maker: precise.MustParse("0.002"),
			Taker: precise.MustParse("0.002"),
		},
	}
}

func productCode(a exchange.Args) (map[string]any, error) {
	if id := a.MarketID(); id != "" {
		return map[string]any{"product_code": id}, nil
	}
	return nil, nil
}

func pagedProductCode(a exchange.Args) (map[string]any, error) {
	params := a.Paging("", "count")
	if id := a.MarketID(); id != "" {
		params["product_code"] = id
	}
	return params, nil
}

func countParam(a exchange.Args) (map[string]any, error) {
	return a.Paging("", "count"), nil
}

func acceptanceID(a exchange.Args) (map[string]any, error) {
	if a.MarketID() == "" {
		return nil, errSymbolRequired
	}
	return map[string]any{
		"product_code":              a.MarketID(),
		"child_order_acceptance_id": a.OrderID,
	}, nil
}

func orderParams(a exchange.Args) (map[string]any, error) {
	req := a.Order
	params := map[string]any{
		"product_code": a.MarketID(),
		"side":         strings.ToUpper(string(req.Side)),
		"size":         req.Amount,
	}
	switch req.Type {
	case core.OrderLimit:
		params["child_order_type"] = "LIMIT"
		params["price"] = req.Price
	case core.OrderMarket:
		params["child_order_type"] = "MARKET"
	default:
		return nil, fmt.Errorf("%w: bitflyer does not accept %q child orders", core.ErrInvalidOrder, req.Type)
	}
	if tif := strings.ToUpper(req.TimeInForce); tif != "" {
		params["time_in_force"] = tif
	}
	return params, nil
}
