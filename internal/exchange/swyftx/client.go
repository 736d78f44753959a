// Package swyftx describes the Swyftx REST API as an exchange.Adapter. Private
// calls carry a bearer token obtained by exchanging the API key at
// /auth/refresh/; every market is quoted in AUD.
package swyftx

import (
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
	ID             = "swyftx"
	DefaultBaseURL = "https://api.swyftx.com.au"

	rateLimit = 200 * time.Millisecond
	// priceGuard is the extra precision kept when inverting sell rates.
	priceGuard = 12
)

type Options struct {
	BaseURL string
	// SessionTTL bounds tokens that carry no expiry claim.
	SessionTTL time.Duration
}

func New(opts Options) exchange.Adapter {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	book := newAssetBook()
	session := auth.NewSession(opts.SessionTTL)
	return exchange.Adapter{
		ID:      ID,
		BaseURL: baseURL,
		Endpoints: map[exchange.Operation]exchange.Endpoint{
			exchange.OpLogin: {
				Method:   http.MethodPost,
				Path:     "/auth/refresh/",
				Encoding: auth.EncodeJSON,
			},
			exchange.OpMarkets: {
				Method:  http.MethodGet,
				Path:    "/markets/assets/",
				Reshape: book.markets,
			},
			exchange.OpTicker: {
				Method: http.MethodGet,
				Path:   "/markets/info/basic/{symbol}/",
			},
			exchange.OpBalance: {
				Method:  http.MethodGet,
				Path:    "/user/balance/",
				Private: true,
				Reshape: book.balances,
			},
			exchange.OpCreateOrder: {
				Method:   http.MethodPost,
				Path:     "/orders/",
				Private:  true,
				Encoding: auth.EncodeJSON,
				Params:   orderParams,
				Reshape:  book.order,
			},
			exchange.OpCancelOrder: {
				Method:  http.MethodDelete,
				Path:    "/orders/{id}/",
				Private: true,
				Reshape: func(any) any { return nil },
			},
			exchange.OpFetchOrder: {
				Method:  http.MethodGet,
				Path:    "/orders/byId/{id}",
				Private: true,
				Reshape: book.order,
			},
			exchange.OpOpenOrders: {
				Method:  http.MethodGet,
				Path:    "/orders/",
				Private: true,
				Reshape: book.openOrders,
			},
		},
		Signer:           auth.Bearer{Session: session},
		Session:          session,
		TokenKeys:        parse.Keys{"accessToken"},
		AutoAuthenticate: true,
		Parse:            parseConfig(),
		Errors:           errorTable,
		RateLimit:        rateLimit,
	}
}

func parseConfig() parse.Config {
	schema := parse.DefaultSchema()
	schema.Ticker.Symbol = parse.Keys{"code"}
	schema.Ticker.Ask = parse.Keys{"buy"}
	schema.Ticker.Bid = parse.Keys{"sell"}
	schema.Ticker.QuoteVolume = parse.Keys{"volume24H"}

	schema.Balance.Free = parse.Keys{"availableBalance"}
	schema.Balance.Total = parse.Keys{"availableBalance"}

	schema.Order.ID = parse.Keys{"orderUuid", "uuid"}
	schema.Order.Timestamp = parse.Keys{"created_time"}
	schema.Order.LastTradeTimestamp = parse.Keys{"updated_time"}
	schema.Order.Type = parse.Keys{"type"}
	schema.Order.Price = parse.Keys{"price"}
	schema.Order.Amount = parse.Keys{"amount"}
	schema.Order.Cost = nil
	schema.Order.Fee = parse.FeeKeys{
		Cost:     parse.Keys{"feeAmount"},
		Currency: parse.Keys{"feeCurrency"},
	}
	return parse.Config{
		Schema:        schema,
		Precision:     parse.TickSize,
		OrderStatuses: orderStatuses,
		Fees: core.FeeSchedule{
			Maker: precise.MustParse("0.006"),
			Taker: precise.MustParse("0.006"),
		},
	}
}

// orderParams builds the asset-pair order body. Limit buys are sized in AUD
// at the trigger price; limit sells carry the trigger as base per AUD.
func orderParams(a exchange.Args) (map[string]any, error) {
	req := a.Order
	code, ok := orderCode(req.Type, req.Side)
	if !ok || a.Market == nil {
		return nil, errOrderKind
	}
	base, quote := a.Market.ID, audCode
	params := map[string]any{
		"primary":       quote,
		"secondary":     base,
		"quantity":      req.Amount,
		"assetQuantity": base,
		"orderType":     code,
	}
	if req.Type != core.OrderLimit {
		return params, nil
	}
	switch req.Side {
	case core.Buy:
		params["quantity"] = req.Amount.Mul(req.Price)
		params["assetQuantity"] = quote
		params["trigger"] = req.Price
	case core.Sell:
		inv, err := precise.FromInt(1).DivGuard(req.Price, priceGuard)
		if err != nil {
			return nil, errOrderKind
		}
		params["trigger"] = inv
	}
	return params, nil
}
