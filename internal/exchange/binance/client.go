// Package binance describes the Binance spot REST API as an exchange.Adapter.
package binance

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"exchange-core/internal/core"
	"exchange-core/internal/exchange"
	"exchange-core/internal/exchange/auth"
	"exchange-core/internal/parse"
)

const (
	ID             = "binance"
	DefaultBaseURL = "https://api.binance.com"

	defaultRecvWindowMs = 5000
	rateLimit           = 50 * time.Millisecond
)

type Options struct {
	BaseURL      string
	RecvWindowMs int64
	// ClientOrderPrefix is prepended to generated newClientOrderId values.
	ClientOrderPrefix string
}

func New(opts Options) exchange.Adapter {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	recvWindow := opts.RecvWindowMs
	if recvWindow <= 0 {
		recvWindow = defaultRecvWindowMs
	}
	return exchange.Adapter{
		ID:      ID,
		BaseURL: baseURL,
		Endpoints: map[exchange.Operation]exchange.Endpoint{
			exchange.OpMarkets: {
				Method:  http.MethodGet,
				Path:    "/api/v3/exchangeInfo",
				Reshape: flattenSymbols,
			},
			exchange.OpTicker: {
				Method: http.MethodGet,
				Path:   "/api/v3/ticker/24hr",
				Params: symbolParam,
			},
			exchange.OpOrderBook: {
				Method: http.MethodGet,
				Path:   "/api/v3/depth",
				Params: func(a exchange.Args) (map[string]any, error) {
					params := a.Paging("", "limit")
					params["symbol"] = a.MarketID()
					return params, nil
				},
			},
			exchange.OpTrades: {
				Method: http.MethodGet,
				Path:   "/api/v3/trades",
				Params: func(a exchange.Args) (map[string]any, error) {
					params := a.Paging("", "limit")
					params["symbol"] = a.MarketID()
					return params, nil
				},
				Reshape: eachRow(publicTradeSide),
			},
			exchange.OpBalance: {
				Method:  http.MethodGet,
				Path:    "/api/v3/account",
				Private: true,
			},
			exchange.OpCreateOrder: {
				Method:  http.MethodPost,
				Path:    "/api/v3/order",
				Private: true,
				Params:  orderParams,
			},
			exchange.OpCancelOrder: {
				Method:  http.MethodDelete,
				Path:    "/api/v3/order",
				Private: true,
				Params:  orderIDParams,
			},
			exchange.OpFetchOrder: {
				Method:  http.MethodGet,
				Path:    "/api/v3/order",
				Private: true,
				Params:  orderIDParams,
			},
			exchange.OpOpenOrders: {
				Method:  http.MethodGet,
				Path:    "/api/v3/openOrders",
				Private: true,
				Params: func(a exchange.Args) (map[string]any, error) {
					if id := a.MarketID(); id != "" {
						return map[string]any{"symbol": id}, nil
					}
					return nil, nil
				},
			},
			exchange.OpMyTrades: {
				Method:  http.MethodGet,
				Path:    "/api/v3/myTrades",
				Private: true,
				Params: func(a exchange.Args) (map[string]any, error) {
					params := a.Paging("startTime", "limit")
					params["symbol"] = a.MarketID()
					return params, requireSymbol(a)
				},
				Reshape: eachRow(ownTradeSide),
			},
			exchange.OpDeposits: {
				Method:  http.MethodGet,
				Path:    "/sapi/v1/capital/deposit/hisrec",
				Private: true,
				Params:  historyParams,
				Reshape: eachRow(mapStatus(depositStatuses)),
			},
			exchange.OpWithdrawals: {
				Method:  http.MethodGet,
				Path:    "/sapi/v1/capital/withdraw/history",
				Private: true,
				Params:  historyParams,
				Reshape: eachRow(mapStatus(withdrawalStatuses)),
			},
		},
		Signer: auth.QueryHMAC{
			Hash:           sha256.New,
			Output:         auth.Hex,
			NonceParam:     "timestamp",
			SignatureParam: "signature",
			KeyHeader:      "X-MBX-APIKEY",
			Extra:          map[string]string{"recvWindow": strconv.FormatInt(recvWindow, 10)},
		},
		Parse:               parseConfig(),
		Errors:              errorTable,
		RateLimit:           rateLimit,
		ClientOrderIDPrefix: opts.ClientOrderPrefix,
	}
}

func parseConfig() parse.Config {
	schema := parse.DefaultSchema()
	schema.Market.List = parse.Keys{"symbols"}
	schema.Order.Timestamp = parse.Keys{"time", "transactTime"}
	schema.Transaction.Timestamp = parse.Keys{"insertTime", "applyTime", "completeTime"}
	schema.Transaction.Fee.Cost = parse.Keys{"transactionFee"}
	schema.Trade.Fee.Cost = parse.Keys{"commission"}
	schema.Trade.Fee.Currency = parse.Keys{"commissionAsset"}
	return parse.Config{
		Schema: schema,
		Fees: core.FeeSchedule{
			Maker: mustRate("0.001"),
			Taker: mustRate("0.001"),
		},
	}
}

func symbolParam(a exchange.Args) (map[string]any, error) {
	return map[string]any{"symbol": a.MarketID()}, requireSymbol(a)
}

func orderIDParams(a exchange.Args) (map[string]any, error) {
	if err := requireSymbol(a); err != nil {
		return nil, err
	}
	return map[string]any{"symbol": a.MarketID(), "orderId": a.OrderID}, nil
}

func historyParams(a exchange.Args) (map[string]any, error) {
	params := a.Paging("startTime", "limit")
	if a.Code != "" {
		params["coin"] = a.Code
	}
	return params, nil
}

func orderParams(a exchange.Args) (map[string]any, error) {
	if err := requireSymbol(a); err != nil {
		return nil, err
	}
	req := a.Order
	params := map[string]any{
		"symbol":           a.MarketID(),
		"side":             strings.ToUpper(string(req.Side)),
		"quantity":         req.Amount,
		"newOrderRespType": "FULL",
	}
	switch req.Type {
	case core.OrderLimit:
		params["type"] = "LIMIT"
		params["price"] = req.Price
		params["timeInForce"] = timeInForce(req.TimeInForce)
	case core.OrderMarket:
		params["type"] = "MARKET"
	case core.OrderStopLimit:
		params["type"] = "STOP_LOSS_LIMIT"
		params["price"] = req.Price
		params["stopPrice"] = req.TriggerPrice
		params["timeInForce"] = timeInForce(req.TimeInForce)
	case core.OrderStopMarket:
		params["type"] = "STOP_LOSS"
		params["stopPrice"] = req.TriggerPrice
	default:
		return nil, fmt.Errorf("%w: order type %q", core.ErrInvalidOrder, req.Type)
	}
	if req.ClientOrderID != "" {
		params["newClientOrderId"] = req.ClientOrderID
	}
	return params, nil
}

func timeInForce(v string) string {
	if v == "" {
		return "GTC"
	}
	return strings.ToUpper(v)
}

func requireSymbol(a exchange.Args) error {
	if a.MarketID() == "" {
		return errSymbolRequired
	}
	return nil
}
