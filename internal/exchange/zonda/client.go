// Package zonda describes the Zonda (formerly BitBay) v1_01 REST API as an
// exchange.Adapter.
package zonda

import (
	"crypto/sha512"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"exchange-core/internal/core"
	"exchange-core/internal/exchange"
	"exchange-core/internal/exchange/auth"
	"exchange-core/internal/parse"
	"exchange-core/internal/precise"
)

const (
	ID             = "zonda"
	DefaultBaseURL = "https://api.zonda.exchange/rest"

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
				Path:    "/trading/ticker",
				Reshape: tickerMarkets,
			},
			exchange.OpTicker: {
				Method: http.MethodGet,
				Path:   "/trading/ticker/{symbol}",
				Result: parse.Keys{"ticker"},
			},
			exchange.OpOrderBook: {
				Method: http.MethodGet,
				Path:   "/trading/orderbook/{symbol}",
			},
			exchange.OpTrades: {
				Method: http.MethodGet,
				Path:   "/trading/transactions/{symbol}",
				Params: func(a exchange.Args) (map[string]any, error) {
					return a.Paging("fromTime", "limit"), nil
				},
			},
			exchange.OpBalance: {
				Method:  http.MethodGet,
				Path:    "/balances/BITBAY/balance",
				Private: true,
			},
			exchange.OpCreateOrder: {
				Method:   http.MethodPost,
				Path:     "/trading/offer/{symbol}",
				Private:  true,
				Encoding: auth.EncodeJSON,
				Params:   orderParams,
				Reshape:  offerStatus,
			},
			exchange.OpCancelOrder: {
				Method:  http.MethodDelete,
				Path:    "/trading/offer/{symbol}/{id}/{side}/{price}",
				Private: true,
				Params:  cancelParams,
				// The reply is a bare {"status":"Ok","errors":[]}.
				Reshape: func(any) any { return nil },
			},
			exchange.OpOpenOrders: {
				Method:  http.MethodGet,
				Path:    "/trading/offer",
				Private: true,
				Reshape: openOffers,
			},
			exchange.OpMyTrades: {
				Method:  http.MethodGet,
				Path:    "/trading/history/transactions",
				Private: true,
				Params:  historyQuery("markets", func(a exchange.Args) string { return a.MarketID() }),
				Reshape: ownTrades,
			},
			exchange.OpLedger: {
				Method:  http.MethodGet,
				Path:    "/balances/BITBAY/history",
				Private: true,
				Params:  historyQuery("balanceCurrencies", func(a exchange.Args) string { return a.Code }),
				Reshape: flattenHistory,
			},
		},
		Signer: auth.KeyedHMAC{
			Hash:            sha512.New,
			KeyHeader:       "API-Key",
			NonceHeader:     "Request-Timestamp",
			SignatureHeader: "API-Hash",
			Headers: func(int64) map[string]string {
				return map[string]string{"Operation-Id": uuid.NewString()}
			},
		},
		Parse:     parseConfig(),
		Errors:    errorTable,
		Failure:   detectFailure,
		RateLimit: rateLimit,
	}
}

func parseConfig() parse.Config {
	schema := parse.DefaultSchema()
	schema.Ticker.Bid = parse.Keys{"highestBid"}
	schema.Ticker.Ask = parse.Keys{"lowestAsk"}
	schema.Ticker.Last = parse.Keys{"rate"}
	schema.Ticker.PreviousClose = parse.Keys{"previousRate"}

	schema.Trade.Timestamp = parse.Keys{"time", "t"}
	schema.Trade.Side = parse.Keys{"userAction", "ty"}
	schema.Trade.Price = parse.Keys{"rate", "r"}
	schema.Trade.Amount = parse.Keys{"amount", "a"}
	schema.Trade.Order = parse.Keys{"offerId"}
	schema.Trade.Fee.Cost = parse.Keys{"commissionValue"}

	schema.Order.ID = parse.Keys{"offerId", "id"}
	schema.Order.Side = parse.Keys{"offerType"}
	schema.Order.Type = parse.Keys{"mode"}
	schema.Order.Price = parse.Keys{"rate"}
	schema.Order.Amount = parse.Keys{"startAmount"}
	schema.Order.Remaining = parse.Keys{"currentAmount"}
	schema.Order.Trades = parse.Keys{"transactions"}

	schema.Balance.Free = parse.Keys{"availableFunds"}
	schema.Balance.Used = parse.Keys{"lockedFunds"}
	schema.Balance.Total = parse.Keys{"totalFunds"}

	schema.Ledger.ReferenceID = parse.Keys{"detailId"}
	return parse.Config{
		Schema:      schema,
		Symbols:     parse.SymbolResolver{Separator: "-"},
		Precision:   parse.DecimalPlaces,
		LedgerTypes: parse.DefaultLedgerTypes.Merge(ledgerTypes),
		Fees: core.FeeSchedule{
			Maker: precise.Zero,
			Taker: precise.MustParse("0.001"),
		},
	}
}

func orderParams(a exchange.Args) (map[string]any, error) {
	req := a.Order
	params := map[string]any{
		"offerType":  strings.ToUpper(string(req.Side)),
		"amount":     req.Amount,
		"postOnly":   false,
		"fillOrKill": false,
	}
	switch req.Type {
	case core.OrderLimit:
		params["mode"] = "limit"
		params["rate"] = req.Price
	case core.OrderMarket:
		params["mode"] = "market"
	case core.OrderStopLimit:
		params["mode"] = "stop-limit"
		params["rate"] = req.Price
		params["stopRate"] = req.TriggerPrice
	case core.OrderStopMarket:
		params["mode"] = "stop-market"
		params["stopRate"] = req.TriggerPrice
	default:
		return nil, fmt.Errorf("%w: order type %q", core.ErrInvalidOrder, req.Type)
	}
	if req.ClientOrderID != "" {
		params["clientId"] = req.ClientOrderID
	}
	return params, nil
}

// cancelParams only checks that the path can be filled: Zonda addresses an
// offer by market, id, side and price.
func cancelParams(a exchange.Args) (map[string]any, error) {
	if a.MarketID() == "" {
		return nil, errSymbolRequired
	}
	if a.Order.Side == "" || !a.Order.Price.Known() {
		return nil, errCancelNeedsOffer
	}
	return nil, nil
}

// historyQuery builds the JSON "query" parameter Zonda's history endpoints take.
func historyQuery(filterKey string, filter func(exchange.Args) string) func(exchange.Args) (map[string]any, error) {
	return func(a exchange.Args) (map[string]any, error) {
		q := map[string]any{}
		if v := filter(a); v != "" {
			q[filterKey] = []string{v}
		}
		if !a.Since.IsZero() {
			q["fromTime"] = a.Since.UnixMilli()
		}
		if a.Limit > 0 {
			q["limit"] = a.Limit
		}
		body, err := json.Marshal(q)
		if err != nil {
			return nil, fmt.Errorf("%w: encode query: %v", core.ErrBadRequest, err)
		}
		return map[string]any{"query": string(body)}, nil
	}
}
