// Package exchange dispatches logical operations to a venue described by an
// Adapter: endpoint lookup, throttling, signing, transport, error
// classification and normalization.
package exchange

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"exchange-core/internal/core"
	"exchange-core/internal/exchange/auth"
	"exchange-core/internal/parse"
)

// Operation is a logical call, independent of any venue's URL layout.
type Operation string

const (
	OpMarkets     Operation = "markets"
	OpTicker      Operation = "ticker"
	OpOrderBook   Operation = "order_book"
	OpTrades      Operation = "trades"
	OpBalance     Operation = "balance"
	OpCreateOrder Operation = "create_order"
	OpCancelOrder Operation = "cancel_order"
	OpFetchOrder  Operation = "fetch_order"
	OpOpenOrders  Operation = "open_orders"
	OpMyTrades    Operation = "my_trades"
	OpDeposits    Operation = "deposits"
	OpWithdrawals Operation = "withdrawals"
	OpLedger      Operation = "ledger"
	OpLogin       Operation = "login"
)

// Args carries what an operation was asked for. Endpoint.Params turns it into
// venue parameters.
type Args struct {
	Market  *core.Market
	Symbol  string
	OrderID string
	Order   core.OrderRequest
	Code    string
	Since   time.Time
	Limit   int
	// Params are caller extras merged over everything else.
	Params map[string]any
}

func (a Args) MarketID() string {
	if a.Market != nil {
		return a.Market.ID
	}
	return ""
}

// Paging returns the since (epoch milliseconds) and limit parameters under
// the venue's names, leaving out whichever is unset or has no name.
func (a Args) Paging(sinceKey, limitKey string) map[string]any {
	out := map[string]any{}
	if sinceKey != "" && !a.Since.IsZero() {
		out[sinceKey] = a.Since.UnixMilli()
	}
	if limitKey != "" && a.Limit > 0 {
		out[limitKey] = a.Limit
	}
	return out
}

// Endpoint describes how one operation is sent to a venue. Path may contain
// {symbol}, {id}, {code}, {side} and {price} placeholders; side and price come
// from Args.Order.
type Endpoint struct {
	Method   string
	Path     string
	Private  bool
	Encoding auth.Encoding
	Static   map[string]any
	Params   func(Args) (map[string]any, error)
	// Result names the member holding the payload; empty means the body.
	Result parse.Keys
	// Reshape rewrites the decoded payload before it is parsed.
	Reshape func(any) any
}

func (e Endpoint) path(a Args) string {
	return strings.NewReplacer(
		"{symbol}", url.PathEscape(a.MarketID()),
		"{id}", url.PathEscape(a.OrderID),
		"{code}", url.PathEscape(a.Code),
		"{side}", url.PathEscape(string(a.Order.Side)),
		"{price}", url.PathEscape(a.Order.Price.String()),
	).Replace(e.Path)
}

func (e Endpoint) params(a Args) (map[string]any, error) {
	out := make(map[string]any, len(e.Static)+len(a.Params))
	for k, v := range e.Static {
		out[k] = v
	}
	if e.Params != nil {
		built, err := e.Params(a)
		if err != nil {
			return nil, err
		}
		for k, v := range built {
			out[k] = v
		}
	}
	for k, v := range a.Params {
		out[k] = v
	}
	return out, nil
}

// Adapter is the capability table of one venue. Everything here is static;
// runtime state lives in Client.
type Adapter struct {
	ID        string
	BaseURL   string
	Endpoints map[Operation]Endpoint
	Signer    auth.Signer
	Parse     parse.Config
	Errors    ErrorTable
	Failure   FailureDetector
	RateLimit time.Duration

	// Session and TokenKeys are set by venues with a login call.
	Session          *auth.Session
	TokenKeys        parse.Keys
	AutoAuthenticate bool

	// ClientOrderIDPrefix, when set, makes CreateOrder generate client ids.
	ClientOrderIDPrefix string
}

func (a Adapter) Has(op Operation) bool {
	_, ok := a.Endpoints[op]
	return ok
}

// Validate checks that the table is usable before any call is made.
func (a Adapter) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("adapter: id is required")
	}
	u, err := url.Parse(a.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("adapter %s: invalid base url %q", a.ID, a.BaseURL)
	}
	for op, ep := range a.Endpoints {
		switch ep.Method {
		case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		default:
			return fmt.Errorf("adapter %s: %s: unsupported method %q", a.ID, op, ep.Method)
		}
		if !strings.HasPrefix(ep.Path, "/") {
			return fmt.Errorf("adapter %s: %s: path %q must start with /", a.ID, op, ep.Path)
		}
		if ep.Private && a.Signer == nil {
			return fmt.Errorf("adapter %s: %s is private but no signer is configured", a.ID, op)
		}
	}
	if login, ok := a.Endpoints[OpLogin]; ok {
		if a.Session == nil {
			return fmt.Errorf("adapter %s: login endpoint needs a session", a.ID)
		}
		if login.Private {
			return fmt.Errorf("adapter %s: login endpoint cannot be private", a.ID)
		}
	}
	return nil
}
