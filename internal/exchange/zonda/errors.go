package zonda

import (
	"fmt"
	"strings"

	"exchange-core/internal/core"
	"exchange-core/internal/exchange"
	"exchange-core/internal/parse"
)

var (
	errSymbolRequired   = fmt.Errorf("%w: zonda requires a symbol", core.ErrBadRequest)
	errCancelNeedsOffer = fmt.Errorf("%w: zonda cancels by side and price, load the offer first", core.ErrBadRequest)
)

var errorTable = exchange.ErrorTable{
	Exact: map[string]error{
		"400": core.ErrExchange,
		"401": core.ErrInvalidOrder,
		"402": core.ErrInvalidOrder,
		"403": core.ErrInvalidOrder,
		"404": core.ErrInvalidOrder,
		"405": core.ErrInvalidOrder,
		"406": core.ErrInsufficientFunds,
		"408": core.ErrInvalidOrder,
		"501": core.ErrAuthentication,
		"502": core.ErrAuthentication,
		"503": core.ErrInvalidNonce,
		"505": core.ErrAuthentication,
		"506": core.ErrPermissionDenied,
		"510": core.ErrBadRequest,

		"FUNDS_NOT_SUFFICIENT":                   core.ErrInsufficientFunds,
		"BALANCE_FOUNDS_NOT_SUFFICIENT":          core.ErrInsufficientFunds,
		"OFFER_FUNDS_NOT_EXCEEDING_MINIMUMS":     core.ErrInvalidOrder,
		"OFFER_NOT_FOUND":                        core.ErrOrderNotFound,
		"OFFER_WOULD_HAVE_BEEN_PARTIALLY_FILLED": core.ErrInvalidOrder,
		"ACTION_LIMIT_EXCEEDED":                  core.ErrRateLimitExceeded,
		"UNDER_MAINTENANCE":                      core.ErrOnMaintenance,
		"REQUEST_TIMESTAMP_TOO_OLD":              core.ErrInvalidNonce,
		"PERMISSIONS_NOT_SUFFICIENT":             core.ErrPermissionDenied,
		"INVALID_STOP_RATE":                      core.ErrInvalidOrder,
		"NOT_RECOGNIZED_OFFER_TYPE":              core.ErrBadRequest,
	},
	Broad: []exchange.BroadRule{
		{Fragment: "NOT_SUFFICIENT", Kind: core.ErrInsufficientFunds},
		{Fragment: "TIMESTAMP", Kind: core.ErrInvalidNonce},
		{Fragment: "Invalid sign", Kind: core.ErrAuthentication},
	},
}

// detectFailure reads {"status":"Fail","errors":[...]}, using the first error
// as the code. Other shapes, including {"code":502,"message":...}, go through
// the default detector.
func detectFailure(status int, body any) (exchange.Failure, bool) {
	d, ok := parse.AsDict(body)
	if !ok || !strings.EqualFold(parse.SafeString(d, "status", ""), "Fail") {
		return exchange.DefaultFailure(status, body)
	}
	var names []string
	for _, item := range parse.SafeList(d, "errors") {
		if s, ok := item.(string); ok {
			names = append(names, s)
		}
	}
	f := exchange.Failure{Message: strings.Join(names, " ")}
	if len(names) > 0 {
		f.Code = names[0]
	}
	return f, true
}
