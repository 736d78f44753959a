package bitflyer

import (
	"fmt"
	"strconv"

	"exchange-core/internal/core"
	"exchange-core/internal/exchange"
	"exchange-core/internal/parse"
)

var (
	errSymbolRequired = fmt.Errorf("%w: bitflyer requires a symbol", core.ErrBadRequest)
	errCodeRequired   = fmt.Errorf("%w: bitflyer requires a currency code", core.ErrBadRequest)
)

var errorTable = exchange.ErrorTable{
	Exact: map[string]error{
		"-2":   core.ErrOnMaintenance,
		"-100": core.ErrBadRequest,
		"-106": core.ErrBadRequest,
		"-110": core.ErrInvalidOrder,
		"-111": core.ErrInvalidOrder,
		"-200": core.ErrInsufficientFunds,
		"-205": core.ErrInsufficientFunds,
		"-208": core.ErrInvalidOrder,
		"-500": core.ErrAuthentication,
		"-501": core.ErrAuthentication,
		"-509": core.ErrPermissionDenied,
	},
	Broad: []exchange.BroadRule{
		{Fragment: "Invalid signature", Kind: core.ErrAuthentication},
		{Fragment: "Over API limit", Kind: core.ErrRateLimitExceeded},
		{Fragment: "Insufficient fund", Kind: core.ErrInsufficientFunds},
		{Fragment: "minimum order size", Kind: core.ErrInvalidOrder},
		{Fragment: "Order not found", Kind: core.ErrOrderNotFound},
		{Fragment: "under maintenance", Kind: core.ErrOnMaintenance},
	},
}

// detectFailure reads the negative status bitFlyer puts in error bodies, e.g.
// {"status":-200,"error_message":"Insufficient funds","data":null}.
func detectFailure(status int, body any) (exchange.Failure, bool) {
	d, ok := parse.AsDict(body)
	if !ok {
		return exchange.DefaultFailure(status, body)
	}
	code := parse.SafeString(d, "status", "")
	if n, err := strconv.ParseInt(code, 10, 64); err == nil && n < 0 {
		return exchange.Failure{
			Code:    code,
			Message: parse.SafeString(d, "error_message", ""),
		}, true
	}
	return exchange.DefaultFailure(status, body)
}
