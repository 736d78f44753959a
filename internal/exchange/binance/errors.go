package binance

import (
	"fmt"

	"exchange-core/internal/core"
	"exchange-core/internal/exchange"
)

var errSymbolRequired = fmt.Errorf("%w: binance requires a symbol", core.ErrBadRequest)

// -2010 (NEW_ORDER_REJECTED) covers several causes, so it is classified by
// its message rather than by code.
var errorTable = exchange.ErrorTable{
	Exact: map[string]error{
		"-1001": core.ErrExchangeNotAvailable,
		"-1003": core.ErrRateLimitExceeded,
		"-1013": core.ErrInvalidOrder,
		"-1016": core.ErrExchangeNotAvailable,
		"-1021": core.ErrInvalidNonce,
		"-1022": core.ErrAuthentication,
		"-1100": core.ErrBadRequest,
		"-1102": core.ErrBadRequest,
		"-1104": core.ErrBadRequest,
		"-1121": core.ErrBadRequest,
		"-2011": core.ErrOrderNotFound,
		"-2013": core.ErrOrderNotFound,
		"-2014": core.ErrAuthentication,
		"-2015": core.ErrAuthentication,

		"Account has insufficient balance for requested action.": core.ErrInsufficientFunds,
		"Balance is insufficient.":                               core.ErrInsufficientFunds,
		"Duplicate order sent.":                                  core.ErrInvalidOrder,
		"Unknown order sent.":                                    core.ErrOrderNotFound,
		"Order does not exist.":                                  core.ErrOrderNotFound,
		"Order was canceled or expired.":                         core.ErrOrderNotFound,
		"This action is disabled on this account.":               core.ErrPermissionDenied,
		"System is under maintenance.":                           core.ErrOnMaintenance,
	},
	Broad: []exchange.BroadRule{
		{Fragment: "Too many requests", Kind: core.ErrRateLimitExceeded},
		{Fragment: "Filter failure", Kind: core.ErrInvalidOrder},
		{Fragment: "insufficient balance", Kind: core.ErrInsufficientFunds},
		{Fragment: "outside of the recvWindow", Kind: core.ErrInvalidNonce},
	},
}
