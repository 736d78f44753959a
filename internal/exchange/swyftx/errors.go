package swyftx

import (
	"fmt"
	"net/http"

	"exchange-core/internal/core"
	"exchange-core/internal/exchange"
)

var errOrderKind = fmt.Errorf("%w: swyftx accepts limit and market orders only", core.ErrInvalidOrder)

var errorTable = exchange.ErrorTable{
	Exact: map[string]error{
		"Invalid API Key":                    core.ErrAuthentication,
		"Invalid signature":                  core.ErrAuthentication,
		"Invalid nonce":                      core.ErrAuthentication,
		"Invalid authentication credentials": core.ErrAuthentication,
		"Insufficient funds":                 core.ErrInsufficientFunds,
		"Insufficient balance":               core.ErrInsufficientFunds,
		"Invalid order":                      core.ErrInvalidOrder,
		"Order not found":                    core.ErrOrderNotFound,
		"Market not found":                   core.ErrBadRequest,
		"Asset not found":                    core.ErrBadRequest,
		"Rate limit exceeded":                core.ErrRateLimitExceeded,
		"Trading is disabled":                core.ErrNotSupported,
	},
	Broad: []exchange.BroadRule{
		{Fragment: "API key", Kind: core.ErrAuthentication},
		{Fragment: "signature", Kind: core.ErrAuthentication},
		{Fragment: "authentication", Kind: core.ErrAuthentication},
		{Fragment: "Unauthorized", Kind: core.ErrAuthentication},
		{Fragment: "funds", Kind: core.ErrInsufficientFunds},
		{Fragment: "balance", Kind: core.ErrInsufficientFunds},
		{Fragment: "Invalid", Kind: core.ErrInvalidOrder},
		{Fragment: "Not found", Kind: core.ErrOrderNotFound},
		{Fragment: "Rate limit", Kind: core.ErrRateLimitExceeded},
		{Fragment: "disabled", Kind: core.ErrNotSupported},
	},
	Status: map[int]error{
		http.StatusForbidden: core.ErrAuthentication,
	},
}
