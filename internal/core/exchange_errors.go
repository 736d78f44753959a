package core

import (
	"errors"
	"strings"
)

var (
	// ErrAuthentication indicates missing, rejected or expired credentials.
	ErrAuthentication = errors.New("authentication error")
	// ErrInvalidNonce indicates the venue rejected the request nonce as stale or replayed.
	ErrInvalidNonce = errors.New("invalid nonce")
	// ErrPermissionDenied indicates the credentials lack the required permission.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInsufficientFunds indicates the exchange rejected the action due to insufficient funds.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidOrder indicates the order was rejected by exchange or failed local checks.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrOrderNotFound indicates the order does not exist on exchange.
	ErrOrderNotFound = errors.New("order not found")
	ErrBadRequest    = errors.New("bad request")
	// ErrRateLimitExceeded indicates the venue throttled the caller.
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrExchangeNotAvailable = errors.New("exchange not available")
	ErrOnMaintenance        = errors.New("exchange on maintenance")
	// ErrNotSupported indicates the adapter has no endpoint for the operation.
	ErrNotSupported = errors.New("not supported")
	// ErrExchange is the catch-all for failures the venue reported but no table matched.
	ErrExchange = errors.New("exchange error")
	// ErrNetwork covers transport failures and timeouts.
	ErrNetwork = errors.New("network error")
	// ErrParse indicates a response value was present but malformed.
	ErrParse = errors.New("parse error")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrAuthentication, "authentication"},
	{ErrInvalidNonce, "invalid_nonce"},
	{ErrPermissionDenied, "permission_denied"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrInvalidOrder, "invalid_order"},
	{ErrOrderNotFound, "order_not_found"},
	{ErrBadRequest, "bad_request"},
	{ErrRateLimitExceeded, "rate_limit_exceeded"},
	{ErrOnMaintenance, "on_maintenance"},
	{ErrExchangeNotAvailable, "exchange_not_available"},
	{ErrNotSupported, "not_supported"},
	{ErrNetwork, "network"},
	{ErrParse, "parse"},
	{ErrExchange, "exchange"},
}

// Error is the error surfaced to callers. It carries the diagnostic context of
// the failing call and unwraps to its Kind, so callers branch with errors.Is.
type Error struct {
	Kind     error
	Adapter  string
	Endpoint string
	Code     string
	Feedback string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Adapter != "" {
		b.WriteString(e.Adapter)
		b.WriteByte(' ')
	}
	if e.Endpoint != "" {
		b.WriteString(e.Endpoint)
		b.WriteString(": ")
	}
	kind := e.Kind
	if kind == nil {
		kind = ErrExchange
	}
	b.WriteString(kind.Error())
	if e.Code != "" {
		b.WriteString(" [")
		b.WriteString(e.Code)
		b.WriteByte(']')
	}
	if e.Feedback != "" {
		b.WriteString(": ")
		b.WriteString(e.Feedback)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// KindOf returns the first canonical kind err matches, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.err
		}
	}
	return nil
}

// KindName returns a stable label for err's kind, "unknown" when it has none.
func KindName(err error) string {
	kind := KindOf(err)
	for _, k := range kinds {
		if k.err == kind {
			return k.name
		}
	}
	return "unknown"
}
