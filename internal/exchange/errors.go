package exchange

import (
	"net/http"
	"strconv"
	"strings"

	"exchange-core/internal/core"
	"exchange-core/internal/parse"
)

// Failure is the error code and message a venue reported.
type Failure struct {
	Code    string
	Message string
}

// FailureDetector decides whether a response is a failure. It sees every
// response, including 2xx ones, since many venues report errors in-band.
type FailureDetector func(status int, body any) (Failure, bool)

var messageKeys = []string{"msg", "message", "error_message", "errorMessage", "error_description", "description", "error"}

// DefaultFailure treats non-2xx statuses as failures, plus 2xx bodies with
// success:false, an envelope status "error"/"fail" next to an errors or
// message member, a non-empty error member, or a non-zero numeric code.
func DefaultFailure(status int, body any) (Failure, bool) {
	d, _ := parse.AsDict(body)
	f := Failure{
		Code:    parse.SafeStringN(d, []string{"code", "error_code", "errorCode"}, ""),
		Message: failureMessage(d),
	}
	if nested, ok := parse.SafeDict(d, "error"); ok {
		if f.Code == "" {
			f.Code = parse.SafeStringN(nested, []string{"code", "error"}, "")
		}
		f.Message = failureMessage(nested)
		if f.Message == "" {
			f.Message = f.Code
		}
	}
	if status < 200 || status >= 300 {
		return f, true
	}
	if d == nil {
		return f, false
	}
	if v, ok := d["success"].(bool); ok && !v {
		return f, true
	}
	if isEnvelope(d) {
		switch strings.ToLower(parse.SafeString(d, "status", "")) {
		case "error", "fail", "failed", "failure":
			return f, true
		}
	}
	if _, ok := parse.SafeDict(d, "error"); ok {
		return f, true
	}
	if parse.SafeString(d, "error", "") != "" {
		return f, true
	}
	if n, err := strconv.ParseInt(f.Code, 10, 64); err == nil && n != 0 {
		return f, true
	}
	return f, false
}

// isEnvelope reports whether a top-level status belongs to a reply wrapper
// rather than to a payload entity such as an order or a transfer.
func isEnvelope(d parse.Dict) bool {
	if _, ok := d["errors"]; ok {
		return true
	}
	for _, k := range messageKeys {
		if _, ok := d[k]; ok {
			return true
		}
	}
	return false
}

func failureMessage(d parse.Dict) string {
	if d == nil {
		return ""
	}
	if msg := parse.SafeStringN(d, messageKeys, ""); msg != "" {
		return msg
	}
	var parts []string
	for _, item := range parse.SafeList(d, "errors") {
		switch v := item.(type) {
		case string:
			parts = append(parts, v)
		case parse.Dict:
			if msg := parse.SafeStringN(v, append([]string{"code"}, messageKeys...), ""); msg != "" {
				parts = append(parts, msg)
			}
		}
	}
	return strings.Join(parts, " ")
}

// BroadRule maps a message fragment to a kind.
type BroadRule struct {
	Fragment string
	Kind     error
}

// ErrorTable is a venue's error vocabulary. Classify consults the exact table
// by code and then by message, then the broad rules in declaration order,
// then HTTP status defaults, and finally falls back to core.ErrExchange.
type ErrorTable struct {
	Exact  map[string]error
	Broad  []BroadRule
	Status map[int]error
}

func (t ErrorTable) Classify(status int, f Failure) error {
	if f.Code != "" {
		if kind, ok := t.Exact[f.Code]; ok {
			return kind
		}
	}
	if f.Message != "" {
		if kind, ok := t.Exact[f.Message]; ok {
			return kind
		}
		for _, rule := range t.Broad {
			if rule.Fragment != "" && strings.Contains(f.Message, rule.Fragment) {
				return rule.Kind
			}
		}
	}
	if kind, ok := t.Status[status]; ok {
		return kind
	}
	if kind := statusKind(status); kind != nil {
		return kind
	}
	return core.ErrExchange
}

func statusKind(status int) error {
	switch status {
	case http.StatusBadRequest:
		return core.ErrBadRequest
	case http.StatusUnauthorized, http.StatusProxyAuthRequired, http.StatusNetworkAuthenticationRequired:
		return core.ErrAuthentication
	case http.StatusForbidden:
		return core.ErrPermissionDenied
	case http.StatusTooManyRequests, http.StatusTeapot:
		return core.ErrRateLimitExceeded
	case http.StatusNotFound, http.StatusConflict, http.StatusGone, http.StatusUnavailableForLegalReasons:
		return core.ErrExchangeNotAvailable
	}
	if status >= 500 && status <= 599 {
		return core.ErrExchangeNotAvailable
	}
	return nil
}
