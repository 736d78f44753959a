package auth

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"exchange-core/internal/precise"
)

// Encoding selects how parameters of a request with a body are serialized.
type Encoding int

const (
	EncodeForm Encoding = iota
	EncodeJSON
)

// Request is a logical call with its path template already expanded.
type Request struct {
	Method   string
	BaseURL  string
	Path     string
	Params   map[string]any
	Encoding Encoding
}

// HasBody reports whether parameters travel in the body rather than the query.
func (r Request) HasBody() bool {
	switch r.Method {
	case "", http.MethodGet, http.MethodDelete, http.MethodHead:
		return false
	}
	return true
}

// With returns a copy of r with key set to value.
func (r Request) With(key string, value any) Request {
	params := make(map[string]any, len(r.Params)+1)
	for k, v := range r.Params {
		params[k] = v
	}
	params[key] = value
	r.Params = params
	return r
}

// Query is the canonical query string: sorted keys, URL-encoded values.
func (r Request) Query() string {
	values := url.Values{}
	for k, v := range r.Params {
		if absent(v) {
			continue
		}
		values.Set(k, formatValue(v))
	}
	return values.Encode()
}

// Body serializes the parameters for a request with a body.
func (r Request) Body() ([]byte, string, error) {
	if len(r.Params) == 0 {
		if r.Encoding == EncodeJSON {
			return nil, "application/json", nil
		}
		return nil, "", nil
	}
	if r.Encoding == EncodeJSON {
		out := make(map[string]any, len(r.Params))
		for k, v := range r.Params {
			if absent(v) {
				continue
			}
			if d, ok := v.(precise.Decimal); ok {
				out[k] = json.Number(d.String())
				continue
			}
			out[k] = v
		}
		body, err := json.Marshal(out)
		if err != nil {
			return nil, "", fmt.Errorf("encode body: %w", err)
		}
		return body, "application/json", nil
	}
	return []byte(r.Query()), "application/x-www-form-urlencoded", nil
}

// PathWithQuery is the path plus "?query" for requests without a body.
func (r Request) PathWithQuery() string {
	if r.HasBody() {
		return r.Path
	}
	if q := r.Query(); q != "" {
		return r.Path + "?" + q
	}
	return r.Path
}

// URL is the absolute URL the request is sent to.
func (r Request) URL() string {
	return strings.TrimRight(r.BaseURL, "/") + r.PathWithQuery()
}

// Unsigned builds the descriptor without any authentication.
func (r Request) Unsigned() (Signed, error) {
	out := Signed{Method: r.Method, URL: r.URL(), Header: http.Header{}}
	if r.HasBody() {
		body, contentType, err := r.Body()
		if err != nil {
			return Signed{}, err
		}
		out.Body = body
		if contentType != "" {
			out.Header.Set("Content-Type", contentType)
		}
	}
	return out, nil
}

// absent reports values that are left out of a request: nil and unknown
// decimals.
func absent(v any) bool {
	if v == nil {
		return true
	}
	d, ok := v.(precise.Decimal)
	return ok && !d.Known()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case precise.Decimal:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
