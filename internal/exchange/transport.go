package exchange

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"exchange-core/internal/exchange/auth"
)

const maxResponseBytes = 16 << 20

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Transport sends a signed request. Implementations must honor ctx.
type Transport interface {
	RoundTrip(ctx context.Context, req auth.Signed) (Response, error)
}

// HTTPTransport is the default Transport.
type HTTPTransport struct {
	Client *http.Client
}

func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPTransport{Client: &http.Client{Timeout: timeout}}
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, signed auth.Signed) (Response, error) {
	var body io.Reader
	if signed.Body != nil {
		body = bytes.NewReader(signed.Body)
	}
	req, err := http.NewRequestWithContext(ctx, signed.Method, signed.URL, body)
	if err != nil {
		return Response{}, err
	}
	for k, values := range signed.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, fmt.Errorf("read body: %w", err)
	}
	return Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// CloseIdle releases pooled connections.
func (t *HTTPTransport) CloseIdle() {
	if t != nil && t.Client != nil {
		t.Client.CloseIdleConnections()
	}
}
