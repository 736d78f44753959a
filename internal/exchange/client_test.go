package exchange

import (
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"exchange-core/internal/core"
	"exchange-core/internal/exchange/auth"
	"exchange-core/internal/parse"
	"exchange-core/internal/precise"
)

const testMarkets = `[{"id":"BTC-USD","base":"btc","quote":"usd","amount_precision":"0.001","price_precision":"0.01","min_amount":"0.001"}]`

func testAdapter(baseURL string) Adapter {
	return Adapter{
		ID:      "testex",
		BaseURL: baseURL,
		Endpoints: map[Operation]Endpoint{
			OpMarkets:   {Method: http.MethodGet, Path: "/markets"},
			OpTicker:    {Method: http.MethodGet, Path: "/ticker/{symbol}"},
			OpOrderBook: {Method: http.MethodGet, Path: "/book/{symbol}"},
			OpBalance:   {Method: http.MethodGet, Path: "/balance", Private: true},
			OpLedger:    {Method: http.MethodGet, Path: "/ledger", Private: true, Result: parse.Keys{"data"}},
			OpCreateOrder: {
				Method:   http.MethodPost,
				Path:     "/orders",
				Private:  true,
				Encoding: auth.EncodeJSON,
				Params: func(a Args) (map[string]any, error) {
					return map[string]any{
						"market": a.MarketID(),
						"side":   string(a.Order.Side),
						"type":   string(a.Order.Type),
						"amount": a.Order.Amount,
						"price":  a.Order.Price,
					}, nil
				},
			},
			OpCancelOrder: {Method: http.MethodDelete, Path: "/orders/{id}", Private: true},
		},
		Signer: auth.ConcatHMAC{
			Hash:            sha256.New,
			KeyHeader:       "X-Key",
			NonceHeader:     "X-Nonce",
			SignatureHeader: "X-Sign",
		},
		Parse: parse.Config{Symbols: parse.SymbolResolver{Separator: "-"}},
		Errors: ErrorTable{
			Exact: map[string]error{
				"E100":            core.ErrInsufficientFunds,
				"Order not found": core.ErrOrderNotFound,
			},
			Broad: []BroadRule{
				{Fragment: "nonce", Kind: core.ErrInvalidNonce},
				{Fragment: "balance", Kind: core.ErrInsufficientFunds},
			},
		},
	}
}

var testCreds = auth.Credentials{APIKey: "key-1", Secret: "secret-1"}

func newTestClient(t *testing.T, handler http.HandlerFunc, creds auth.Credentials) (*Client, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	client, err := NewClient(testAdapter(srv.URL), Options{Credentials: creds, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, &hits
}

func TestFetchTickerKeepsDecimalText(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets":
			_, _ = w.Write([]byte(testMarkets))
		case "/ticker/BTC-USD":
			_, _ = w.Write([]byte(`{"last":"100.00","high":"110","low":"90"}`))
		default:
			http.NotFound(w, r)
		}
	}, auth.Credentials{})

	ticker, err := client.FetchTicker(context.Background(), "BTC/USD")
	if err != nil {
		t.Fatalf("FetchTicker() error = %v", err)
	}
	if ticker.Symbol != "BTC/USD" {
		t.Fatalf("symbol = %q, want BTC/USD", ticker.Symbol)
	}
	if got := ticker.Last.String(); got != "100.00" {
		t.Fatalf("last = %q, want 100.00", got)
	}
	if got := ticker.High.String(); got != "110" {
		t.Fatalf("high = %q, want 110", got)
	}
	if got := ticker.Low.String(); got != "90" {
		t.Fatalf("low = %q, want 90", got)
	}
	if ticker.Bid.Known() || ticker.Ask.Known() {
		t.Fatalf("bid/ask = %q/%q, want unknown", ticker.Bid, ticker.Ask)
	}
}

func TestPrivateCallWithoutCredentialsNeverDispatches(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, auth.Credentials{})

	_, err := client.FetchBalance(context.Background())
	if !errors.Is(err, core.ErrAuthentication) {
		t.Fatalf("FetchBalance() error = %v, want authentication error", err)
	}
	if !strings.Contains(err.Error(), "apiKey") {
		t.Fatalf("error %q does not name the missing credential", err)
	}
	if got := hits.Load(); got != 0 {
		t.Fatalf("requests = %d, want 0", got)
	}
}

func TestUnsupportedOperationNeverDispatches(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}, testCreds)

	_, err := client.FetchDeposits(context.Background(), "", time.Time{}, 0)
	if !errors.Is(err, core.ErrNotSupported) {
		t.Fatalf("FetchDeposits() error = %v, want not supported", err)
	}
	var ce *core.Error
	if !errors.As(err, &ce) || ce.Adapter != "testex" || ce.Endpoint != string(OpDeposits) {
		t.Fatalf("error context = %+v, want adapter testex endpoint deposits", ce)
	}
	if got := hits.Load(); got != 0 {
		t.Fatalf("requests = %d, want 0", got)
	}
}

func TestExchangeErrorsAreClassified(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
		code   string
	}{
		{"exact code beats broad fragment", http.StatusBadRequest, `{"code":"E100","msg":"nonce too small"}`, core.ErrInsufficientFunds, "E100"},
		{"exact message", http.StatusBadRequest, `{"msg":"Order not found"}`, core.ErrOrderNotFound, ""},
		{"broad fragment", http.StatusBadRequest, `{"msg":"request nonce too small"}`, core.ErrInvalidNonce, ""},
		{"in-band failure", http.StatusOK, `{"success":false,"message":"low balance on account"}`, core.ErrInsufficientFunds, ""},
		{"status fallback", http.StatusServiceUnavailable, `upstream down`, core.ErrExchangeNotAvailable, ""},
		{"unmatched", http.StatusOK, `{"status":"error","message":"something odd"}`, core.ErrExchange, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}, testCreds)

			_, err := client.FetchBalance(context.Background())
			if !errors.Is(err, tc.want) {
				t.Fatalf("FetchBalance() error = %v, want %v", err, tc.want)
			}
			var ce *core.Error
			if !errors.As(err, &ce) {
				t.Fatalf("error %T is not *core.Error", err)
			}
			if ce.Code != tc.code {
				t.Fatalf("code = %q, want %q", ce.Code, tc.code)
			}
			if ce.Feedback == "" {
				t.Fatal("feedback is empty")
			}
		})
	}
}

func TestLedgerNegativeAmountIsOutgoing(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Sign") == "" || r.Header.Get("X-Key") != "key-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"L1","currency":"xbt","amount":"-0.5","after":"1.5","timestamp":1700000000000}]}`))
	}, testCreds)

	entries, err := client.FetchLedger(context.Background(), "", time.Time{}, 0)
	if err != nil {
		t.Fatalf("FetchLedger() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Direction != core.Out {
		t.Fatalf("direction = %q, want out", e.Direction)
	}
	if got := e.Amount.String(); got != "0.5" {
		t.Fatalf("amount = %q, want 0.5", got)
	}
	if e.Currency != "BTC" {
		t.Fatalf("currency = %q, want BTC", e.Currency)
	}
	if !e.Before.Equal(precise.MustParse("2.0")) {
		t.Fatalf("before = %s, want 2.0", e.Before)
	}
}

func TestCreateOrderNormalizesAndCaches(t *testing.T) {
	var body string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/markets":
			_, _ = w.Write([]byte(testMarkets))
		case r.Method == http.MethodPost && r.URL.Path == "/orders":
			data, _ := io.ReadAll(r.Body)
			body = string(data)
			_, _ = w.Write([]byte(`{"id":"42","timestamp":1700000000000}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/orders/42":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}, testCreds)

	order, err := client.CreateOrder(context.Background(), core.OrderRequest{
		Symbol: "BTC/USD",
		Type:   core.OrderLimit,
		Side:   core.Buy,
		Amount: precise.MustParse("0.1239"),
		Price:  precise.MustParse("100.005"),
	})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if !strings.Contains(body, `"amount":0.123`) || !strings.Contains(body, `"market":"BTC-USD"`) {
		t.Fatalf("request body = %s", body)
	}
	if order.ID != "42" || order.Symbol != "BTC/USD" || order.Side != core.Buy {
		t.Fatalf("order = %+v", order)
	}
	if order.Status != core.OrderOpen {
		t.Fatalf("status = %q, want open", order.Status)
	}
	if !order.Amount.Equal(precise.MustParse("0.123")) || !order.Price.Equal(precise.MustParse("100")) {
		t.Fatalf("amount/price = %s/%s, want 0.123/100", order.Amount, order.Price)
	}

	canceled, err := client.CancelOrder(context.Background(), "42", "BTC/USD")
	if err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}
	if canceled.Status != core.OrderCanceled || !canceled.Amount.Equal(order.Amount) {
		t.Fatalf("canceled = %+v", canceled)
	}
	cached := client.Orders()
	if len(cached) != 1 || cached[0].Status != core.OrderCanceled {
		t.Fatalf("Orders() = %+v, want one canceled order", cached)
	}
}

func TestCreateOrderRejectedLocallyBelowMinimum(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testMarkets))
	}, testCreds)

	_, err := client.CreateOrder(context.Background(), core.OrderRequest{
		Symbol: "BTC/USD",
		Type:   core.OrderLimit,
		Side:   core.Sell,
		Amount: precise.MustParse("0.0004"),
		Price:  precise.MustParse("100"),
	})
	if !errors.Is(err, core.ErrInvalidOrder) {
		t.Fatalf("CreateOrder() error = %v, want invalid order", err)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("requests = %d, want only the markets load", got)
	}
}

func TestUnknownSymbolIsBadRequest(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testMarkets))
	}, testCreds)

	_, err := client.FetchOrderBook(context.Background(), "ETH/USD", 5)
	if !errors.Is(err, core.ErrBadRequest) {
		t.Fatalf("FetchOrderBook() error = %v, want bad request", err)
	}
}

func TestFetchOrderBookTrimsToLimit(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets":
			_, _ = w.Write([]byte(testMarkets))
		default:
			_, _ = w.Write([]byte(`{"bids":[["101","1"],["100","2"],["99","3"]],"asks":[["102","1"]]}`))
		}
	}, auth.Credentials{})

	book, err := client.FetchOrderBook(context.Background(), "BTC/USD", 2)
	if err != nil {
		t.Fatalf("FetchOrderBook() error = %v", err)
	}
	if len(book.Bids) != 2 || len(book.Asks) != 1 {
		t.Fatalf("levels = %d/%d, want 2/1", len(book.Bids), len(book.Asks))
	}
	if !book.Bids[0].Price.Equal(precise.FromInt(101)) {
		t.Fatalf("best bid = %s, want 101", book.Bids[0].Price)
	}
}

func TestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	}, testCreds)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.FetchBalance(ctx)
	if !errors.Is(err, core.ErrNetwork) {
		t.Fatalf("FetchBalance() error = %v, want network error", err)
	}
}

func TestClosedClientRejectsCalls(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, testCreds)
	_ = client.Close()

	_, err := client.FetchBalance(context.Background())
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("FetchBalance() error = %v, want ErrClosed", err)
	}
	if got := hits.Load(); got != 0 {
		t.Fatalf("requests = %d, want 0", got)
	}
}

func TestNoncesIncreaseAcrossClientsSharingCredentials(t *testing.T) {
	var (
		mu     sync.Mutex
		nonces []int64
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.ParseInt(r.Header.Get("X-Nonce"), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		nonces = append(nonces, n)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"balances":[]}`))
	}))
	defer srv.Close()

	creds := auth.Credentials{APIKey: "lane-key", Secret: "s"}
	clients := make([]*Client, 2)
	for i := range clients {
		c, err := NewClient(testAdapter(srv.URL), Options{Credentials: creds})
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		clients[i] = c
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			if _, err := c.FetchBalance(context.Background()); err != nil {
				t.Errorf("FetchBalance() error = %v", err)
			}
		}(clients[i%2])
	}
	wg.Wait()

	if len(nonces) != 20 {
		t.Fatalf("requests = %d, want 20", len(nonces))
	}
	for i := 1; i < len(nonces); i++ {
		if nonces[i] <= nonces[i-1] {
			t.Fatalf("nonce %d = %d not greater than previous %d", i, nonces[i], nonces[i-1])
		}
	}
}

func TestSessionAutoAuthenticate(t *testing.T) {
	var logins atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			logins.Add(1)
			time.Sleep(20 * time.Millisecond)
			_, _ = w.Write([]byte(`{"accessToken":"tok-1"}`))
		case "/balance":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`[{"currency":"usd","free":"10","used":"5"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	session := auth.NewSession(time.Hour)
	adapter := Adapter{
		ID:      "sessionex",
		BaseURL: srv.URL,
		Endpoints: map[Operation]Endpoint{
			OpLogin:   {Method: http.MethodPost, Path: "/login", Encoding: auth.EncodeJSON},
			OpBalance: {Method: http.MethodGet, Path: "/balance", Private: true},
		},
		Signer:           auth.Bearer{Session: session},
		Session:          session,
		AutoAuthenticate: true,
	}
	client, err := NewClient(adapter, Options{Credentials: auth.Credentials{APIKey: "k"}})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := client.FetchBalance(context.Background())
			if err != nil {
				t.Errorf("FetchBalance() error = %v", err)
				return
			}
			if got := b.Get("USD").Total; !got.Equal(precise.FromInt(15)) {
				t.Errorf("USD total = %s, want 15", got)
			}
		}()
	}
	wg.Wait()

	if got := logins.Load(); got != 1 {
		t.Fatalf("logins = %d, want 1", got)
	}
	if !session.Valid() {
		t.Fatal("session not valid after login")
	}
}

func TestExpiredSessionFailsBeforeQueueing(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	session := auth.NewSession(time.Hour)
	adapter := Adapter{
		ID:      "sessionex-expired",
		BaseURL: srv.URL,
		Endpoints: map[Operation]Endpoint{
			OpBalance: {Method: http.MethodGet, Path: "/balance", Private: true},
		},
		Signer:    auth.Bearer{Session: session},
		Session:   session,
		RateLimit: 300 * time.Millisecond,
	}
	client, err := NewClient(adapter, Options{Credentials: auth.Credentials{APIKey: "k"}})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer client.Close()
	nonceBefore := client.lane.nonce.Last()

	start := time.Now()
	for i := 0; i < 2; i++ {
		_, err := client.FetchBalance(context.Background())
		if !errors.Is(err, core.ErrAuthentication) {
			t.Fatalf("FetchBalance() error = %v, want authentication error", err)
		}
	}
	if elapsed := time.Since(start); elapsed >= 300*time.Millisecond {
		t.Fatalf("two refused calls took %v, want no rate gate wait", elapsed)
	}
	if !client.gate.Last().IsZero() {
		t.Fatalf("gate.Last() = %v, want zero", client.gate.Last())
	}
	if got := client.lane.nonce.Last(); got != nonceBefore {
		t.Fatalf("nonce.Last() = %d, want %d", got, nonceBefore)
	}
	if got := hits.Load(); got != 0 {
		t.Fatalf("server hits = %d, want 0", got)
	}
}

func TestAdapterValidate(t *testing.T) {
	good := testAdapter("https://api.example.com")
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	noSigner := testAdapter("https://api.example.com")
	noSigner.Signer = nil
	if err := noSigner.Validate(); err == nil {
		t.Fatal("Validate() = nil for private endpoints without a signer")
	}

	badPath := testAdapter("https://api.example.com")
	badPath.Endpoints[OpTicker] = Endpoint{Method: http.MethodGet, Path: "ticker"}
	if err := badPath.Validate(); err == nil {
		t.Fatal("Validate() = nil for relative path")
	}

	badURL := testAdapter("not a url")
	if err := badURL.Validate(); err == nil {
		t.Fatal("Validate() = nil for invalid base url")
	}

	login := testAdapter("https://api.example.com")
	login.Endpoints[OpLogin] = Endpoint{Method: http.MethodPost, Path: "/login"}
	if err := login.Validate(); err == nil {
		t.Fatal("Validate() = nil for login without session")
	}
}

func TestNewClientOrderID(t *testing.T) {
	id := NewClientOrderID("My Bot!")
	if !strings.HasPrefix(id, "mybot-") {
		t.Fatalf("NewClientOrderID() = %q, want mybot- prefix", id)
	}
	if len(id) > maxClientOrderIDLen {
		t.Fatalf("len = %d, want <= %d", len(id), maxClientOrderIDLen)
	}
	if other := NewClientOrderID("My Bot!"); other == id {
		t.Fatalf("ids repeat: %q", id)
	}
	if got := NewClientOrderID(""); !strings.HasPrefix(got, "xc-") {
		t.Fatalf("NewClientOrderID(\"\") = %q, want xc- prefix", got)
	}
}
