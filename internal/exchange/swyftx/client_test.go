package swyftx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange-core/internal/core"
	"exchange-core/internal/exchange"
	"exchange-core/internal/exchange/auth"
	"exchange-core/internal/precise"
)

const assets = `[
	{"id":1,"code":"AUD","name":"Australian Dollars","minimum_order":"0.01","minimum_order_increment":"0.01","price_scale":2},
	{"id":3,"code":"BTC","name":"Bitcoin","minimum_order":"0.0001","minimum_order_increment":"0.00000001","price_scale":2},
	{"id":5,"code":"ETH","name":"Ethereum","minimum_order":"0.001","minimum_order_increment":"0.000001","price_scale":2}
]`

type venue struct {
	logins atomic.Int64
	bearer atomic.Int64
}

func newClient(t *testing.T, handler http.HandlerFunc) (*exchange.Client, *venue) {
	t.Helper()
	v := &venue{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh/":
			v.logins.Add(1)
			var body map[string]any
			raw, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, "key", body["apiKey"])
			_, _ = w.Write([]byte(`{"accessToken":"tok-1","scope":"app.account.read"}`))
			return
		case "/markets/assets/":
			_, _ = w.Write([]byte(assets))
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"error":"Unauthorized","message":"Invalid authentication credentials"}}`))
			return
		}
		v.bearer.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	c, err := exchange.NewClient(New(Options{BaseURL: srv.URL}), exchange.Options{
		Credentials: auth.Credentials{APIKey: "key"},
		RateLimit:   time.Millisecond,
	})
	require.NoError(t, err)
	_, err = c.LoadMarkets(context.Background(), false)
	require.NoError(t, err)
	return c, v
}

func TestLoadMarketsQuotesEveryAssetInAUD(t *testing.T) {
	c, _ := newClient(t, nil)

	set, err := c.LoadMarkets(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/AUD", "ETH/AUD"}, set.Symbols())

	m, ok := set.BySymbol("BTC/AUD")
	require.True(t, ok)
	assert.Equal(t, "BTC", m.ID)
	assert.True(t, m.Precision.Price.Equal(precise.MustParse("0.01")), "price tick %s", m.Precision.Price)
	assert.True(t, m.Precision.Amount.Equal(precise.MustParse("0.00000001")), "amount tick %s", m.Precision.Amount)
	assert.True(t, m.Limits.Amount.Min.Equal(precise.MustParse("0.0001")))
	assert.True(t, m.Fees.Taker.Equal(precise.MustParse("0.006")))
}

func TestBalanceLogsInOnceAndMapsAssetIDs(t *testing.T) {
	c, v := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/balance/", r.URL.Path)
		_, _ = w.Write([]byte(`[{"assetId":1,"availableBalance":"100.5"},{"assetId":3,"availableBalance":"0.25"}]`))
	})

	for i := 0; i < 3; i++ {
		b, err := c.FetchBalance(context.Background())
		require.NoError(t, err)
		assert.True(t, b.Get("AUD").Free.Equal(precise.MustParse("100.5")))
		assert.True(t, b.Get("BTC").Total.Equal(precise.MustParse("0.25")))
		assert.True(t, b.Get("BTC").Used.IsZero())
	}
	assert.Equal(t, int64(1), v.logins.Load())
	assert.Equal(t, int64(3), v.bearer.Load())
}

func TestLimitSellInvertsTriggerAndCancelKeepsOrder(t *testing.T) {
	var sent map[string]any
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/orders/":
			raw, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(raw, &sent))
			_, _ = w.Write([]byte(`{"orderUuid":"ord_1","order":{"order_type":2,"primary_asset":1,"secondary_asset":3,
				"quantity_asset":3,"quantity":0.01,"trigger":0.00002,"status":1,
				"created_time":1623296438209,"updated_time":1623296438200,"amount":0.01,"total":0,"rate":0.00002}}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/orders/ord_1/":
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	order, err := c.CreateOrder(context.Background(), core.OrderRequest{
		Symbol: "BTC/AUD",
		Type:   core.OrderLimit,
		Side:   core.Sell,
		Amount: precise.MustParse("0.01"),
		Price:  precise.FromInt(50000),
	})
	require.NoError(t, err)
	assert.Equal(t, "AUD", sent["primary"])
	assert.Equal(t, "BTC", sent["secondary"])
	assert.Equal(t, "BTC", sent["assetQuantity"])
	assert.Equal(t, "2", sent["orderType"])
	assert.Equal(t, 0.00002, sent["trigger"])
	assert.Equal(t, 0.01, sent["quantity"])

	assert.Equal(t, "ord_1", order.ID)
	assert.Equal(t, "BTC/AUD", order.Symbol)
	assert.Equal(t, core.Sell, order.Side)
	assert.Equal(t, core.OrderLimit, order.Type)
	assert.Equal(t, core.OrderOpen, order.Status)
	assert.True(t, order.Price.Equal(precise.FromInt(50000)), "price %s", order.Price)

	canceled, err := c.CancelOrder(context.Background(), "ord_1", "BTC/AUD")
	require.NoError(t, err)
	assert.Equal(t, core.OrderCanceled, canceled.Status)
	assert.Equal(t, core.Sell, canceled.Side)
	assert.True(t, canceled.Amount.Equal(precise.MustParse("0.01")))
}

func TestLimitBuyIsSizedInAUD(t *testing.T) {
	var sent map[string]any
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &sent))
		_, _ = w.Write([]byte(`{"orderUuid":"ord_2","order":{"order_type":1,"secondary_asset":3,"status":5,"trigger":40000,"amount":0.02}}`))
	})

	order, err := c.CreateOrder(context.Background(), core.OrderRequest{
		Symbol: "BTC/AUD",
		Type:   core.OrderLimit,
		Side:   core.Buy,
		Amount: precise.MustParse("0.02"),
		Price:  precise.FromInt(40000),
	})
	require.NoError(t, err)
	assert.Equal(t, "AUD", sent["assetQuantity"])
	assert.Equal(t, "1", sent["orderType"])
	assert.Equal(t, float64(800), sent["quantity"])
	assert.Equal(t, float64(40000), sent["trigger"])
	assert.Equal(t, core.Buy, order.Side)
	assert.Equal(t, core.OrderOpen, order.Status)
}

func TestFetchOpenOrdersKeepsRestingOrdersOfSymbol(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/", r.URL.Path)
		_, _ = w.Write([]byte(`{"orders":[
			{"orderUuid":"a","order_type":1,"secondary_asset":3,"status":1,"trigger":49000,"amount":0.1},
			{"orderUuid":"b","order_type":1,"secondary_asset":3,"status":4,"trigger":48000,"amount":0.1},
			{"orderUuid":"c","order_type":3,"secondary_asset":5,"status":3,"amount":1}
		],"recordCount":3}`))
	})

	orders, err := c.FetchOpenOrders(context.Background(), "BTC/AUD")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "a", orders[0].ID)
	assert.True(t, orders[0].Price.Equal(precise.FromInt(49000)))

	all, err := c.FetchOpenOrders(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFailuresAreClassified(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"exact message", http.StatusBadRequest, `{"error":{"error":"InsufficientFunds","message":"Insufficient balance"}}`, core.ErrInsufficientFunds},
		{"broad message", http.StatusBadRequest, `{"error":{"error":"NotFound","message":"Order Not found on book"}}`, core.ErrOrderNotFound},
		{"status only", http.StatusTooManyRequests, `{"error":{"error":"TooMany","message":"slow down"}}`, core.ErrRateLimitExceeded},
		{"forbidden", http.StatusForbidden, `{"error":{"error":"Forbidden","message":"scope"}}`, core.ErrAuthentication},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.FetchOrder(context.Background(), "x", "BTC/AUD")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestOrderBookIsNotSupported(t *testing.T) {
	c, v := newClient(t, nil)
	_, err := c.FetchOrderBook(context.Background(), "BTC/AUD", 10)
	assert.ErrorIs(t, err, core.ErrNotSupported)
	assert.Zero(t, v.bearer.Load())
}
