package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"exchange-core/internal/alert"
	"exchange-core/internal/core"
	"exchange-core/internal/exchange/auth"
	"exchange-core/internal/metrics"
	"exchange-core/internal/parse"
	"exchange-core/internal/safety"
)

const (
	defaultTimeout  = 15 * time.Second
	maxFeedbackText = 512
)

var ErrClosed = errors.New("client closed")

type Options struct {
	Credentials auth.Credentials
	// Timeout applies when the caller's context has no deadline.
	Timeout time.Duration
	// RateLimit overrides the adapter's call spacing when positive.
	RateLimit time.Duration
	Transport Transport
	Alerter   alert.Alerter
	Breaker   *safety.Breaker
}

// Client runs operations against one adapter with one set of credentials.
// It is safe for concurrent use. Private calls made with the same adapter and
// API key are serialized process-wide so nonces reach the venue in order.
type Client struct {
	adapter   Adapter
	creds     auth.Credentials
	timeout   time.Duration
	transport Transport
	alerter   alert.Alerter
	breaker   *safety.Breaker
	pipeline  *parse.Pipeline
	gate      *safety.RateGate
	lane      *lane

	flight singleflight.Group
	closed atomic.Bool

	ordersMu sync.RWMutex
	orders   map[string]core.Order
}

func NewClient(adapter Adapter, opts Options) (*Client, error) {
	if err := adapter.Validate(); err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := opts.Transport
	if transport == nil {
		transport = NewHTTPTransport(timeout)
	}
	interval := adapter.RateLimit
	if opts.RateLimit > 0 {
		interval = opts.RateLimit
	}
	gate := safety.NewRateGate(interval)
	gate.Observe(func(d time.Duration) {
		metrics.RateGateWait.WithLabelValues(adapter.ID).Observe(d.Seconds())
	})
	if opts.Breaker != nil && opts.Alerter != nil {
		opts.Breaker.SetAlerter(opts.Alerter)
	}
	return &Client{
		adapter:   adapter,
		creds:     opts.Credentials,
		timeout:   timeout,
		transport: transport,
		alerter:   opts.Alerter,
		breaker:   opts.Breaker,
		pipeline:  parse.NewPipeline(adapter.Parse),
		gate:      gate,
		lane:      laneFor(adapter.ID, opts.Credentials.APIKey),
		orders:    make(map[string]core.Order),
	}, nil
}

func (c *Client) ID() string                { return c.adapter.ID }
func (c *Client) Has(op Operation) bool     { return c.adapter.Has(op) }
func (c *Client) Pipeline() *parse.Pipeline { return c.pipeline }

// Close stops new calls. Calls already in flight run to completion.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if t, ok := c.transport.(*HTTPTransport); ok {
		t.CloseIdle()
	}
	return nil
}

func (c *Client) fail(kind error, op Operation, cause error) error {
	return &core.Error{Kind: kind, Adapter: c.adapter.ID, Endpoint: string(op), Err: cause}
}

// call runs one operation and returns its decoded payload.
func (c *Client) call(ctx context.Context, op Operation, args Args) (any, error) {
	if c.closed.Load() {
		return nil, c.fail(core.ErrNetwork, op, ErrClosed)
	}
	ep, ok := c.adapter.Endpoints[op]
	if !ok {
		metrics.ObserveRequest(c.adapter.ID, string(op), metrics.OutcomeRejected, 0)
		return nil, c.fail(core.ErrNotSupported, op, fmt.Errorf("%s has no %s endpoint", c.adapter.ID, op))
	}

	var signer auth.Signer = auth.Public{}
	if ep.Private {
		signer = c.adapter.Signer
		if err := c.creds.Check(signer.Required()); err != nil {
			metrics.ObserveRequest(c.adapter.ID, string(op), metrics.OutcomeRejected, 0)
			return nil, c.fail(core.ErrAuthentication, op, err)
		}
		if c.adapter.Session != nil && c.adapter.AutoAuthenticate && !c.adapter.Session.Valid() {
			if err := c.Authenticate(ctx); err != nil {
				return nil, err
			}
		}
		if r, ok := signer.(auth.Readier); ok {
			if err := r.Ready(); err != nil {
				metrics.ObserveRequest(c.adapter.ID, string(op), metrics.OutcomeRejected, 0)
				return nil, c.fail(core.ErrAuthentication, op, err)
			}
		}
	}

	params, err := ep.params(args)
	if err != nil {
		metrics.ObserveRequest(c.adapter.ID, string(op), metrics.OutcomeRejected, 0)
		kind := core.KindOf(err)
		if kind == nil {
			kind = core.ErrBadRequest
		}
		return nil, c.fail(kind, op, err)
	}
	req := auth.Request{
		Method:   ep.Method,
		BaseURL:  c.adapter.BaseURL,
		Path:     ep.path(args),
		Params:   params,
		Encoding: ep.Encoding,
	}

	if _, has := ctx.Deadline(); !has {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.breaker.Allow(); err != nil {
		metrics.ObserveRequest(c.adapter.ID, string(op), metrics.OutcomeRejected, 0)
		return nil, c.fail(core.ErrExchangeNotAvailable, op, err)
	}

	var nonce int64
	if ep.Private {
		waitStart := time.Now()
		if err := c.lane.acquire(ctx); err != nil {
			metrics.ObserveRequest(c.adapter.ID, string(op), metrics.OutcomeCancelled, 0)
			return nil, c.fail(core.ErrNetwork, op, err)
		}
		defer c.lane.release()
		metrics.LaneWait.WithLabelValues(c.adapter.ID).Observe(time.Since(waitStart).Seconds())
	}
	if err := c.gate.Acquire(ctx); err != nil {
		metrics.ObserveRequest(c.adapter.ID, string(op), metrics.OutcomeCancelled, 0)
		return nil, c.fail(core.ErrNetwork, op, err)
	}
	if ep.Private {
		nonce = c.lane.nonce.Next()
	}
	signed, err := signer.Sign(req, c.creds, nonce)
	if err != nil {
		metrics.ObserveRequest(c.adapter.ID, string(op), metrics.OutcomeRejected, 0)
		kind := core.KindOf(err)
		if kind == nil {
			kind = core.ErrAuthentication
		}
		return nil, c.fail(kind, op, err)
	}

	start := time.Now()
	resp, err := c.transport.RoundTrip(ctx, signed)
	elapsed := time.Since(start)
	if err != nil {
		outcome := metrics.OutcomeNetwork
		if errors.Is(err, context.Canceled) {
			outcome = metrics.OutcomeCancelled
		} else {
			_ = c.breaker.Record(err)
		}
		metrics.ObserveRequest(c.adapter.ID, string(op), outcome, elapsed)
		metrics.ObserveError(c.adapter.ID, core.KindName(core.ErrNetwork))
		log.Error().Err(err).
			Str("event", "request_failed").
			Str("adapter", c.adapter.ID).
			Str("endpoint", string(op)).
			Dur("dur", elapsed).
			Send()
		return nil, c.fail(core.ErrNetwork, op, err)
	}
	log.Debug().
		Str("event", "request_dispatched").
		Str("adapter", c.adapter.ID).
		Str("endpoint", string(op)).
		Int("status", resp.Status).
		Dur("dur", elapsed).
		Send()

	raw, err := c.decode(op, resp)
	if err != nil {
		c.afterError(op, err, elapsed)
		return nil, err
	}
	_ = c.breaker.Record(nil)
	metrics.ObserveRequest(c.adapter.ID, string(op), metrics.OutcomeOK, elapsed)

	raw = unwrap(raw, ep.Result)
	if ep.Reshape != nil {
		raw = ep.Reshape(raw)
	}
	return raw, nil
}

// decode turns a response into a payload or a classified error.
func (c *Client) decode(op Operation, resp Response) (any, error) {
	detect := c.adapter.Failure
	if detect == nil {
		detect = DefaultFailure
	}
	text := strings.TrimSpace(string(resp.Body))
	var raw any
	if text != "" {
		decoded, err := parse.Decode(resp.Body)
		if err != nil {
			if resp.Status >= 200 && resp.Status < 300 {
				return nil, c.fail(core.ErrParse, op, err)
			}
			return nil, c.exchangeError(op, resp.Status, Failure{Message: truncate(text)})
		}
		raw = decoded
	}
	if f, failed := detect(resp.Status, raw); failed {
		if f.Message == "" && f.Code == "" {
			f.Message = truncate(text)
		}
		return nil, c.exchangeError(op, resp.Status, f)
	}
	return raw, nil
}

func (c *Client) exchangeError(op Operation, status int, f Failure) error {
	feedback := f.Message
	if feedback == "" {
		feedback = fmt.Sprintf("http status %d", status)
	}
	return &core.Error{
		Kind:     c.adapter.Errors.Classify(status, f),
		Adapter:  c.adapter.ID,
		Endpoint: string(op),
		Code:     f.Code,
		Feedback: feedback,
	}
}

func (c *Client) afterError(op Operation, err error, elapsed time.Duration) {
	kind := core.KindOf(err)
	metrics.ObserveRequest(c.adapter.ID, string(op), metrics.OutcomeExchange, elapsed)
	metrics.ObserveError(c.adapter.ID, core.KindName(err))

	outage := errors.Is(err, core.ErrExchangeNotAvailable) || errors.Is(err, core.ErrOnMaintenance)
	if outage {
		_ = c.breaker.Record(err)
	} else {
		_ = c.breaker.Record(nil)
	}

	log.Warn().Err(err).
		Str("event", "exchange_error").
		Str("adapter", c.adapter.ID).
		Str("endpoint", string(op)).
		Str("kind", core.KindName(err)).
		Send()

	var event string
	switch kind {
	case core.ErrAuthentication:
		event = "authentication_failed"
		if c.adapter.Session != nil {
			c.adapter.Session.Clear()
		}
	case core.ErrInvalidNonce:
		event = "invalid_nonce"
	case core.ErrOnMaintenance:
		event = "exchange_maintenance"
	}
	if event != "" && c.alerter != nil {
		fields := map[string]string{
			"adapter":  c.adapter.ID,
			"account":  alert.MaskKey(c.creds.APIKey),
			"endpoint": string(op),
		}
		var ce *core.Error
		if errors.As(err, &ce) {
			fields["code"] = ce.Code
			fields["feedback"] = ce.Feedback
		}
		c.alerter.Important(event, fields)
	}
}

// Authenticate logs in on venues with a session. On other venues it only
// checks that the credentials the signer needs are present.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.adapter.Session == nil {
		if c.adapter.Signer == nil {
			return nil
		}
		if err := c.creds.Check(c.adapter.Signer.Required()); err != nil {
			return c.fail(core.ErrAuthentication, OpLogin, err)
		}
		return nil
	}
	_, err, _ := c.flight.Do("login", func() (any, error) {
		if c.adapter.Session.Valid() {
			return nil, nil
		}
		params, err := auth.LoginParams(c.creds, time.Now())
		if err != nil {
			return nil, c.fail(core.ErrAuthentication, OpLogin, err)
		}
		raw, err := c.call(ctx, OpLogin, Args{Params: params})
		if err != nil {
			return nil, err
		}
		d, _ := parse.AsDict(raw)
		keys := c.adapter.TokenKeys
		if len(keys) == 0 {
			keys = parse.Keys{"accessToken", "access_token", "token"}
		}
		if err := c.adapter.Session.Accept(parse.SafeStringN(d, keys, "")); err != nil {
			return nil, c.fail(core.ErrAuthentication, OpLogin, err)
		}
		log.Info().Str("event", "session_established").Str("adapter", c.adapter.ID).
			Time("expires", c.adapter.Session.Expiry()).Send()
		return nil, nil
	})
	return err
}

// remember stores the latest snapshot of an order, replacing any earlier one.
func (c *Client) remember(orders ...core.Order) {
	c.ordersMu.Lock()
	defer c.ordersMu.Unlock()
	for _, o := range orders {
		if o.ID != "" {
			c.orders[o.ID] = o
		}
	}
}

// Orders returns the cached orders, oldest first.
func (c *Client) Orders() []core.Order {
	c.ordersMu.RLock()
	out := make([]core.Order, 0, len(c.orders))
	for _, o := range c.orders {
		out = append(out, o)
	}
	c.ordersMu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func unwrap(raw any, keys parse.Keys) any {
	d, ok := parse.AsDict(raw)
	if !ok {
		return raw
	}
	for _, key := range keys {
		if v, ok := d[key]; ok && v != nil {
			return v
		}
	}
	return raw
}

func truncate(s string) string {
	if len(s) > maxFeedbackText {
		return s[:maxFeedbackText]
	}
	return s
}
