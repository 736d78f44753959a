package alert

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// recorder collects messages. With gate set, Notify parks until gate closes.
type recorder struct {
	gate   chan struct{}
	parked chan struct{}
	once   sync.Once
	errs   []error

	mu   sync.Mutex
	msgs []string
	hits int
}

func newParkedRecorder() *recorder {
	return &recorder{gate: make(chan struct{}), parked: make(chan struct{})}
}

func (r *recorder) Notify(ctx context.Context, msg string) error {
	if r.parked != nil {
		r.once.Do(func() { close(r.parked) })
	}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return err
		}
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func (r *recorder) waitParked(t *testing.T) {
	t.Helper()
	select {
	case <-r.parked:
	case <-time.After(time.Second):
		t.Fatalf("notifier never started delivering")
	}
}

func closeManager(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestNewManagerWithoutNotifierIsNil(t *testing.T) {
	m := NewManager("binance", "", nil)
	if m != nil {
		t.Fatalf("NewManager(nil notifier) = %v, want nil", m)
	}
	m.Important("authentication_failed", nil)
	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("nil Close() error = %v", err)
	}
}

func TestManagerCloseFlushesQueuedEvents(t *testing.T) {
	rec := &recorder{}
	m := NewManager("binance", MaskKey("abcdefghijklmnopqrstuvwxyz"), rec)

	m.Important("authentication_failed", map[string]string{"endpoint": "balance"})
	m.Important("exchange_maintenance", map[string]string{"endpoint": "ticker"})
	closeManager(t, m)

	msgs := rec.messages()
	if len(msgs) != 2 {
		t.Fatalf("delivered = %d, want 2", len(msgs))
	}
	if !strings.Contains(msgs[0], "event: authentication_failed") {
		t.Fatalf("first message = %q, want authentication_failed", msgs[0])
	}
}

func TestManagerHoldsRepeatsInsideWindow(t *testing.T) {
	rec := &recorder{}
	m := NewManagerWithOptions("swyftx", "", rec, ManagerOptions{RepeatWindow: time.Minute})
	clock := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	m.Important("authentication_failed", map[string]string{"endpoint": "balance"})
	for i := 0; i < 3; i++ {
		m.Important("authentication_failed", map[string]string{"endpoint": "balance"})
	}
	m.Important("authentication_failed", map[string]string{"endpoint": "open_orders"})
	clock = clock.Add(2 * time.Minute)
	m.Important("authentication_failed", map[string]string{"endpoint": "balance"})
	closeManager(t, m)

	msgs := rec.messages()
	if len(msgs) != 3 {
		t.Fatalf("delivered = %d, want 3: %q", len(msgs), msgs)
	}
	if strings.Contains(msgs[0], "repeats:") {
		t.Fatalf("first delivery carries repeats: %q", msgs[0])
	}
	if !strings.Contains(msgs[1], "endpoint: open_orders") {
		t.Fatalf("second delivery = %q, want other endpoint", msgs[1])
	}
	if !strings.Contains(msgs[2], "repeats: 3") {
		t.Fatalf("third delivery = %q, want repeats: 3", msgs[2])
	}
}

func TestManagerImportantNeverBlocks(t *testing.T) {
	rec := newParkedRecorder()
	m := NewManagerWithOptions("binance", "", rec, ManagerOptions{QueueSize: 4})
	m.Important("seed", nil)
	rec.waitParked(t)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			m.Important("spam", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(300 * time.Millisecond):
		t.Fatalf("Important() blocked on a full queue")
	}

	close(rec.gate)
	closeManager(t, m)
}

func TestManagerCountsDroppedEvents(t *testing.T) {
	rec := newParkedRecorder()
	m := NewManagerWithOptions("binance", "", rec, ManagerOptions{QueueSize: 1})
	m.Important("seed", nil)
	rec.waitParked(t)

	m.Important("queue_fill", nil)
	for i := 0; i < 10; i++ {
		m.Important("spam", nil)
	}
	total, window := m.droppedStats()
	if total != 10 || window != 10 {
		t.Fatalf("droppedStats() = %d/%d, want 10/10", total, window)
	}

	close(rec.gate)
	closeManager(t, m)
	if total, window := m.droppedStats(); total != 10 || window != 0 {
		t.Fatalf("droppedStats() after close = %d/%d, want 10/0", total, window)
	}
}

func TestManagerLogsPeriodicDropSummary(t *testing.T) {
	logs := &lockedBuffer{}
	orig := log.Logger
	log.Logger = zerolog.New(logs)
	defer func() { log.Logger = orig }()

	rec := newParkedRecorder()
	m := NewManagerWithOptions("binance", "", rec, ManagerOptions{
		QueueSize:          1,
		DropReportInterval: 40 * time.Millisecond,
	})
	m.Important("seed", nil)
	rec.waitParked(t)
	m.Important("queue_fill", nil)
	for i := 0; i < 3; i++ {
		m.Important("spam", nil)
	}

	deadline := time.Now().Add(800 * time.Millisecond)
	for !strings.Contains(logs.String(), `"event":"alert_queue_dropped_report"`) {
		if time.Now().After(deadline) {
			t.Fatalf("no drop summary logged: %s", logs.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, window := m.droppedStats(); window != 0 {
		t.Fatalf("drop window = %d, want 0 after summary", window)
	}

	close(rec.gate)
	closeManager(t, m)
}

func TestManagerRetriesOnceWhenThrottled(t *testing.T) {
	rec := &recorder{errs: []error{&TelegramError{Status: 429, Code: 429, RetryAfter: 10 * time.Millisecond}}}
	m := NewManager("zonda", "", rec)
	m.Important("invalid_nonce", nil)
	deadline := time.Now().Add(time.Second)
	for len(rec.messages()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no delivery after retry")
		}
		time.Sleep(5 * time.Millisecond)
	}
	closeManager(t, m)

	if rec.hits != 2 {
		t.Fatalf("notify attempts = %d, want 2", rec.hits)
	}
}

func TestManagerMessageNamesAdapterAndAccount(t *testing.T) {
	rec := &recorder{}
	m := NewManager("zonda", MaskKey("pubkey-1234567890"), rec)
	m.Important("invalid_nonce", map[string]string{"endpoint": "private/info", "code": "502"})
	closeManager(t, m)

	msgs := rec.messages()
	if len(msgs) != 1 {
		t.Fatalf("delivered = %d, want 1", len(msgs))
	}
	for _, want := range []string{"adapter: zonda", "account: pubk...7890", "event: invalid_nonce", "code: 502\nendpoint: private/info"} {
		if !strings.Contains(msgs[0], want) {
			t.Fatalf("message missing %q, got %q", want, msgs[0])
		}
	}
}

func TestMaskKey(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"short":            "****",
		"abcdefghijklmnop": "abcd...mnop",
	}
	for in, want := range tests {
		if got := MaskKey(in); got != want {
			t.Fatalf("MaskKey(%q) = %q, want %q", in, got, want)
		}
	}
}
