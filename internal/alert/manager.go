package alert

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// Alerter receives events an operator should see, such as rejected
// credentials or an exchange entering maintenance.
type Alerter interface {
	Important(event string, fields map[string]string)
}

const (
	defaultQueueSize          = 128
	defaultDropReportInterval = time.Minute
	defaultRepeatWindow       = 5 * time.Minute
	notifyTimeout             = 20 * time.Second
	maxRetryWait              = 30 * time.Second
)

type ManagerOptions struct {
	QueueSize          int
	DropReportInterval time.Duration
	// RepeatWindow holds back the same event for the same endpoint until the
	// window has passed; the next delivery carries the suppressed count.
	RepeatWindow time.Duration
}

// Manager delivers alerts from a single goroutine. Important never blocks:
// a repeat inside the window is folded into a counter and an event that
// does not fit the queue is dropped and reported in a periodic log summary.
type Manager struct {
	adapter  string
	account  string
	notifier Notifier
	opts     ManagerOptions
	now      func() time.Time

	queue chan alertEvent
	stop  chan struct{}
	done  chan struct{}
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	repeatMu sync.Mutex
	lastSent map[string]time.Time
	held     map[string]int

	dropped       atomic.Uint64
	droppedWindow atomic.Uint64
}

type alertEvent struct {
	event  string
	fields map[string]string
	at     time.Time
}

func NewManager(adapter, account string, notifier Notifier) *Manager {
	return NewManagerWithOptions(adapter, account, notifier, ManagerOptions{
		QueueSize:          defaultQueueSize,
		DropReportInterval: defaultDropReportInterval,
		RepeatWindow:       defaultRepeatWindow,
	})
}

// NewManagerWithOptions returns nil when notifier is nil.
func NewManagerWithOptions(adapter, account string, notifier Notifier, opts ManagerOptions) *Manager {
	if notifier == nil {
		return nil
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.DropReportInterval < 0 {
		opts.DropReportInterval = 0
	}
	if opts.RepeatWindow < 0 {
		opts.RepeatWindow = 0
	}
	m := &Manager{
		adapter:  adapter,
		account:  account,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
		queue:    make(chan alertEvent, opts.QueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		lastSent: make(map[string]time.Time),
		held:     make(map[string]int),
	}
	m.wg.Add(1)
	go m.deliver()
	if opts.DropReportInterval > 0 {
		m.wg.Add(1)
		go m.reportDrops()
	}
	go func() {
		m.wg.Wait()
		close(m.done)
	}()
	return m
}

func (m *Manager) Important(event string, fields map[string]string) {
	if m == nil || m.notifier == nil {
		return
	}
	now := m.now()
	repeats, ok := m.admit(event, fields["endpoint"], now)
	if !ok {
		return
	}
	ev := alertEvent{event: event, fields: cloneFields(fields, repeats), at: now}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- ev:
	default:
		total := m.dropped.Add(1)
		// The first drop of a window is logged at once, the rest go to the summary.
		if m.droppedWindow.Add(1) == 1 {
			log.Warn().
				Str("event", "alert_queue_dropped").
				Str("adapter", m.adapter).
				Str("target_event", event).
				Uint64("dropped_total", total).
				Int("queue_cap", cap(m.queue)).
				Send()
		}
	}
}

// admit applies the repeat window. It reports how many copies of the event
// were held back since the last delivery.
func (m *Manager) admit(event, endpoint string, now time.Time) (int, bool) {
	if m.opts.RepeatWindow == 0 {
		return 0, true
	}
	key := event + "|" + endpoint
	m.repeatMu.Lock()
	defer m.repeatMu.Unlock()
	if last, ok := m.lastSent[key]; ok && now.Sub(last) < m.opts.RepeatWindow {
		m.held[key]++
		return 0, false
	}
	m.lastSent[key] = now
	repeats := m.held[key]
	delete(m.held, key)
	return repeats, true
}

func (m *Manager) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) deliver() {
	defer m.wg.Done()
	for {
		select {
		case ev := <-m.queue:
			m.send(ev)
		case <-m.stop:
			for {
				select {
				case ev := <-m.queue:
					m.send(ev)
				default:
					m.logDropSummary()
					return
				}
			}
		}
	}
}

func (m *Manager) reportDrops() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.DropReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.logDropSummary()
		case <-m.stop:
			m.logDropSummary()
			return
		}
	}
}

func (m *Manager) logDropSummary() {
	window := m.droppedWindow.Swap(0)
	if window == 0 {
		return
	}
	log.Warn().
		Str("event", "alert_queue_dropped_report").
		Str("adapter", m.adapter).
		Uint64("dropped_since_last", window).
		Uint64("dropped_total", m.dropped.Load()).
		Dur("report_interval", m.opts.DropReportInterval).
		Send()
}

func (m *Manager) droppedStats() (uint64, uint64) {
	if m == nil {
		return 0, 0
	}
	return m.dropped.Load(), m.droppedWindow.Load()
}

// send makes one delivery attempt and, when the notifier asks for a short
// back-off, one retry.
func (m *Manager) send(ev alertEvent) {
	msg := m.buildMessage(ev)
	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		err := m.notifier.Notify(ctx, msg)
		cancel()
		if err == nil {
			return
		}
		wait, throttled := RetryAfter(err)
		if !throttled || attempt > 0 || wait > maxRetryWait {
			log.Error().Err(err).Str("event", "alert_notify_failed").Str("target_event", ev.event).Send()
			return
		}
		log.Warn().Str("event", "alert_notify_throttled").Dur("retry_after", wait).Send()
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-m.stop:
			timer.Stop()
			log.Error().Err(err).Str("event", "alert_notify_failed").Str("target_event", ev.event).Send()
			return
		}
	}
}

func (m *Manager) buildMessage(ev alertEvent) string {
	var b strings.Builder
	b.WriteString("[exchange-core] " + ev.event + "\n")
	b.WriteString("time: " + ev.at.UTC().Format(time.RFC3339) + "\n")
	b.WriteString("adapter: " + m.adapter + "\n")
	if m.account != "" {
		b.WriteString("account: " + m.account + "\n")
	}
	b.WriteString("event: " + ev.event)
	keys := make([]string, 0, len(ev.fields))
	for k := range ev.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n" + k + ": " + ev.fields[k])
	}
	return b.String()
}

func cloneFields(src map[string]string, repeats int) map[string]string {
	if len(src) == 0 && repeats == 0 {
		return nil
	}
	dst := make(map[string]string, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	if repeats > 0 {
		dst["repeats"] = strconv.Itoa(repeats)
	}
	return dst
}

// MaskKey shortens an API key to a label that is safe to put in alerts.
func MaskKey(key string) string {
	switch {
	case key == "":
		return ""
	case len(key) <= 8:
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
