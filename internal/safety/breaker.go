package safety

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"exchange-core/internal/alert"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type circuitState string

const (
	circuitClosed   circuitState = "closed"
	circuitOpen     circuitState = "open"
	circuitHalfOpen circuitState = "half_open"
)

const (
	defaultCooldown          = 30 * time.Second
	defaultHalfOpenSuccesses = 1
)

// Breaker stops dispatch to an exchange after a run of consecutive outage
// failures (network errors, unavailability, maintenance). Once the cooldown
// passes, calls are let through again as trials; HalfOpenSuccesses clean
// trials close the circuit and one failed trial reopens it.
type Breaker struct {
	enabled bool
	name    string

	mu                sync.Mutex
	maxFailures       int
	failures          int
	state             circuitState
	openedAt          time.Time
	openErr           error
	halfOpenSuccess   int
	cooldown          time.Duration
	halfOpenSuccesses int

	alerter alert.Alerter
	now     func() time.Time
}

func NewBreaker(enabled bool, name string, maxFailures int) *Breaker {
	return &Breaker{
		enabled:           enabled,
		name:              name,
		maxFailures:       maxFailures,
		state:             circuitClosed,
		cooldown:          defaultCooldown,
		halfOpenSuccesses: defaultHalfOpenSuccesses,
		now:               time.Now,
	}
}

func (b *Breaker) SetRecovery(cooldown time.Duration, halfOpenSuccesses int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if halfOpenSuccesses < 1 {
		halfOpenSuccesses = defaultHalfOpenSuccesses
	}
	b.cooldown = cooldown
	b.halfOpenSuccesses = halfOpenSuccesses
}

func (b *Breaker) SetAlerter(alerter alert.Alerter) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerter = alerter
}

func (b *Breaker) active() bool {
	return b != nil && b.enabled && b.maxFailures > 0
}

// Allow returns an error wrapping ErrCircuitOpen while the circuit is open and
// cooling down.
func (b *Breaker) Allow() error {
	if !b.active() {
		return nil
	}
	b.mu.Lock()
	if b.state != circuitOpen {
		b.mu.Unlock()
		return nil
	}
	if b.now().Sub(b.openedAt) < b.cooldown {
		err := b.openErr
		if err == nil {
			err = fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
		}
		b.mu.Unlock()
		return err
	}
	b.state = circuitHalfOpen
	b.halfOpenSuccess = 0
	b.failures = 0
	b.openErr = nil
	alerter := b.alerter
	cooldown := b.cooldown
	b.mu.Unlock()

	log.Info().Str("event", "circuit_breaker_half_open").Str("adapter", b.name).Dur("cooldown", cooldown).Send()
	if alerter != nil {
		alerter.Important("circuit_breaker_half_open", map[string]string{
			"adapter":      b.name,
			"cooldown_sec": strconv.FormatInt(int64(cooldown/time.Second), 10),
		})
	}
	return nil
}

// Record feeds the outcome of one dispatch. Pass nil for anything that is not
// an outage; a rejected order is a healthy exchange.
func (b *Breaker) Record(err error) error {
	if !b.active() {
		return nil
	}
	b.mu.Lock()

	if err == nil {
		prevFailures, prevState := b.failures, b.state
		recovered := false
		switch b.state {
		case circuitHalfOpen:
			b.halfOpenSuccess++
			if b.halfOpenSuccess >= b.halfOpenSuccesses {
				recovered = true
				b.state = circuitClosed
				b.failures = 0
				b.openErr = nil
				b.openedAt = time.Time{}
				b.halfOpenSuccess = 0
			}
		case circuitClosed:
			if b.failures > 0 {
				recovered = true
				b.failures = 0
			}
		}
		alerter := b.alerter
		b.mu.Unlock()
		if recovered {
			log.Info().
				Str("event", "circuit_breaker_recovered").
				Str("adapter", b.name).
				Int("previous_consecutive_failures", prevFailures).
				Str("from_state", string(prevState)).
				Send()
			if alerter != nil && prevState == circuitHalfOpen {
				alerter.Important("circuit_breaker_recovered", map[string]string{
					"adapter":                       b.name,
					"previous_consecutive_failures": strconv.Itoa(prevFailures),
				})
			}
		}
		return nil
	}

	switch b.state {
	case circuitOpen:
		openErr := b.openErr
		b.mu.Unlock()
		return openErr
	case circuitHalfOpen:
		openErr := b.tripLocked(err, 1, "half_open_trial_failed")
		alerter := b.alerter
		b.mu.Unlock()
		b.reportTrip(alerter, "half_open", 1, err)
		return openErr
	}

	b.failures++
	failures := b.failures
	if failures < b.maxFailures {
		b.mu.Unlock()
		return nil
	}
	openErr := b.tripLocked(err, failures, "consecutive_failures")
	alerter := b.alerter
	b.mu.Unlock()
	b.reportTrip(alerter, "closed", failures, err)
	return openErr
}

func (b *Breaker) tripLocked(err error, failures int, reason string) error {
	b.state = circuitOpen
	b.openedAt = b.now()
	b.halfOpenSuccess = 0
	b.failures = failures
	b.openErr = fmt.Errorf("%w: %s failed %d consecutive times, cooldown=%s, reason=%s, last error: %v",
		ErrCircuitOpen, b.name, failures, b.cooldown, reason, err)
	return b.openErr
}

func (b *Breaker) reportTrip(alerter alert.Alerter, phase string, failures int, err error) {
	log.Error().
		Err(err).
		Str("event", "circuit_breaker_trip").
		Str("adapter", b.name).
		Str("phase", phase).
		Int("consecutive_failures", failures).
		Int("threshold", b.maxFailures).
		Send()
	if alerter != nil {
		alerter.Important("circuit_breaker_trip", map[string]string{
			"adapter":              b.name,
			"phase":                phase,
			"consecutive_failures": strconv.Itoa(failures),
			"threshold":            strconv.Itoa(b.maxFailures),
			"last_error":           err.Error(),
		})
	}
}

// CooldownRemaining is zero unless the circuit is open.
func (b *Breaker) CooldownRemaining() time.Duration {
	if !b.active() {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != circuitOpen {
		return 0
	}
	elapsed := b.now().Sub(b.openedAt)
	if elapsed >= b.cooldown {
		return 0
	}
	return b.cooldown - elapsed
}
