package exchange

import (
	"context"
	"sync"

	"exchange-core/internal/exchange/auth"
)

// lane serializes nonce assignment and dispatch for one adapter and API key.
// It is a one-slot channel rather than a mutex so waiting honors ctx.
type lane struct {
	slot  chan struct{}
	nonce *auth.Nonce
}

var (
	lanesMu sync.Mutex
	lanes   = map[string]*lane{}
)

func laneFor(adapterID, apiKey string) *lane {
	key := adapterID + "\x00" + apiKey
	lanesMu.Lock()
	defer lanesMu.Unlock()
	l, ok := lanes[key]
	if !ok {
		l = &lane{slot: make(chan struct{}, 1), nonce: auth.NewNonce()}
		lanes[key] = l
	}
	return l
}

func (l *lane) acquire(ctx context.Context) error {
	select {
	case l.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *lane) release() { <-l.slot }
