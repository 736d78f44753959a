// Package registry builds exchange clients from configuration.
package registry

import (
	"fmt"
	"sort"
	"time"

	"exchange-core/internal/alert"
	"exchange-core/internal/config"
	"exchange-core/internal/exchange"
	"exchange-core/internal/exchange/auth"
	"exchange-core/internal/exchange/binance"
	"exchange-core/internal/exchange/bitflyer"
	"exchange-core/internal/exchange/swyftx"
	"exchange-core/internal/exchange/zonda"
	"exchange-core/internal/safety"
)

type builder func(cfg config.Config) exchange.Adapter

var builders = map[string]builder{
	binance.ID: func(cfg config.Config) exchange.Adapter {
		return binance.New(binance.Options{
			BaseURL:           cfg.RestBaseURL,
			RecvWindowMs:      cfg.RecvWindowMs,
			ClientOrderPrefix: cfg.ClientOrderPrefix,
		})
	},
	bitflyer.ID: func(cfg config.Config) exchange.Adapter {
		return bitflyer.New(bitflyer.Options{BaseURL: cfg.RestBaseURL})
	},
	zonda.ID: func(cfg config.Config) exchange.Adapter {
		return zonda.New(zonda.Options{BaseURL: cfg.RestBaseURL})
	},
	swyftx.ID: func(cfg config.Config) exchange.Adapter {
		return swyftx.New(swyftx.Options{BaseURL: cfg.RestBaseURL})
	},
}

// Names lists the registered adapter ids, sorted.
func Names() []string {
	out := make([]string, 0, len(builders))
	for name := range builders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Adapter returns the capability table named by cfg.Adapter with the
// configured fee defaults and authentication policy applied.
func Adapter(cfg config.Config) (exchange.Adapter, error) {
	build, ok := builders[cfg.Adapter]
	if !ok {
		return exchange.Adapter{}, fmt.Errorf("unknown adapter %q, want one of %v", cfg.Adapter, Names())
	}
	a := build(cfg)
	if cfg.Fees.MakerRate.Known() {
		a.Parse.Fees.Maker = cfg.Fees.MakerRate.Decimal
	}
	if cfg.Fees.TakerRate.Known() {
		a.Parse.Fees.Taker = cfg.Fees.TakerRate.Decimal
	}
	if cfg.AutoAuthenticate != nil && !*cfg.AutoAuthenticate {
		a.AutoAuthenticate = false
	}
	return a, nil
}

// Open builds a client for cfg. alerter may be nil.
func Open(cfg config.Config, alerter alert.Alerter) (*exchange.Client, error) {
	a, err := Adapter(cfg)
	if err != nil {
		return nil, err
	}
	breaker := safety.NewBreaker(cfg.CircuitBreaker.Enabled, a.ID, cfg.CircuitBreaker.MaxFailures)
	breaker.SetRecovery(time.Duration(cfg.CircuitBreaker.CooldownSec)*time.Second, cfg.CircuitBreaker.TrialPasses)
	return exchange.NewClient(a, exchange.Options{
		Credentials: auth.Credentials{
			APIKey:   cfg.Credentials.APIKey,
			Secret:   cfg.Credentials.Secret,
			Password: cfg.Credentials.Password,
			UID:      cfg.Credentials.UID,
			TwoFA:    cfg.Credentials.TwoFA,
		},
		Timeout:   time.Duration(cfg.HTTPTimeoutSec) * time.Second,
		RateLimit: time.Duration(cfg.RateLimitMs) * time.Millisecond,
		Alerter:   alerter,
		Breaker:   breaker,
	})
}
