package subscriber

import (
	"context"
	"time"

	"main/pkg/exception"

	"github.com/sony/gobreaker"
	"github.com/yanun0323/logs"
)

// BreakerConfig tunes the per-adapter connect circuit breaker.
type BreakerConfig struct {
	Window      time.Duration // sliding window for failure accounting
	Cooldown    time.Duration // open-state wait before a trial connect
	MinAttempts uint32        // attempts before the failure rate matters
	FailureRate float64       // open threshold, 0..1
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.MinAttempts == 0 {
		c.MinAttempts = 3
	}
	if c.FailureRate <= 0 || c.FailureRate > 1 {
		c.FailureRate = 0.6
	}
	return c
}

// Supervisor health-checks adapters on a fixed interval and reconnects
// the ones that report not-connected. Every connect attempt goes through
// a per-adapter circuit breaker; while the breaker is open, attempts are
// short-circuited without touching the adapter.
type Supervisor struct {
	adapters []Adapter
	breakers map[string]*gobreaker.CircuitBreaker
	interval time.Duration
}

// NewSupervisor builds a supervisor over the given adapters.
func NewSupervisor(adapters []Adapter, interval time.Duration, breaker BreakerConfig) *Supervisor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	breaker = breaker.withDefaults()

	breakers := make(map[string]*gobreaker.CircuitBreaker, len(adapters))
	for _, a := range adapters {
		platform := a.Platform()
		breakers[platform] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        platform,
			MaxRequests: 1,
			Interval:    breaker.Window,
			Timeout:     breaker.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < breaker.MinAttempts {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= breaker.FailureRate
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logs.Warnf("connect breaker %s: %s -> %s", name, from, to)
			},
		})
	}

	return &Supervisor{
		adapters: adapters,
		breakers: breakers,
		interval: interval,
	}
}

// Run supervises until the context is done. Adapters are disconnected on
// the way out.
func (s *Supervisor) Run(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.check(ctx)
	for {
		select {
		case <-ctx.Done():
			for _, a := range s.adapters {
				a.Disconnect()
			}
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *Supervisor) check(ctx context.Context) {
	for _, a := range s.adapters {
		if a.Connected() {
			continue
		}
		breaker := s.breakers[a.Platform()]
		_, err := breaker.Execute(func() (any, error) {
			return nil, a.Connect(ctx)
		})
		switch {
		case err == nil:
		case err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests:
			logs.Warnf("connect to %s skipped: %v", a.Platform(), exception.ErrSubscriberConnectRejected)
		default:
			logs.Errorf("connect to %s failed: %+v", a.Platform(), err)
		}
	}
}
