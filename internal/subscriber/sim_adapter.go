package subscriber

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"main/internal/obs"
	"main/internal/sim"
	"main/pkg/exception"

	"github.com/yanun0323/logs"
)

// SimAdapter drives the stochastic engine on a fixed interval and feeds
// the generated ticks to the listener as if they arrived from a venue.
type SimAdapter struct {
	mu         sync.Mutex
	engine     *sim.Engine
	listener   Listener
	metrics    *obs.AdapterMetrics
	platform   string
	interval   time.Duration
	maxUpdates int64
	status     atomic.Uint32
	exhausted  atomic.Bool
	cancel     context.CancelFunc
}

// NewSimAdapter builds the simulation adapter. maxUpdates of 0 runs
// unbounded.
func NewSimAdapter(platform string, engine *sim.Engine, interval time.Duration, maxUpdates int64, listener Listener, metrics *obs.AdapterMetrics) (*SimAdapter, error) {
	if listener == nil {
		return nil, exception.ErrSubscriberNilListener
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &SimAdapter{
		engine:     engine,
		listener:   listener,
		metrics:    metrics,
		platform:   platform,
		interval:   interval,
		maxUpdates: maxUpdates,
	}, nil
}

func (a *SimAdapter) Platform() string { return a.platform }

func (a *SimAdapter) Status() Status { return Status(a.status.Load()) }

func (a *SimAdapter) Connected() bool { return a.Status() == StatusConnected }

// Connect starts the tick loop. Calling it while connected is a no-op.
func (a *SimAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Connected() || a.exhausted.Load() {
		return nil
	}
	a.status.Store(uint32(StatusConnecting))

	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.status.Store(uint32(StatusConnected))
	a.metrics.SetConnected(true)
	a.listener.OnRateStatus(a.platform, true)

	go a.loop(loopCtx)
	return nil
}

// Disconnect stops the tick loop and notifies the listener.
func (a *SimAdapter) Disconnect() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (a *SimAdapter) loop(ctx context.Context) {
	defer func() {
		a.status.Store(uint32(StatusDisconnected))
		a.metrics.SetConnected(false)
		a.listener.OnRateStatus(a.platform, false)
	}()

	em := newEmitter(a.listener, a.platform)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	var updates int64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, tick := range a.engine.Tick(now.UTC()) {
				a.metrics.IncReceived()
				em.emit(tick)
			}
			updates++
			if a.maxUpdates > 0 && updates >= a.maxUpdates {
				a.exhausted.Store(true)
				logs.Infof("sim adapter %s reached %d updates, stopping", a.platform, updates)
				return
			}
		}
	}
}
