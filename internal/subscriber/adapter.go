package subscriber

import (
	"context"

	"main/internal/model"
)

// Status is the adapter connection state.
type Status uint8

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "disconnected"
	}
}

// Listener receives normalized ticks and lifecycle events from adapters.
// Callbacks run on the adapter's receive goroutine.
type Listener interface {
	// OnRateAvailable fires for the first tick of a symbol on a platform.
	OnRateAvailable(platform string, tick model.RawTick)
	// OnRateUpdate fires for every subsequent tick.
	OnRateUpdate(platform string, tick model.RawTick)
	// OnRateStatus fires on connect/disconnect transitions.
	OnRateStatus(platform string, connected bool)
	// OnRateError fires when inbound data cannot be processed.
	OnRateError(platform string, err error)
}

// Adapter wraps one tick source behind a uniform connect/disconnect
// surface. Connect is idempotent while connected. Disconnect unblocks the
// receive loop and notifies the listener.
type Adapter interface {
	Platform() string
	Connect(ctx context.Context) error
	Disconnect()
	Connected() bool
	Status() Status
}

// emitter tracks first-tick-per-symbol so adapters report availability
// before updates, the way listeners expect.
type emitter struct {
	listener Listener
	platform string
	seen     map[string]struct{}
}

func newEmitter(listener Listener, platform string) *emitter {
	return &emitter{
		listener: listener,
		platform: platform,
		seen:     make(map[string]struct{}),
	}
}

func (e *emitter) emit(tick model.RawTick) {
	if tick.Platform == "" {
		tick.Platform = e.platform
	}
	if _, ok := e.seen[tick.Symbol]; !ok {
		e.seen[tick.Symbol] = struct{}{}
		e.listener.OnRateAvailable(e.platform, tick)
		return
	}
	e.listener.OnRateUpdate(e.platform, tick)
}
