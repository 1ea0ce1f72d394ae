package subscriber

import (
	"time"

	"main/internal/obs"
	"main/internal/sim"
	"main/pkg/exception"

	"github.com/yanun0323/errors"
)

// Config describes one configured subscriber adapter.
type Config struct {
	Kind       string
	Platform   string
	Addr       string // tcp address, websocket url or rest url
	Interval   time.Duration
	MaxUpdates int64
	Symbols    []string
}

// Factory builds an adapter from its configuration.
type Factory func(cfg Config, listener Listener, metrics *obs.AdapterMetrics) (Adapter, error)

// Registry maps configured kind strings to adapter factories. Kinds are
// validated at startup; there is no reflective loading.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds a registry with the built-in adapter kinds. engine
// may be nil when no "sim" adapter is configured.
func NewRegistry(engine *sim.Engine) *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.factories["sim"] = func(cfg Config, listener Listener, metrics *obs.AdapterMetrics) (Adapter, error) {
		if engine == nil {
			return nil, errors.New("sim adapter configured without a simulation engine")
		}
		return NewSimAdapter(cfg.Platform, engine, cfg.Interval, cfg.MaxUpdates, listener, metrics)
	}
	r.factories["tcp"] = func(cfg Config, listener Listener, metrics *obs.AdapterMetrics) (Adapter, error) {
		return NewTCPAdapter(cfg.Platform, cfg.Addr, cfg.Symbols, 0, listener, metrics)
	}
	r.factories["ws"] = func(cfg Config, listener Listener, metrics *obs.AdapterMetrics) (Adapter, error) {
		return NewWSAdapter(cfg.Platform, cfg.Addr, cfg.Symbols, listener, metrics)
	}
	r.factories["rest"] = func(cfg Config, listener Listener, metrics *obs.AdapterMetrics) (Adapter, error) {
		return NewRESTAdapter(cfg.Platform, cfg.Addr, cfg.Interval, listener, metrics)
	}
	return r
}

// Register adds a custom adapter kind.
func (r *Registry) Register(kind string, factory Factory) error {
	if r == nil || factory == nil || kind == "" {
		return exception.ErrInvalidArgument
	}
	if _, exists := r.factories[kind]; exists {
		return errors.Errorf("adapter kind already registered: %s", kind)
	}
	r.factories[kind] = factory
	return nil
}

// Build constructs the adapter for a config entry.
func (r *Registry) Build(cfg Config, listener Listener, metrics *obs.AdapterMetrics) (Adapter, error) {
	if r == nil {
		return nil, exception.ErrNilInstance
	}
	factory, ok := r.factories[cfg.Kind]
	if !ok {
		return nil, errors.Wrap(exception.ErrSubscriberUnknownKind, cfg.Kind)
	}
	return factory(cfg, listener, metrics)
}
