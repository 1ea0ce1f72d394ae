package coord

import (
	"sync"
	"time"

	"main/internal/bus"
	"main/internal/formula"
	"main/internal/model"
	"main/internal/obs"

	"github.com/yanun0323/logs"
)

// Sink receives every raw and derived rate, e.g. the distribution server.
// Push must not block; slow consumers handle their own shedding.
type Sink interface {
	Push(rate model.Rate)
}

// Coordinator is the center of the pipeline: it caches the latest raw rate
// per (platform, symbol), recomputes every derived rate whose dependency
// set includes an updated symbol, and forwards all rates to sinks and the
// publisher queue.
//
// Recalculation runs inline on the updating goroutine. Concurrent updates
// to different dependencies of the same calc may interleave, so a derived
// rate can briefly reflect a stale dependency. That relaxed consistency is
// deliberate.
type Coordinator struct {
	mu            sync.RWMutex
	engine        *formula.Engine
	defs          []model.CalcDef
	bySymbol      map[string][]int
	platforms     map[string]map[string]model.Rate
	firstPlatform map[string]string
	latest        map[string]model.Rate
	sinks         []Sink
	queue         *bus.Queue
	metrics       *obs.Metrics
}

// New builds a coordinator. queue and metrics may be nil.
func New(engine *formula.Engine, queue *bus.Queue, metrics *obs.Metrics, sinks ...Sink) *Coordinator {
	return &Coordinator{
		engine:        engine,
		bySymbol:      make(map[string][]int),
		platforms:     make(map[string]map[string]model.Rate),
		firstPlatform: make(map[string]string),
		latest:        make(map[string]model.Rate),
		sinks:         sinks,
		queue:         queue,
		metrics:       metrics,
	}
}

// AddSink registers another rate consumer. Sinks added after startup
// only see rates forwarded from then on.
func (c *Coordinator) AddSink(sink Sink) {
	if sink == nil {
		return
	}
	c.mu.Lock()
	c.sinks = append(c.sinks, sink)
	c.mu.Unlock()
}

// SetCalcDefs installs the derived-rate definitions. Definitions whose
// formulas reference tokens outside their dependency set or constants are
// rejected and logged; the rest stay active.
func (c *Coordinator) SetCalcDefs(defs []model.CalcDef) {
	accepted := make([]model.CalcDef, 0, len(defs))
	for _, def := range defs {
		if err := c.engine.Validate(def.BidFormula, def.DependsOn, def.Consts); err != nil {
			logs.Errorf("calc %s bid formula rejected: %+v", def.RateName, err)
			continue
		}
		if err := c.engine.Validate(def.AskFormula, def.DependsOn, def.Consts); err != nil {
			logs.Errorf("calc %s ask formula rejected: %+v", def.RateName, err)
			continue
		}
		accepted = append(accepted, def)
	}

	index := make(map[string][]int)
	for i, def := range accepted {
		for _, symbol := range def.DependsOn {
			index[symbol] = append(index[symbol], i)
		}
	}

	c.mu.Lock()
	c.defs = accepted
	c.bySymbol = index
	c.mu.Unlock()
	logs.Infof("coordinator: %d calc defs active", len(accepted))
}

// Latest returns the last cached rate by name, raw or derived.
func (c *Coordinator) Latest(name string) (model.Rate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rate, ok := c.latest[name]
	return rate, ok
}

// OnRateAvailable handles the first tick of a symbol from an adapter.
func (c *Coordinator) OnRateAvailable(platform string, tick model.RawTick) {
	c.OnRateUpdate(platform, tick)
}

// OnRateUpdate caches the tick, forwards the raw rate, and recalculates
// every dependent derived rate.
func (c *Coordinator) OnRateUpdate(platform string, tick model.RawTick) {
	if c == nil {
		return
	}
	rate := model.FromTick(tick)
	if !rate.Valid() {
		logs.Warnf("coordinator: dropping invalid tick %s from %s", tick.Symbol, platform)
		return
	}

	c.mu.Lock()
	bySymbol := c.platforms[tick.Symbol]
	if bySymbol == nil {
		bySymbol = make(map[string]model.Rate)
		c.platforms[tick.Symbol] = bySymbol
		c.firstPlatform[tick.Symbol] = platform
	}
	bySymbol[platform] = rate
	c.latest[tick.Symbol] = rate
	dependents := c.bySymbol[tick.Symbol]
	c.mu.Unlock()

	c.forward(rate, platform, false)

	for _, idx := range dependents {
		c.recalculate(idx)
	}
}

// OnRateStatus records adapter connectivity transitions.
func (c *Coordinator) OnRateStatus(platform string, connected bool) {
	logs.Infof("adapter %s connected=%t", platform, connected)
}

// OnRateError records a tick delivery failure. The pipeline keeps running.
func (c *Coordinator) OnRateError(platform string, err error) {
	logs.Errorf("adapter %s error: %+v", platform, err)
}

// recalculate evaluates one calc def. Missing dependency data defers the
// recalculation silently; evaluation errors are logged per calc and never
// block other calcs or future ticks.
func (c *Coordinator) recalculate(idx int) {
	c.mu.RLock()
	if idx >= len(c.defs) {
		c.mu.RUnlock()
		return
	}
	def := c.defs[idx]
	values, ok := c.gatherLocked(def)
	c.mu.RUnlock()
	if !ok {
		return
	}

	bid, err := c.engine.Eval(def.BidFormula, values)
	if err != nil {
		logs.Errorf("calc %s bid evaluation: %+v", def.RateName, err)
		return
	}
	ask, err := c.engine.Eval(def.AskFormula, values)
	if err != nil {
		logs.Errorf("calc %s ask evaluation: %+v", def.RateName, err)
		return
	}
	if ask < bid+model.MinTick {
		ask = bid + model.MinTick
	}

	derived := model.Rate{Name: def.RateName, Bid: bid, Ask: ask, Ts: time.Now().UTC()}
	c.mu.Lock()
	c.latest[def.RateName] = derived
	c.mu.Unlock()

	c.forward(derived, "", true)
}

// gatherLocked collects SYMBOL_bid/_ask values and helper constants for a
// calc. Returns false when any dependency has no cached value yet.
func (c *Coordinator) gatherLocked(def model.CalcDef) (map[string]float64, bool) {
	values := make(map[string]float64, len(def.DependsOn)*2+len(def.Consts))
	for _, symbol := range def.DependsOn {
		platform, ok := c.firstPlatform[symbol]
		if !ok {
			return nil, false
		}
		rate, ok := c.platforms[symbol][platform]
		if !ok {
			return nil, false
		}
		values[symbol+"_bid"] = rate.Bid
		values[symbol+"_ask"] = rate.Ask
	}
	for name, v := range def.Consts {
		values[name] = v
	}
	return values, true
}

func (c *Coordinator) forward(rate model.Rate, platform string, derived bool) {
	c.mu.RLock()
	sinks := c.sinks
	c.mu.RUnlock()
	for _, sink := range sinks {
		sink.Push(rate)
	}
	if c.queue != nil {
		if err := c.queue.TryPublish(bus.Event{Rate: rate, Platform: platform, Derived: derived}); err != nil {
			c.metrics.IncQueueDrop()
		}
	}
	c.metrics.IncRate(derived)
}
