package sim

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"main/internal/calendar"
	"main/internal/model"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	secondsPerYear    = 365.0 * 24 * 3600
	eventShockWindow  = 30 * time.Second
	defaultSpreadBase = 0.0002
)

// Engine drives the per-instrument stochastic price processes. One update
// cycle advances every instrument with a jointly correlated random draw.
// Tick and UpdateConfig are safe to call from different goroutines; state
// mutation happens only inside Tick.
type Engine struct {
	mu          sync.Mutex
	cfg         Config
	cal         *calendar.Calendar
	rng         *rand.Rand
	corr        *correlator
	shocks      *ShockEngine
	states      map[string]*AssetState
	eventsFired map[string]struct{}
}

// NewEngine validates the config and builds the engine.
func NewEngine(cfg Config, cal *calendar.Calendar) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate sim config")
	}
	corr, err := newCorrelator(cfg.Correlation, len(cfg.Instruments))
	if err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg:         cfg,
		cal:         cal,
		rng:         rand.New(rand.NewSource(seed)),
		corr:        corr,
		shocks:      NewShockEngine(cfg.Shock),
		states:      make(map[string]*AssetState),
		eventsFired: make(map[string]struct{}),
	}, nil
}

// UpdateConfig swaps in a new configuration. Instruments whose parameter
// signature changed are partially re-initialized on their next tick;
// price history is kept.
func (e *Engine) UpdateConfig(cfg Config) error {
	if e == nil {
		return errors.New("nil engine")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "validate sim config")
	}
	corr, err := newCorrelator(cfg.Correlation, len(cfg.Instruments))
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.cfg = cfg
	e.corr = corr
	e.shocks = NewShockEngine(cfg.Shock)
	e.mu.Unlock()
	return nil
}

// State returns a copy of the asset state for inspection.
func (e *Engine) State(symbol string) (AssetState, bool) {
	if e == nil {
		return AssetState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.states[symbol]
	if st == nil {
		return AssetState{}, false
	}
	return *st, true
}

// Tick runs one update cycle and returns the generated ticks. Instruments
// in a closed market window produce nothing until the market reopens.
func (e *Engine) Tick(now time.Time) []model.RawTick {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	z := e.corr.draw(e.rng)
	out := make([]model.RawTick, 0, len(e.cfg.Instruments))
	closed := e.cal.IsClosed(now)

	for i, cfg := range e.cfg.Instruments {
		st := e.states[cfg.Symbol]
		if st == nil {
			st = newAssetState(cfg, now, e.dayKey(now))
			e.states[cfg.Symbol] = st
		}
		if st.ConfigSig != cfg.Signature() {
			st.reinit(cfg)
		}
		if closed {
			st.WasClosed = true
			continue
		}
		tick := e.step(cfg, st, z[i], now)
		out = append(out, tick)
	}
	return out
}

func (e *Engine) step(cfg InstrumentConfig, st *AssetState, z float64, now time.Time) model.RawTick {
	dt := now.Sub(st.LastUpdate).Seconds()
	if dt <= 0 {
		dt = e.cfg.Interval.Seconds()
		if dt <= 0 {
			dt = 1
		}
	}
	yearFrac := dt / secondsPerYear
	shockLevel := e.shocks.Step(e.rng, cfg.Symbol)

	var total float64
	if st.WasClosed {
		// Single gap jump replaces the normal step after a closed period.
		total = e.cfg.WeekendGap.Mean + e.cfg.WeekendGap.Vol*e.rng.NormFloat64()
		st.WasClosed = false
	} else {
		sigma := nextSigma(cfg.Engine, cfg.Garch, st.LastReturn, st.Sigma)

		next, switched := e.cfg.Regimes.nextRegime(e.rng, st.Regime, st.StepsInRegime)
		if switched {
			st.Regime = next
			st.StepsInRegime = 0
		} else {
			st.StepsInRegime++
		}

		sigmaEff := sigma * e.cfg.Regimes.def(st.Regime).VolScale
		sigmaEff *= sessionVolScale(e.cfg.Sessions, now.In(e.cal.Location()).Hour())
		if cfg.MacroSensitivity != 0 {
			sigmaEff *= 1 + cfg.MacroSensitivity*e.cfg.Macro.VolAdjust
		}
		sigmaEff *= 1 + shockLevel
		if sigmaEff < 0 {
			sigmaEff = math.Sqrt(minVariance)
		}

		total += sigmaEff * math.Sqrt(yearFrac) * z
		total += cfg.DriftAnnual * yearFrac
		if cfg.MacroSensitivity != 0 {
			total += cfg.MacroSensitivity * e.cfg.Macro.DriftAdjust * yearFrac
		}
		if cfg.Jump.Lambda > 0 {
			if e.rng.Float64() < 1-math.Exp(-cfg.Jump.Lambda*yearFrac) {
				total += cfg.Jump.Mean + cfg.Jump.Vol*e.rng.NormFloat64()
			}
		}
		if cfg.MeanReversion.Enabled && cfg.MeanReversion.Theta > 0 && st.Price > 0 {
			total += cfg.MeanReversion.Kappa * (math.Log(cfg.MeanReversion.Theta) - math.Log(st.Price)) * yearFrac
		}
		total += e.applyEvents(cfg.Symbol, now)

		st.Sigma = sigma
	}

	price := st.Price * math.Exp(total)
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		// Numerical instability degrades to the last valid state.
		logs.Debugf("sim: %s produced non-finite price, clamped", cfg.Symbol)
		price = st.Price
		total = 0
	}
	if price < minPrice {
		price = minPrice
	}

	st.LastReturn = total
	st.Price = price

	day := e.dayKey(now)
	if day != st.CurrentDay {
		st.rollDay(day)
	}
	st.observeDay(price)

	expected := e.cfg.Interval.Seconds()
	if expected <= 0 {
		expected = dt
	}
	ratio := dt / expected
	if ratio < 1 {
		ratio = 1
	} else if ratio > 5 {
		ratio = 5
	}
	baseVol := cfg.BaseTickVolume
	if baseVol <= 0 {
		baseVol = 1
	}
	st.DayVolume += baseVol * (0.5 + e.rng.Float64()) * ratio

	st.LastUpdate = now

	bid, ask := spreadAround(price, cfg.SpreadBase, shockLevel)
	return model.RawTick{
		Symbol: cfg.Symbol,
		Bid:    bid,
		Ask:    ask,
		Ts:     now,
	}
}

// applyEvents sums scheduled one-shot shocks within the event window.
func (e *Engine) applyEvents(symbol string, now time.Time) float64 {
	var total float64
	for _, ev := range e.cfg.Events {
		if ev.Symbol != "" && ev.Symbol != symbol {
			continue
		}
		delta := now.Sub(ev.At)
		if delta < -eventShockWindow || delta > eventShockWindow {
			continue
		}
		key := ev.Name + "|" + symbol
		if _, fired := e.eventsFired[key]; fired {
			continue
		}
		e.eventsFired[key] = struct{}{}
		total += ev.Mean + ev.Vol*e.rng.NormFloat64()
	}
	return total
}

// spreadAround derives bid/ask symmetrically around mid, widened by the
// current shock level and clamped to keep bid > 0 and ask > bid.
func spreadAround(mid, spreadBase, shockLevel float64) (bid, ask float64) {
	if spreadBase <= 0 {
		spreadBase = defaultSpreadBase
	}
	half := mid * spreadBase * (1 + shockLevel) / 2
	bid = mid - half
	ask = mid + half
	if bid < minPrice {
		bid = minPrice
	}
	if ask < bid+model.MinTick {
		ask = bid + model.MinTick
	}
	return bid, ask
}

// dayKey renders t as yyyymmdd in the calendar location, so day rollups
// align with the market's trading day.
func (e *Engine) dayKey(t time.Time) int {
	l := t.In(e.cal.Location())
	return l.Year()*10000 + int(l.Month())*100 + l.Day()
}
