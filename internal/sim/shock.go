package sim

import "math/rand"

// ShockState tracks an active shock on one instrument. Level decays
// geometrically each cycle while active.
type ShockState struct {
	Active       bool
	DurationLeft int
	Level        float64
}

// ShockEngine injects probabilistic shocks into instrument states.
// One state per symbol, mutated every cycle by the engine goroutine.
type ShockEngine struct {
	cfg    ShockConfig
	states map[string]*ShockState
}

// NewShockEngine builds a shock engine with config defaults applied.
func NewShockEngine(cfg ShockConfig) *ShockEngine {
	if cfg.Decay <= 0 || cfg.Decay >= 1 {
		cfg.Decay = 0.85
	}
	return &ShockEngine{
		cfg:    cfg,
		states: make(map[string]*ShockState),
	}
}

// State returns the shock state for a symbol, creating it when absent.
func (e *ShockEngine) State(symbol string) *ShockState {
	if e == nil {
		return &ShockState{}
	}
	st := e.states[symbol]
	if st == nil {
		st = &ShockState{}
		e.states[symbol] = st
	}
	return st
}

// Step advances the shock state one cycle and returns the current level.
// An inactive state may activate from one of the configured bands; an
// active one decays and eventually expires.
func (e *ShockEngine) Step(rng *rand.Rand, symbol string) float64 {
	if e == nil {
		return 0
	}
	st := e.State(symbol)
	if st.Active {
		st.Level *= e.cfg.Decay
		st.DurationLeft--
		if st.DurationLeft <= 0 || st.Level < 1e-6 {
			st.Active = false
			st.Level = 0
		}
		return st.Level
	}

	for _, band := range [3]ShockBand{e.cfg.Big, e.cfg.Medium, e.cfg.Small} {
		if band.Chance <= 0 {
			continue
		}
		if rng.Float64() >= band.Chance {
			continue
		}
		span := band.MaxLevel - band.MinLevel
		if span < 0 {
			span = 0
		}
		st.Active = true
		st.Level = band.MinLevel + rng.Float64()*span
		st.DurationLeft = band.Duration
		if st.DurationLeft <= 0 {
			st.DurationLeft = 10
		}
		return st.Level
	}
	return 0
}
