package sim

import (
	"fmt"
	"hash/fnv"
	"time"

	"main/internal/model/enum"
)

// GarchParams are the GARCH(1,1) / EGARCH recursion coefficients.
type GarchParams struct {
	Omega     float64
	Alpha     float64
	Beta      float64
	Asymmetry float64 // EGARCH leverage term, unused for plain GARCH
}

// JumpParams configure the Poisson jump-diffusion component.
type JumpParams struct {
	Lambda float64 // expected jumps per year
	Mean   float64 // log-jump mean
	Vol    float64 // log-jump volatility
}

// MeanReversionParams configure the Ornstein-Uhlenbeck pull in log-price space.
type MeanReversionParams struct {
	Enabled bool
	Kappa   float64
	Theta   float64 // long-run price level
}

// InstrumentConfig is the tunable parameter set of one simulated instrument.
type InstrumentConfig struct {
	Symbol           string
	InitialPrice     float64
	InitialSigma     float64 // annualized
	DriftAnnual      float64
	Engine           enum.EngineKind
	Garch            GarchParams
	SpreadBase       float64 // fraction of mid
	Jump             JumpParams
	MeanReversion    MeanReversionParams
	MacroSensitivity float64
	BaseTickVolume   float64
}

// Signature hashes the tunable parameters. A changed signature on a live
// instrument triggers partial re-initialization instead of a full reset.
func (c InstrumentConfig) Signature() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%g|%g|%g|%d|%g|%g|%g|%g|%g|%g|%g|%g|%t|%g|%g|%g|%g",
		c.Symbol, c.InitialPrice, c.InitialSigma, c.DriftAnnual, c.Engine,
		c.Garch.Omega, c.Garch.Alpha, c.Garch.Beta, c.Garch.Asymmetry,
		c.SpreadBase, c.Jump.Lambda, c.Jump.Mean, c.Jump.Vol,
		c.MeanReversion.Enabled, c.MeanReversion.Kappa, c.MeanReversion.Theta,
		c.MacroSensitivity, c.BaseTickVolume)
	return h.Sum64()
}

// SessionWindow scales volatility during an hour-of-day range.
// FromHour is inclusive, ToHour exclusive, in the calendar location.
type SessionWindow struct {
	FromHour int
	ToHour   int
	VolScale float64
}

// RegimeDef is one volatility regime.
type RegimeDef struct {
	VolScale     float64
	MinSteps     int
	SwitchChance float64 // probability of leaving once MinSteps elapsed
}

// RegimeConfig holds the three regimes and an optional Markov transition
// matrix (row per regime, probabilities summing to 1). When the matrix is
// present it replaces min-duration switching.
type RegimeConfig struct {
	Low    RegimeDef
	Mid    RegimeDef
	High   RegimeDef
	Markov [][]float64
}

// GapConfig is the jump applied on the first update after a closed period.
type GapConfig struct {
	Mean float64
	Vol  float64
}

// MacroConfig adjusts drift and volatility for macro/news sensitivity.
type MacroConfig struct {
	DriftAdjust float64
	VolAdjust   float64
}

// ShockBand is one probabilistic shock class per update cycle.
type ShockBand struct {
	Chance   float64
	MinLevel float64
	MaxLevel float64
	Duration int // cycles
}

// ShockConfig configures the probabilistic shock engine.
type ShockConfig struct {
	Small  ShockBand
	Medium ShockBand
	Big    ShockBand
	Decay  float64 // geometric decay per cycle while active
}

// EventShock is a scheduled one-shot gaussian jump around At. An empty
// Symbol applies the event to every instrument.
type EventShock struct {
	Name   string
	Symbol string
	At     time.Time
	Mean   float64
	Vol    float64
}

// Config is the full simulation engine configuration.
type Config struct {
	Instruments []InstrumentConfig
	Correlation [][]float64
	Sessions    []SessionWindow
	Regimes     RegimeConfig
	WeekendGap  GapConfig
	Macro       MacroConfig
	Shock       ShockConfig
	Events      []EventShock
	Interval    time.Duration
	Seed        int64
}

// Validate checks the parts that cannot degrade safely at runtime.
func (c Config) Validate() error {
	if len(c.Instruments) == 0 {
		return fmt.Errorf("sim: no instruments configured")
	}
	seen := make(map[string]struct{}, len(c.Instruments))
	for _, inst := range c.Instruments {
		if inst.Symbol == "" {
			return fmt.Errorf("sim: instrument with empty symbol")
		}
		if _, ok := seen[inst.Symbol]; ok {
			return fmt.Errorf("sim: duplicate instrument %s", inst.Symbol)
		}
		seen[inst.Symbol] = struct{}{}
		if inst.InitialPrice <= 0 {
			return fmt.Errorf("sim: %s initial price must be > 0", inst.Symbol)
		}
	}
	if n := len(c.Correlation); n != 0 {
		if n != len(c.Instruments) {
			return fmt.Errorf("sim: correlation matrix is %dx? for %d instruments", n, len(c.Instruments))
		}
		for i, row := range c.Correlation {
			if len(row) != n {
				return fmt.Errorf("sim: correlation row %d has %d columns, want %d", i, len(row), n)
			}
		}
	}
	if m := c.Regimes.Markov; len(m) != 0 && len(m) != 3 {
		return fmt.Errorf("sim: markov matrix must be 3x3")
	}
	return nil
}
