package sim

import (
	"time"

	"main/internal/model/enum"
)

const (
	minVariance = 1e-16
	minPrice    = 1e-8
)

// AssetState is the mutable per-instrument simulation state. It is owned
// exclusively by the engine goroutine; one state per instrument, created
// on first tick and kept for the process lifetime.
type AssetState struct {
	Symbol        string
	Price         float64
	Sigma         float64 // annualized
	LastReturn    float64
	DayOpen       float64
	DayHigh       float64
	DayLow        float64
	DayVolume     float64
	Regime        enum.Regime
	StepsInRegime int
	LastUpdate    time.Time
	CurrentDay    int // yyyymmdd in the calendar location
	ConfigSig     uint64
	WasClosed     bool
}

func newAssetState(cfg InstrumentConfig, now time.Time, day int) *AssetState {
	sigma := cfg.InitialSigma
	if sigma <= 0 {
		sigma = 0.1
	}
	return &AssetState{
		Symbol:     cfg.Symbol,
		Price:      cfg.InitialPrice,
		Sigma:      sigma,
		DayOpen:    cfg.InitialPrice,
		DayHigh:    cfg.InitialPrice,
		DayLow:     cfg.InitialPrice,
		Regime:     enum.RegimeMid,
		LastUpdate: now,
		CurrentDay: day,
		ConfigSig:  cfg.Signature(),
	}
}

// reinit applies a live config change without resetting price history.
// Volatility and regime restart from the configured baseline.
func (s *AssetState) reinit(cfg InstrumentConfig) {
	sigma := cfg.InitialSigma
	if sigma <= 0 {
		sigma = 0.1
	}
	s.Sigma = sigma
	s.LastReturn = 0
	s.Regime = enum.RegimeMid
	s.StepsInRegime = 0
	s.ConfigSig = cfg.Signature()
}

// rollDay resets the day aggregates on a trading-day transition.
func (s *AssetState) rollDay(day int) {
	s.CurrentDay = day
	s.DayOpen = s.Price
	s.DayHigh = s.Price
	s.DayLow = s.Price
	s.DayVolume = 0
}

func (s *AssetState) observeDay(price float64) {
	if price > s.DayHigh {
		s.DayHigh = price
	}
	if price < s.DayLow || s.DayLow == 0 {
		s.DayLow = price
	}
}
