package coord

import (
	"sync"
	"testing"
	"time"

	"main/internal/bus"
	"main/internal/formula"
	"main/internal/model"
	"main/internal/obs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu    sync.Mutex
	rates []model.Rate
}

func (s *captureSink) Push(rate model.Rate) {
	s.mu.Lock()
	s.rates = append(s.rates, rate)
	s.mu.Unlock()
}

func (s *captureSink) byName(name string) []model.Rate {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Rate
	for _, r := range s.rates {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

func tick(platform, symbol string, bid, ask float64) (string, model.RawTick) {
	return platform, model.RawTick{
		Platform: platform,
		Symbol:   symbol,
		Bid:      bid,
		Ask:      ask,
		Ts:       time.Now().UTC(),
	}
}

func TestCoordinatorForwardsRawRates(t *testing.T) {
	sink := &captureSink{}
	c := New(formula.NewEngine(), nil, obs.NewMetrics(), sink)

	c.OnRateUpdate(tick("SIM", "EURUSD", 1.2, 1.2002))

	got := sink.byName("EURUSD")
	require.Len(t, got, 1)
	assert.InDelta(t, 1.2, got[0].Bid, 1e-12)

	latest, ok := c.Latest("EURUSD")
	require.True(t, ok)
	assert.InDelta(t, 1.2002, latest.Ask, 1e-12)
}

func TestCoordinatorDerivedScaling(t *testing.T) {
	sink := &captureSink{}
	c := New(formula.NewEngine(), nil, obs.NewMetrics(), sink)
	c.SetCalcDefs([]model.CalcDef{{
		RateName:   "EURUSD_X",
		BidFormula: "EURUSD_bid*1.1",
		AskFormula: "EURUSD_ask*1.1",
		DependsOn:  []string{"EURUSD"},
	}})

	c.OnRateUpdate(tick("SIM", "EURUSD", 1.2, 1.2002))

	derived := sink.byName("EURUSD_X")
	require.Len(t, derived, 1)
	assert.InDelta(t, 1.32, derived[0].Bid, 1e-9)
}

func TestCoordinatorDefersUntilAllDependenciesCached(t *testing.T) {
	sink := &captureSink{}
	c := New(formula.NewEngine(), nil, obs.NewMetrics(), sink)
	c.SetCalcDefs([]model.CalcDef{{
		RateName:   "EURJPY",
		BidFormula: "EURUSD_bid*USDJPY_bid",
		AskFormula: "EURUSD_ask*USDJPY_ask",
		DependsOn:  []string{"EURUSD", "USDJPY"},
	}})

	c.OnRateUpdate(tick("SIM", "EURUSD", 1.2, 1.2002))
	assert.Empty(t, sink.byName("EURJPY"))

	c.OnRateUpdate(tick("SIM", "USDJPY", 150.0, 150.02))
	derived := sink.byName("EURJPY")
	require.Len(t, derived, 1)
	assert.InDelta(t, 180.0, derived[0].Bid, 1e-9)
	assert.Greater(t, derived[0].Ask, derived[0].Bid)
}

func TestCoordinatorEvaluationErrorDoesNotBlockOthers(t *testing.T) {
	sink := &captureSink{}
	c := New(formula.NewEngine(), nil, obs.NewMetrics(), sink)
	c.SetCalcDefs([]model.CalcDef{
		{
			RateName:   "BROKEN",
			BidFormula: "EURUSD_bid/zero",
			AskFormula: "EURUSD_ask/zero",
			Consts:     map[string]float64{"zero": 0},
			DependsOn:  []string{"EURUSD"},
		},
		{
			RateName:   "OK",
			BidFormula: "EURUSD_bid*2",
			AskFormula: "EURUSD_ask*2",
			DependsOn:  []string{"EURUSD"},
		},
	})

	c.OnRateUpdate(tick("SIM", "EURUSD", 1.2, 1.2002))

	assert.Empty(t, sink.byName("BROKEN"))
	assert.Len(t, sink.byName("OK"), 1)
}

func TestCoordinatorRejectsUnsatisfiableDefs(t *testing.T) {
	sink := &captureSink{}
	c := New(formula.NewEngine(), nil, obs.NewMetrics(), sink)
	c.SetCalcDefs([]model.CalcDef{{
		RateName:   "BAD",
		BidFormula: "GBPUSD_bid*1.1",
		AskFormula: "GBPUSD_ask*1.1",
		DependsOn:  []string{"EURUSD"},
	}})

	c.OnRateUpdate(tick("SIM", "EURUSD", 1.2, 1.2002))
	c.OnRateUpdate(tick("SIM", "GBPUSD", 1.3, 1.3002))

	assert.Empty(t, sink.byName("BAD"))
}

func TestCoordinatorUsesFirstSeenPlatform(t *testing.T) {
	sink := &captureSink{}
	c := New(formula.NewEngine(), nil, obs.NewMetrics(), sink)
	c.SetCalcDefs([]model.CalcDef{{
		RateName:   "EURUSD_X",
		BidFormula: "EURUSD_bid*1.1",
		AskFormula: "EURUSD_ask*1.1",
		DependsOn:  []string{"EURUSD"},
	}})

	c.OnRateUpdate(tick("ALPHA", "EURUSD", 1.0, 1.0002))
	c.OnRateUpdate(tick("BETA", "EURUSD", 2.0, 2.0002))

	derived := sink.byName("EURUSD_X")
	require.Len(t, derived, 2)
	// The second recalculation still reads the first-seen platform cache,
	// which holds ALPHA's value.
	assert.InDelta(t, 1.1, derived[1].Bid, 1e-9)
}

func TestCoordinatorDropsInvalidTicks(t *testing.T) {
	sink := &captureSink{}
	c := New(formula.NewEngine(), nil, obs.NewMetrics(), sink)

	c.OnRateUpdate(tick("SIM", "EURUSD", 1.2, 1.1)) // ask < bid

	assert.Empty(t, sink.byName("EURUSD"))
	_, ok := c.Latest("EURUSD")
	assert.False(t, ok)
}

func TestCoordinatorPublishesToQueue(t *testing.T) {
	queue := bus.NewQueue(16)
	c := New(formula.NewEngine(), queue, obs.NewMetrics())

	c.OnRateUpdate(tick("SIM", "EURUSD", 1.2, 1.2002))
	queue.Close()

	var events []bus.Event
	queue.Run(t.Context(), func(e bus.Event) { events = append(events, e) })
	require.Len(t, events, 1)
	assert.Equal(t, "SIM", events[0].Platform)
	assert.False(t, events[0].Derived)
}
