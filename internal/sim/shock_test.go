package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShockActivatesAndDecays(t *testing.T) {
	eng := NewShockEngine(ShockConfig{
		Big:   ShockBand{Chance: 1, MinLevel: 0.5, MaxLevel: 0.5, Duration: 3},
		Decay: 0.5,
	})
	rng := rand.New(rand.NewSource(7))

	level := eng.Step(rng, "EURUSD")
	require.InDelta(t, 0.5, level, 1e-12)
	require.True(t, eng.State("EURUSD").Active)

	// Active shocks decay geometrically and never re-roll activation.
	level = eng.Step(rng, "EURUSD")
	assert.InDelta(t, 0.25, level, 1e-12)
	level = eng.Step(rng, "EURUSD")
	assert.InDelta(t, 0.125, level, 1e-12)

	// Duration exhausted.
	level = eng.Step(rng, "EURUSD")
	assert.Zero(t, level)
	assert.False(t, eng.State("EURUSD").Active)
}

func TestShockNeverActivatesWithZeroChance(t *testing.T) {
	eng := NewShockEngine(ShockConfig{Decay: 0.9})
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 100; i++ {
		assert.Zero(t, eng.Step(rng, "EURUSD"))
	}
}

func TestShockStatesArePerSymbol(t *testing.T) {
	eng := NewShockEngine(ShockConfig{
		Big:   ShockBand{Chance: 1, MinLevel: 0.3, MaxLevel: 0.3, Duration: 5},
		Decay: 0.9,
	})
	rng := rand.New(rand.NewSource(7))

	eng.Step(rng, "EURUSD")
	assert.True(t, eng.State("EURUSD").Active)
	assert.False(t, eng.State("USDJPY").Active)
}
