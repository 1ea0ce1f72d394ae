package sim

import (
	"math/rand"
	"testing"

	"main/internal/model/enum"

	"github.com/stretchr/testify/assert"
)

func TestRegimeHoldsUntilMinSteps(t *testing.T) {
	cfg := RegimeConfig{
		Mid: RegimeDef{VolScale: 1, MinSteps: 10, SwitchChance: 1},
	}
	rng := rand.New(rand.NewSource(3))

	for steps := 0; steps < 10; steps++ {
		next, switched := cfg.nextRegime(rng, enum.RegimeMid, steps)
		assert.False(t, switched)
		assert.Equal(t, enum.RegimeMid, next)
	}

	_, switched := cfg.nextRegime(rng, enum.RegimeMid, 10)
	assert.True(t, switched)
}

func TestRegimeNeverSwitchesWithZeroChanceDefaulted(t *testing.T) {
	// SwitchChance <= 0 falls back to the default, so switching stays
	// probabilistic; with chance 1 it always switches past MinSteps.
	cfg := RegimeConfig{Low: RegimeDef{VolScale: 1, MinSteps: 1, SwitchChance: 1}}
	rng := rand.New(rand.NewSource(3))

	next, switched := cfg.nextRegime(rng, enum.RegimeLow, 5)
	assert.True(t, switched)
	assert.NotEqual(t, enum.RegimeLow, next)
}

func TestRegimeMarkovDeterministicRow(t *testing.T) {
	cfg := RegimeConfig{
		Markov: [][]float64{
			{0, 1, 0}, // low -> mid
			{0, 0, 1}, // mid -> high
			{1, 0, 0}, // high -> low
		},
	}
	rng := rand.New(rand.NewSource(3))

	next, switched := cfg.nextRegime(rng, enum.RegimeLow, 0)
	assert.True(t, switched)
	assert.Equal(t, enum.RegimeMid, next)

	next, switched = cfg.nextRegime(rng, enum.RegimeMid, 0)
	assert.True(t, switched)
	assert.Equal(t, enum.RegimeHigh, next)

	next, switched = cfg.nextRegime(rng, enum.RegimeHigh, 0)
	assert.True(t, switched)
	assert.Equal(t, enum.RegimeLow, next)
}
