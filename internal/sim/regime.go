package sim

import (
	"math/rand"

	"main/internal/model/enum"
)

func (c RegimeConfig) def(r enum.Regime) RegimeDef {
	switch r {
	case enum.RegimeLow:
		return withRegimeDefaults(c.Low, 0.6)
	case enum.RegimeHigh:
		return withRegimeDefaults(c.High, 1.8)
	default:
		return withRegimeDefaults(c.Mid, 1.0)
	}
}

func withRegimeDefaults(d RegimeDef, scale float64) RegimeDef {
	if d.VolScale <= 0 {
		d.VolScale = scale
	}
	if d.MinSteps <= 0 {
		d.MinSteps = 60
	}
	if d.SwitchChance <= 0 {
		d.SwitchChance = 0.05
	}
	return d
}

// nextRegime decides the regime for the next step. With a Markov matrix
// configured the row for the current regime drives the transition every
// step; otherwise the regime must sit for MinSteps before a probabilistic
// switch to one of the other two regimes.
func (c RegimeConfig) nextRegime(rng *rand.Rand, current enum.Regime, steps int) (enum.Regime, bool) {
	if len(c.Markov) == 3 {
		row := c.Markov[int(current)]
		if len(row) != 3 {
			return current, false
		}
		u := rng.Float64()
		acc := 0.0
		for i, p := range row {
			acc += p
			if u < acc {
				next := enum.Regime(i)
				return next, next != current
			}
		}
		return current, false
	}

	def := c.def(current)
	if steps < def.MinSteps {
		return current, false
	}
	if rng.Float64() >= def.SwitchChance {
		return current, false
	}
	others := [2]enum.Regime{}
	n := 0
	for r := enum.RegimeLow; r <= enum.RegimeHigh; r++ {
		if r != current {
			others[n] = r
			n++
		}
	}
	return others[rng.Intn(2)], true
}
