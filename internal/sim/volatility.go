package sim

import (
	"math"

	"main/internal/model/enum"
)

// absZMean is E|z| for a standard normal draw.
const absZMean = 0.7978845608028654

// nextSigma advances the volatility recursion one step and returns the new
// annualized sigma, floored for numerical stability.
func nextSigma(kind enum.EngineKind, p GarchParams, lastReturn, lastSigma float64) float64 {
	switch kind {
	case enum.EngineKindEGARCH:
		return egarchSigma(p, lastReturn, lastSigma)
	default:
		return garchSigma(p, lastReturn, lastSigma)
	}
}

// garchSigma computes GARCH(1,1): sigma2 = omega + alpha*r^2 + beta*sigma2.
func garchSigma(p GarchParams, lastReturn, lastSigma float64) float64 {
	sigma2 := p.Omega + p.Alpha*lastReturn*lastReturn + p.Beta*lastSigma*lastSigma
	if sigma2 < minVariance || math.IsNaN(sigma2) || math.IsInf(sigma2, 0) {
		sigma2 = minVariance
	}
	return math.Sqrt(sigma2)
}

// egarchSigma computes the EGARCH log-variance recursion with an asymmetry
// term scaled by |z| - E|z|.
func egarchSigma(p GarchParams, lastReturn, lastSigma float64) float64 {
	if lastSigma <= 0 {
		lastSigma = math.Sqrt(minVariance)
	}
	z := lastReturn / lastSigma
	logVar := p.Omega + p.Beta*math.Log(lastSigma*lastSigma) + p.Alpha*(math.Abs(z)-absZMean) + p.Asymmetry*z
	sigma2 := math.Exp(logVar)
	if sigma2 < minVariance || math.IsNaN(sigma2) || math.IsInf(sigma2, 0) {
		sigma2 = minVariance
	}
	return math.Sqrt(sigma2)
}
