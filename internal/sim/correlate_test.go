package sim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCholeskyIdentity(t *testing.T) {
	m := [][]float64{{1, 0}, {0, 1}}

	l, err := cholesky(m)
	require.NoError(t, err)

	assert.InDelta(t, 1, l[0][0], 1e-12)
	assert.InDelta(t, 0, l[1][0], 1e-12)
	assert.InDelta(t, 1, l[1][1], 1e-12)
}

func TestCholeskyKnownFactor(t *testing.T) {
	rho := 0.6
	m := [][]float64{{1, rho}, {rho, 1}}

	l, err := cholesky(m)
	require.NoError(t, err)

	assert.InDelta(t, 1, l[0][0], 1e-12)
	assert.InDelta(t, rho, l[1][0], 1e-12)
	assert.InDelta(t, math.Sqrt(1-rho*rho), l[1][1], 1e-12)
}

func TestCholeskyRejectsNonPositiveDefinite(t *testing.T) {
	m := [][]float64{{1, 2}, {2, 1}}

	_, err := cholesky(m)
	assert.Error(t, err)
}

func TestCorrelatedDrawsMoveJointly(t *testing.T) {
	rho := 0.95
	corr, err := newCorrelator([][]float64{{1, rho}, {rho, 1}}, 2)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	var sum, sumSq0, sumSq1 float64
	const n = 20000
	for i := 0; i < n; i++ {
		z := corr.draw(rng)
		sum += z[0] * z[1]
		sumSq0 += z[0] * z[0]
		sumSq1 += z[1] * z[1]
	}
	sample := sum / math.Sqrt(sumSq0*sumSq1)

	assert.InDelta(t, rho, sample, 0.02)
}

func TestIndependentDrawsWithoutMatrix(t *testing.T) {
	corr, err := newCorrelator(nil, 3)
	require.NoError(t, err)

	z := corr.draw(rand.New(rand.NewSource(1)))
	assert.Len(t, z, 3)
}
