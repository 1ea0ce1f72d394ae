package sim

import (
	"math"
	"math/rand"

	"github.com/yanun0323/errors"
)

// correlator turns independent standard-normal draws into jointly
// correlated ones through the lower-triangular Cholesky factor of the
// configured correlation matrix.
type correlator struct {
	chol [][]float64
	n    int
}

// newCorrelator factors the correlation matrix. An empty matrix yields
// independent draws.
func newCorrelator(matrix [][]float64, n int) (*correlator, error) {
	if len(matrix) == 0 {
		return &correlator{n: n}, nil
	}
	chol, err := cholesky(matrix)
	if err != nil {
		return nil, errors.Wrap(err, "factor correlation matrix")
	}
	return &correlator{chol: chol, n: n}, nil
}

// draw returns one correlated standard-normal value per instrument.
func (c *correlator) draw(rng *rand.Rand) []float64 {
	eps := make([]float64, c.n)
	for i := range eps {
		eps[i] = rng.NormFloat64()
	}
	if c.chol == nil {
		return eps
	}
	out := make([]float64, c.n)
	for i := 0; i < c.n; i++ {
		sum := 0.0
		for j := 0; j <= i && j < len(c.chol[i]); j++ {
			sum += c.chol[i][j] * eps[j]
		}
		out[i] = sum
	}
	return out
}

// cholesky computes the lower-triangular factor of a symmetric
// positive-definite matrix.
func cholesky(m [][]float64) ([][]float64, error) {
	n := len(m)
	l := make([][]float64, n)
	for i := range l {
		l[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := m[i][j]
			for k := 0; k < j; k++ {
				sum -= l[i][k] * l[j][k]
			}
			if i == j {
				if sum <= 0 {
					return nil, errors.Errorf("matrix is not positive definite at row %d", i)
				}
				l[i][j] = math.Sqrt(sum)
			} else {
				l[i][j] = sum / l[j][j]
			}
		}
	}
	return l, nil
}
