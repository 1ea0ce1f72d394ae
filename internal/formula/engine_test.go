package formula

import (
	"testing"

	"main/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalSimpleScaling(t *testing.T) {
	eng := NewEngine()

	got, err := eng.Eval("EURUSD_bid*1.1", map[string]float64{"EURUSD_bid": 1.2})
	require.NoError(t, err)
	assert.InDelta(t, 1.32, got, 1e-9)
}

func TestEvalCrossWithConstant(t *testing.T) {
	eng := NewEngine()

	got, err := eng.Eval("EURUSD_bid*USDJPY_bid+margin", map[string]float64{
		"EURUSD_bid": 1.2,
		"USDJPY_bid": 150.0,
		"margin":     0.5,
	})
	require.NoError(t, err)
	assert.InDelta(t, 180.5, got, 1e-9)
}

func TestEvalDivideByZeroIsError(t *testing.T) {
	eng := NewEngine()

	_, err := eng.Eval("EURUSD_bid/zero", map[string]float64{"EURUSD_bid": 1.2, "zero": 0})
	require.Error(t, err)
}

func TestEvalEmptyExpression(t *testing.T) {
	eng := NewEngine()

	_, err := eng.Eval("  ", nil)
	assert.ErrorIs(t, err, exception.ErrFormulaEmpty)
}

func TestEvalMalformedExpression(t *testing.T) {
	eng := NewEngine()

	_, err := eng.Eval("EURUSD_bid*", map[string]float64{"EURUSD_bid": 1.2})
	assert.Error(t, err)
}

func TestValidateReportsMissingSets(t *testing.T) {
	eng := NewEngine()

	err := eng.Validate("EURUSD_bid*USDJPY_ask+margin+offset",
		[]string{"EURUSD"},
		map[string]float64{"margin": 0.1},
	)
	require.Error(t, err)

	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"USDJPY"}, missing.Symbols)
	assert.Equal(t, []string{"offset"}, missing.Consts)
	assert.ErrorIs(t, err, exception.ErrFormulaMissingTokens)
}

func TestValidateSatisfiedFormula(t *testing.T) {
	eng := NewEngine()

	err := eng.Validate("(EURUSD_bid+EURUSD_ask)/2*spread",
		[]string{"EURUSD"},
		map[string]float64{"spread": 1.001},
	)
	assert.NoError(t, err)
}

func TestProgramCacheReuse(t *testing.T) {
	eng := NewEngine()

	for i := 0; i < 3; i++ {
		got, err := eng.Eval("EURUSD_bid*2", map[string]float64{"EURUSD_bid": float64(i)})
		require.NoError(t, err)
		assert.InDelta(t, float64(i)*2, got, 1e-12)
	}
	assert.Len(t, eng.programs, 1)
}
