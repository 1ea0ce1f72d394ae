package exception

import "errors"

// Formula engine errors
var (
	ErrFormulaEmpty         = errors.New("formula: empty expression")
	ErrFormulaMissingTokens = errors.New("formula: unresolved tokens")
	ErrFormulaNotNumeric    = errors.New("formula: result is not numeric")
	ErrFormulaNotFinite     = errors.New("formula: result is not finite")
)
