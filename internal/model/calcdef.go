package model

// CalcDef describes one derived rate: its bid/ask formulas, helper
// constants and the set of raw symbols it depends on. Immutable once
// loaded from configuration.
type CalcDef struct {
	RateName   string
	BidFormula string
	AskFormula string
	Consts     map[string]float64
	DependsOn  []string
}

// Depends reports whether the definition depends on the given raw symbol.
func (d CalcDef) Depends(symbol string) bool {
	for _, s := range d.DependsOn {
		if s == symbol {
			return true
		}
	}
	return false
}
