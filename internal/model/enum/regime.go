package enum

type Regime uint8

const (
	RegimeLow Regime = iota
	RegimeMid
	RegimeHigh
	_regime_end
)

func (r Regime) IsAvailable() bool {
	return r < _regime_end
}

func (r Regime) String() string {
	switch r {
	case RegimeLow:
		return "low"
	case RegimeMid:
		return "mid"
	case RegimeHigh:
		return "high"
	default:
		return "unknown"
	}
}
