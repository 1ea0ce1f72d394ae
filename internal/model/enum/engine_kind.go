package enum

import "strings"

type EngineKind uint8

const (
	_engine_kind_beg EngineKind = iota
	EngineKindGARCH
	EngineKindEGARCH
	_engine_kind_end
)

func (k EngineKind) IsAvailable() bool {
	return k > _engine_kind_beg && k < _engine_kind_end
}

func (k EngineKind) String() string {
	switch k {
	case EngineKindGARCH:
		return "garch"
	case EngineKindEGARCH:
		return "egarch"
	default:
		return "unknown"
	}
}

// ParseEngineKind maps a configured kind string to an EngineKind.
// Unknown strings fall back to GARCH.
func ParseEngineKind(s string) EngineKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "egarch":
		return EngineKindEGARCH
	default:
		return EngineKindGARCH
	}
}
