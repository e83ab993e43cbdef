package harmonize

// Level is the administrative level of a set of geographic unit codes.
type Level int

const (
	LevelUnsupported Level = iota
	LevelSector
	LevelMunicipality
	LevelState
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case LevelSector:
		return "sector"
	case LevelMunicipality:
		return "municipality"
	case LevelState:
		return "state"
	default:
		return "unsupported"
	}
}

// JoinColumn returns the column of the sector table that codes of this level
// join against. Empty for unsupported levels.
func (l Level) JoinColumn() string {
	switch l {
	case LevelSector:
		return "CD_SETOR"
	case LevelMunicipality:
		return "CD_MUN"
	case LevelState:
		return "CD_UF"
	default:
		return ""
	}
}

// ResolveGranularity infers the administrative level of a code column from its
// modal string length. IBGE identifiers are fixed-width per level: census
// sectors have 13+ digits, municipalities 7, states 2. The mode is used rather
// than the mean because a handful of malformed codes must not shift the
// classification. Ties resolve to the shortest length for determinism.
func ResolveGranularity(codes []string) Level {
	if len(codes) == 0 {
		return LevelUnsupported
	}

	counts := make(map[int]int, 4)
	for _, c := range codes {
		counts[len(c)]++
	}

	modal, best := 0, 0
	for length, n := range counts {
		if n > best || (n == best && length < modal) {
			modal, best = length, n
		}
	}

	switch {
	case modal >= 13:
		return LevelSector
	case modal == 7:
		return LevelMunicipality
	case modal == 2:
		return LevelState
	default:
		return LevelUnsupported
	}
}
