package domain

// CellState is the per-cell fire state shared by the edge automaton and the
// fusion layer.
type CellState uint8

const (
	Vegetation CellState = 0
	AtRisk     CellState = 1
	Burning    CellState = 2
	Burnt      CellState = 3
)

func (s CellState) String() string {
	switch s {
	case Vegetation:
		return "vegetation"
	case AtRisk:
		return "at_risk"
	case Burning:
		return "burning"
	case Burnt:
		return "burnt"
	default:
		return "unknown"
	}
}

// IsFire reports whether the state counts as fire ground truth.
func (s CellState) IsFire() bool { return s == Burning || s == Burnt }
