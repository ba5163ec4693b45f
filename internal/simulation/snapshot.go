package simulation

import (
	"github.com/couchcryptid/wildfire-watch/internal/automaton"
	"github.com/couchcryptid/wildfire-watch/internal/domain"
)

// Snapshot is a copy of the simulation state taken under the lock.
type Snapshot struct {
	Step     int                `json:"step"`
	Width    int                `json:"width"`
	Height   int                `json:"height"`
	BBox     domain.BBox        `json:"bbox"`
	Counts   automaton.Counts   `json:"counts"`
	Cells    []domain.CellState `json:"cells"` // row-major, row 0 south
	Readings []domain.Reading   `json:"readings"`
}

// Snapshot copies the current fire grid and the last filtered readings.
func (s *Simulator) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.fire.State()
	return Snapshot{
		Step:     s.step,
		Width:    state.W,
		Height:   state.H,
		BBox:     s.env.Mapping().BBox,
		Counts:   s.fire.Counts(),
		Cells:    append([]domain.CellState(nil), state.Cells()...),
		Readings: append([]domain.Reading{}, s.readings...),
	}
}
