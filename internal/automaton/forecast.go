package automaton

import (
	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/grid"
)

// Forecast runs the burn-out and spread rules for steps look-ahead steps on
// a copy of seed and returns the cells that are on fire at any point within
// the horizon, seeds included. seed is never modified.
func Forecast(p Params, f Fields, seed *grid.Grid[domain.CellState], steps int, rng Rand) *grid.Grid[bool] {
	cur := seed.Clone()
	next := grid.New[domain.CellState](cur.W, cur.H)
	mask := grid.New[bool](cur.W, cur.H)

	markFire(mask, cur)
	for i := 0; i < steps; i++ {
		ignited, _ := spread(p, f, cur, next, rng)
		cur, next = next, cur
		markFire(mask, cur)
		if ignited == 0 && cur.Count(func(s domain.CellState) bool { return s == domain.Burning }) == 0 {
			break
		}
	}
	return mask
}

func markFire(mask *grid.Grid[bool], g *grid.Grid[domain.CellState]) {
	m := mask.Cells()
	for i, s := range g.Cells() {
		if s != domain.Vegetation {
			m[i] = true
		}
	}
}
