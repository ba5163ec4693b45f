package automaton

import (
	"math"

	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/grid"
)

// StepStats summarises the transitions of one step.
type StepStats struct {
	Ignited      int
	Extinguished int
	Regrown      int
	Spontaneous  int
}

// Counts is a census of the fire grid.
type Counts struct {
	Vegetation int `json:"vegetation"`
	Burning    int `json:"burning"`
	Burnt      int `json:"burnt"`
}

// Automaton holds the fire state and burn ages of a grid. It is not safe
// for concurrent use.
type Automaton struct {
	params  Params
	rng     Rand
	state   *grid.Grid[domain.CellState]
	scratch *grid.Grid[domain.CellState]
	age     *grid.Grid[int]
}

// New returns an all-vegetation automaton of the given size.
func New(w, h int, params Params, rng Rand) *Automaton {
	state := grid.New[domain.CellState](w, h)
	return &Automaton{
		params:  params,
		rng:     rng,
		state:   state,
		scratch: grid.New[domain.CellState](state.W, state.H),
		age:     grid.New[int](state.W, state.H),
	}
}

// Params returns the automaton's rule set.
func (a *Automaton) Params() Params { return a.params }

// State returns the live fire grid. Callers must not modify it.
func (a *Automaton) State() *grid.Grid[domain.CellState] { return a.state }

// BurnAge returns the live burn-age grid. Callers must not modify it.
func (a *Automaton) BurnAge() *grid.Grid[int] { return a.age }

// Ignite sets a vegetation cell burning. It reports whether the cell changed.
func (a *Automaton) Ignite(x, y int) bool {
	if !a.state.InBounds(x, y) || a.state.At(x, y) != domain.Vegetation {
		return false
	}
	a.state.Set(x, y, domain.Burning)
	a.age.Set(x, y, 0)
	return true
}

// Counts tallies the current states.
func (a *Automaton) Counts() Counts {
	var c Counts
	for _, s := range a.state.Cells() {
		switch s {
		case domain.Burning:
			c.Burning++
		case domain.Burnt:
			c.Burnt++
		default:
			c.Vegetation++
		}
	}
	return c
}

// Step advances the grid by one synchronous update. Every transition is
// decided from the state at the start of the step.
func (a *Automaton) Step(f Fields) StepStats {
	prev, next := a.state, a.scratch
	var stats StepStats
	stats.Ignited, stats.Extinguished = spread(a.params, f, prev, next, a.rng)

	if a.params.Regrowth.Enabled {
		stats.Regrown = a.regrow(prev, next)
	}

	ages := a.age.Cells()
	nextCells := next.Cells()
	for i, s := range nextCells {
		switch s {
		case domain.Burnt:
			ages[i]++
		default:
			ages[i] = 0
		}
	}

	if a.params.Spontaneous.Enabled && a.spontaneousIgnition(next) {
		stats.Spontaneous = 1
	}

	a.state, a.scratch = next, prev
	return stats
}

// regrow turns old burnt cells back into vegetation. The chance grows with
// the number of vegetation neighbours and with burn age, capped at Cap
// times the base rate per neighbour.
func (a *Automaton) regrow(prev, next *grid.Grid[domain.CellState]) int {
	rp := a.params.Regrowth
	minAge := max(rp.MinAge, 1)
	regrown := 0
	for y := 0; y < prev.H; y++ {
		for x := 0; x < prev.W; x++ {
			if prev.At(x, y) != domain.Burnt || next.At(x, y) != domain.Burnt {
				continue
			}
			age := a.age.At(x, y)
			if age < minAge {
				continue
			}
			neighbours := 0
			prev.Neighbors8(x, y, func(nx, ny int) {
				if prev.At(nx, ny) == domain.Vegetation {
					neighbours++
				}
			})
			if neighbours == 0 {
				continue
			}
			p := rp.BaseRate * float64(neighbours) * math.Min(float64(age)/float64(minAge), rp.Cap)
			if a.rng.Float64() < p {
				next.Set(x, y, domain.Vegetation)
				regrown++
			}
		}
	}
	return regrown
}

// spontaneousIgnition may light one random vegetation cell inside the
// margin. The chance decays as more of the grid is burnt.
func (a *Automaton) spontaneousIgnition(next *grid.Grid[domain.CellState]) bool {
	sp := a.params.Spontaneous
	total := len(next.Cells())
	burnt := next.Count(func(s domain.CellState) bool { return s == domain.Burnt })
	p := sp.Rate * math.Exp(-sp.Decay*float64(burnt)/float64(total))
	if a.rng.Float64() >= p {
		return false
	}
	x := randomInMargin(a.rng, next.W, sp.Margin)
	y := randomInMargin(a.rng, next.H, sp.Margin)
	if next.At(x, y) != domain.Vegetation {
		return false
	}
	next.Set(x, y, domain.Burning)
	a.age.Set(x, y, 0)
	return true
}

func randomInMargin(rng Rand, n, margin int) int {
	span := n - 2*margin
	if margin < 0 || span <= 0 {
		return rng.IntN(n)
	}
	return margin + rng.IntN(span)
}

// spread applies the burn-out and ignition rules from prev into next.
// Each burning cell draws one trial per vegetation neighbour that has not
// already been ignited this step.
func spread(p Params, f Fields, prev, next *grid.Grid[domain.CellState], rng Rand) (ignited, extinguished int) {
	next.CopyFrom(prev)
	for y := 0; y < prev.H; y++ {
		for x := 0; x < prev.W; x++ {
			if prev.At(x, y) != domain.Burning {
				continue
			}
			next.Set(x, y, domain.Burnt)
			extinguished++
			prev.Neighbors8(x, y, func(nx, ny int) {
				if prev.At(nx, ny) != domain.Vegetation || next.At(nx, ny) != domain.Vegetation {
					return
				}
				if rng.Float64() < Probability(p, f, x, y, nx, ny) {
					next.Set(nx, ny, domain.Burning)
					ignited++
				}
			})
		}
	}
	return ignited, extinguished
}
