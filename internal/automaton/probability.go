// Package automaton implements the stochastic fire-spread cellular
// automaton shared by the edge simulator and the fog forecaster.
package automaton

import (
	"math"

	"github.com/couchcryptid/wildfire-watch/internal/grid"
)

// Rand is the random source the automaton draws from. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// Fields are the per-cell inputs of the ignition probability. Altitude and
// SoilHumidity may be nil, in which case their terms are skipped.
type Fields struct {
	Temperature   *grid.Grid[float64]
	AirHumidity   *grid.Grid[float64]
	SoilHumidity  *grid.Grid[float64]
	Altitude      *grid.Grid[float64]
	WindSpeed     *grid.Grid[float64]
	WindDirection *grid.Grid[float64]
}

// Variant selects the dryness formula.
type Variant int

const (
	// Basic uses temperature and air humidity.
	Basic Variant = iota
	// Extended adds a soil humidity term.
	Extended
)

func (v Variant) String() string {
	if v == Extended {
		return "extended"
	}
	return "basic"
}

// RegrowthParams control BURNT -> VEGETATION recovery.
type RegrowthParams struct {
	Enabled  bool
	MinAge   int
	BaseRate float64
	Cap      float64
}

// SpontaneousParams control random ignitions away from the fire front.
type SpontaneousParams struct {
	Enabled bool
	Rate    float64
	Decay   float64
	Margin  int
}

// Params tune the ignition probability and the optional step rules.
type Params struct {
	Variant         Variant
	DrynessCoeff    float64
	ReferenceTemp   float64
	SlopeCoeff      float64
	DownhillPenalty float64
	WindRef         float64

	Regrowth    RegrowthParams
	Spontaneous SpontaneousParams
}

// EdgeParams is the edge simulator's rule set.
func EdgeParams() Params {
	return Params{
		Variant:         Basic,
		DrynessCoeff:    0.10,
		ReferenceTemp:   40,
		SlopeCoeff:      0.2,
		DownhillPenalty: -0.05,
		WindRef:         50,
		Regrowth:        RegrowthParams{MinAge: 20, BaseRate: 0.01, Cap: 3},
		Spontaneous:     SpontaneousParams{Rate: 0.05, Decay: 8, Margin: 5},
	}
}

// ForecastParams is the fog forecaster's rule set.
func ForecastParams() Params {
	return Params{
		Variant:         Extended,
		DrynessCoeff:    0.10,
		ReferenceTemp:   40,
		SlopeCoeff:      0.2,
		DownhillPenalty: -0.05,
		WindRef:         30,
	}
}

// Probability returns the chance that a burning cell at (sx, sy) ignites
// its neighbour at (tx, ty). The result is always within [0, 1]; any NaN
// input yields 0.
//
// The wind term is positive when the wind direction points from source to
// target, using the atan2(dy, dx) angular frame.
func Probability(p Params, f Fields, sx, sy, tx, ty int) float64 {
	t := f.Temperature.At(tx, ty)
	ha := f.AirHumidity.At(tx, ty)

	dryness := 1 - ha/100
	if p.ReferenceTemp != 0 {
		dryness += t / p.ReferenceTemp
	}
	if p.Variant == Extended && f.SoilHumidity != nil {
		dryness += 1 - f.SoilHumidity.At(tx, ty)/100
	}
	prob := p.DrynessCoeff * dryness

	if f.Altitude != nil {
		diff := f.Altitude.At(tx, ty) - f.Altitude.At(sx, sy)
		if diff > 0 {
			prob += p.SlopeCoeff * diff
		} else {
			prob += p.DownhillPenalty
		}
	}

	if f.WindSpeed != nil && f.WindDirection != nil && p.WindRef > 0 {
		if ws := f.WindSpeed.At(tx, ty); ws > 0 {
			bearing := math.Atan2(float64(ty-sy), float64(tx-sx)) * 180 / math.Pi
			rel := (f.WindDirection.At(tx, ty) - bearing) * math.Pi / 180
			prob += ws / p.WindRef * math.Cos(rel)
		}
	}

	if math.IsNaN(prob) || prob < 0 {
		return 0
	}
	if prob > 1 {
		return 1
	}
	return prob
}
