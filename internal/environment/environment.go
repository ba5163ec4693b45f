// Package environment models the static terrain and slowly evolving
// weather fields the fire automaton reads from.
package environment

import (
	"math"
	"math/rand/v2"

	"github.com/couchcryptid/wildfire-watch/internal/automaton"
	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/grid"
)

// FieldRange describes how a smooth random field is generated.
type FieldRange struct {
	Low, High float64
	Radius    int
}

// Config holds the environment generation and feedback parameters.
type Config struct {
	Size int
	BBox domain.BBox

	Altitude     FieldRange
	Temperature  FieldRange
	AirHumidity  FieldRange
	SoilHumidity FieldRange

	WindSpeed     float64
	WindDirection float64

	// Per-step wind drift bounds.
	WindDirectionDrift float64
	WindSpeedDrift     float64
	MaxWindSpeed       float64

	// Heat feedback applied to BURNING cells every step.
	HeatTemperature  float64
	HeatAirHumidity  float64
	HeatSoilHumidity float64
}

// DefaultConfig returns the stock 50x50 hillside.
func DefaultConfig() Config {
	return Config{
		Size:               50,
		BBox:               domain.BBox{MinLon: 7.0, MinLat: 43.5, MaxLon: 7.1, MaxLat: 43.6},
		Altitude:           FieldRange{Low: 100, High: 500, Radius: 3},
		Temperature:        FieldRange{Low: 20, High: 30, Radius: 5},
		AirHumidity:        FieldRange{Low: 20, High: 60, Radius: 4},
		SoilHumidity:       FieldRange{Low: 15, High: 50, Radius: 4},
		WindSpeed:          30,
		WindDirection:      135,
		WindDirectionDrift: 2,
		WindSpeedDrift:     1,
		MaxWindSpeed:       100,
		HeatTemperature:    40,
		HeatAirHumidity:    15,
		HeatSoilHumidity:   10,
	}
}

// Environment owns the per-cell terrain and weather fields. It is not safe
// for concurrent use.
type Environment struct {
	cfg     Config
	mapping domain.Mapping
	rng     *rand.Rand

	Altitude      *grid.Grid[float64]
	Temperature   *grid.Grid[float64]
	AirHumidity   *grid.Grid[float64]
	SoilHumidity  *grid.Grid[float64]
	AirPressure   *grid.Grid[float64]
	Rain          *grid.Grid[float64]
	WindSpeed     *grid.Grid[float64]
	WindDirection *grid.Grid[float64]
}

// New generates a fresh environment from cfg using rng.
func New(cfg Config, rng *rand.Rand) *Environment {
	n := cfg.Size
	if n <= 0 {
		n = 1
		cfg.Size = 1
	}
	e := &Environment{
		cfg:           cfg,
		mapping:       domain.Mapping{BBox: cfg.BBox, W: n, H: n},
		rng:           rng,
		Altitude:      GenerateSmoothField(rng, n, n, cfg.Altitude),
		Temperature:   GenerateSmoothField(rng, n, n, cfg.Temperature),
		AirHumidity:   GenerateSmoothField(rng, n, n, cfg.AirHumidity),
		SoilHumidity:  GenerateSmoothField(rng, n, n, cfg.SoilHumidity),
		AirPressure:   grid.New[float64](n, n),
		Rain:          grid.New[float64](n, n),
		WindSpeed:     grid.Filled(n, n, cfg.WindSpeed),
		WindDirection: grid.Filled(n, n, cfg.WindDirection),
	}
	alt := e.Altitude.Cells()
	pressure := e.AirPressure.Cells()
	for i := range pressure {
		pressure[i] = 1013 - alt[i]/8.3
	}
	return e
}

// Size returns the side length of the square grid.
func (e *Environment) Size() int { return e.cfg.Size }

// Mapping returns the cell/geo mapping of the grid.
func (e *Environment) Mapping() domain.Mapping { return e.mapping }

// Fields exposes the grids the ignition probability reads.
func (e *Environment) Fields() automaton.Fields {
	return automaton.Fields{
		Temperature:   e.Temperature,
		AirHumidity:   e.AirHumidity,
		SoilHumidity:  e.SoilHumidity,
		Altitude:      e.Altitude,
		WindSpeed:     e.WindSpeed,
		WindDirection: e.WindDirection,
	}
}

// EvolveWind applies a bounded random drift to every cell: direction wraps
// modulo 360, speed is clamped to [0, MaxWindSpeed].
func (e *Environment) EvolveWind() {
	dirs := e.WindDirection.Cells()
	speeds := e.WindSpeed.Cells()
	for i := range dirs {
		d := dirs[i] + uniform(e.rng, -e.cfg.WindDirectionDrift, e.cfg.WindDirectionDrift)
		dirs[i] = wrapDegrees(d)
		s := speeds[i] + uniform(e.rng, -e.cfg.WindSpeedDrift, e.cfg.WindSpeedDrift)
		speeds[i] = clamp(s, 0, e.cfg.MaxWindSpeed)
	}
}

// ApplyHeatFeedback heats and dries every BURNING cell of fire.
func (e *Environment) ApplyHeatFeedback(fire *grid.Grid[domain.CellState]) {
	temp := e.Temperature.Cells()
	air := e.AirHumidity.Cells()
	soil := e.SoilHumidity.Cells()
	for i, s := range fire.Cells() {
		if s != domain.Burning {
			continue
		}
		temp[i] = clamp(temp[i]+e.cfg.HeatTemperature, domain.MinTemperature, domain.MaxTemperature)
		air[i] = clamp(air[i]-e.cfg.HeatAirHumidity, 0, domain.MaxHumidity)
		soil[i] = clamp(soil[i]-e.cfg.HeatSoilHumidity, 0, domain.MaxHumidity)
	}
}

// GridToGeo returns the geographic anchor of cell (x, y).
func (e *Environment) GridToGeo(x, y int) (lat, lon float64) {
	return e.mapping.CellToGeo(x, y)
}

// GeoToGrid returns the cell nearest to (lat, lon), clamped to the grid.
func (e *Environment) GeoToGrid(lat, lon float64) (x, y int) {
	return e.mapping.GeoToCell(lat, lon)
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func wrapDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
