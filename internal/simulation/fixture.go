package simulation

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/automaton"
	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/observability"
)

// FixtureFrame is one packed frame, hex encoded.
type FixtureFrame struct {
	Step     int    `json:"step"`
	DeviceID uint16 `json:"device_id"`
	Hex      string `json:"hex"`
}

// Fixture is a reproducible scenario recorded from a seeded simulation.
type Fixture struct {
	Seed      uint64                   `json:"seed"`
	Steps     int                      `json:"steps"`
	Start     time.Time                `json:"start"`
	Stations  []domain.Station         `json:"stations"`
	Frames    []FixtureFrame           `json:"frames"`
	Readings  []domain.Reading         `json:"readings"` // filtered readings of the final step
	Satellite domain.SatelliteEnvelope `json:"satellite"`
	Counts    automaton.Counts         `json:"counts"`
	GridSize  int                      `json:"grid_size"`
}

// NewRand returns the PCG source used for a seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// GenerateFixture runs steps simulation steps from start, one Interval
// apart, and records every frame plus a final satellite view. The same seed
// and config always yield the same fixture.
func GenerateFixture(cfg Config, seed uint64, steps int, start time.Time) (Fixture, error) {
	sim := New(cfg, NewRand(seed), nil, nil, slog.New(slog.DiscardHandler), observability.NewMetricsForTesting())

	fx := Fixture{
		Seed:     seed,
		Steps:    steps,
		Start:    start.UTC(),
		Stations: sim.Stations(),
		Frames:   []FixtureFrame{},
		GridSize: cfg.Environment.Size,
	}
	now := start
	for i := 0; i < steps; i++ {
		now = start.Add(time.Duration(i+1) * cfg.Interval)
		res := sim.Step(now)
		for _, f := range res.Frames {
			fx.Frames = append(fx.Frames, FixtureFrame{Step: res.Step, DeviceID: f.DeviceID, Hex: hex.EncodeToString(f.Payload)})
		}
		fx.Readings = res.Readings
		fx.Counts = res.Counts
	}

	view, err := sim.SatelliteView(now)
	if err != nil {
		return Fixture{}, fmt.Errorf("generate fixture: %w", err)
	}
	fx.Satellite = view
	return fx, nil
}
