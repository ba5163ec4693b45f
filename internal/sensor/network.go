// Package sensor samples simulated weather stations from the environment
// and smooths their output before it is encoded for the wire.
package sensor

import (
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/environment"
	"github.com/couchcryptid/wildfire-watch/internal/grid"
	"gonum.org/v1/gonum/floats"
)

// Aberration sentinels. Each lands outside the range accepted by
// domain.Reading.Validate once it has been through the codec, except wind
// speed which saturates to zero.
const (
	AberrantTemperature   = 1000.0
	AberrantHumidity      = 255.0
	AberrantPressure      = 0.0
	AberrantRain          = 9999.0
	AberrantWindSpeed     = -1.0
	AberrantWindDirection = 999.0
)

// Sensor is one fixed station on the grid.
type Sensor struct {
	ID   uint16
	X, Y int
}

// NetworkConfig holds the sensor layout and sampling parameters.
type NetworkConfig struct {
	Count          int
	Radius         int
	AberrationRate float64
	BatteryVoltage float64
}

// DefaultNetworkConfig returns ten sensors sampling a radius-2 window.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{Count: 10, Radius: 2, BatteryVoltage: 3.7}
}

// Network is a fixed set of sensors placed on an environment grid.
type Network struct {
	cfg     NetworkConfig
	sensors []Sensor
	rng     *rand.Rand
}

// NewNetwork places cfg.Count sensors at random cells of a size x size grid.
// Sensor ids start at 1.
func NewNetwork(cfg NetworkConfig, size int, rng *rand.Rand) *Network {
	n := &Network{cfg: cfg, rng: rng}
	for i := 0; i < cfg.Count; i++ {
		n.sensors = append(n.sensors, Sensor{
			ID: uint16(i + 1),
			X:  rng.IntN(size),
			Y:  rng.IntN(size),
		})
	}
	return n
}

// NewNetworkAt builds a network from explicit sensor positions.
func NewNetworkAt(cfg NetworkConfig, sensors []Sensor, rng *rand.Rand) *Network {
	out := make([]Sensor, len(sensors))
	copy(out, sensors)
	cfg.Count = len(out)
	return &Network{cfg: cfg, sensors: out, rng: rng}
}

// Sensors returns a copy of the sensor layout.
func (n *Network) Sensors() []Sensor {
	out := make([]Sensor, len(n.sensors))
	copy(out, n.sensors)
	return out
}

// Stations returns registry metadata for every sensor.
func (n *Network) Stations(env *environment.Environment, forestArea string) []domain.Station {
	out := make([]domain.Station, 0, len(n.sensors))
	for _, s := range n.sensors {
		lat, lon := env.GridToGeo(s.X, s.Y)
		out = append(out, domain.Station{
			DeviceID:   s.ID,
			Location:   domain.Location{Latitude: lat, Longitude: lon, Altitude: env.Altitude.At(s.X, s.Y)},
			ForestArea: forestArea,
			Located:    true,
		})
	}
	return out
}

// Sample reads every sensor's window at time now. Temperature is the window
// maximum, wind direction is the centre cell, everything else is the window
// mean.
func (n *Network) Sample(env *environment.Environment, now time.Time) []domain.Reading {
	out := make([]domain.Reading, 0, len(n.sensors))
	for _, s := range n.sensors {
		r := domain.Reading{
			DeviceID:       s.ID,
			Timestamp:      now,
			BatteryVoltage: n.cfg.BatteryVoltage,
			Temperature:    floats.Max(window(env.Temperature, s.X, s.Y, n.cfg.Radius)),
			AirHumidity:    mean(window(env.AirHumidity, s.X, s.Y, n.cfg.Radius)),
			SoilHumidity:   mean(window(env.SoilHumidity, s.X, s.Y, n.cfg.Radius)),
			AirPressure:    mean(window(env.AirPressure, s.X, s.Y, n.cfg.Radius)),
			Rain:           mean(window(env.Rain, s.X, s.Y, n.cfg.Radius)),
			WindSpeed:      mean(window(env.WindSpeed, s.X, s.Y, n.cfg.Radius)),
			WindDirection:  env.WindDirection.At(s.X, s.Y),
		}
		if n.cfg.AberrationRate > 0 {
			n.injectAberrations(&r)
		}
		out = append(out, r)
	}
	return out
}

// injectAberrations replaces individual fields with out-of-range sentinels,
// each with probability AberrationRate.
func (n *Network) injectAberrations(r *domain.Reading) {
	fields := []struct {
		dst      *float64
		sentinel float64
	}{
		{&r.Temperature, AberrantTemperature},
		{&r.AirHumidity, AberrantHumidity},
		{&r.SoilHumidity, AberrantHumidity},
		{&r.AirPressure, AberrantPressure},
		{&r.Rain, AberrantRain},
		{&r.WindSpeed, AberrantWindSpeed},
		{&r.WindDirection, AberrantWindDirection},
	}
	for _, f := range fields {
		if n.rng.Float64() < n.cfg.AberrationRate {
			*f.dst = f.sentinel
		}
	}
}

// window returns the values of g within radius r of (x, y), clipped at the
// grid edges.
func window(g *grid.Grid[float64], x, y, r int) []float64 {
	vals := make([]float64, 0, (2*r+1)*(2*r+1))
	for yy := max(0, y-r); yy <= min(g.H-1, y+r); yy++ {
		for xx := max(0, x-r); xx <= min(g.W-1, x+r); xx++ {
			vals = append(vals, g.At(xx, yy))
		}
	}
	return vals
}

func mean(vals []float64) float64 {
	return floats.Sum(vals) / float64(len(vals))
}
