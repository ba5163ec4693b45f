package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrOutOfRange is returned when a decoded reading carries a value outside
// its physical range.
var ErrOutOfRange = errors.New("reading out of range")

// StatusCharging is bit 0 of the status byte.
const StatusCharging uint8 = 1 << 0

// Accepted physical ranges for decoded readings.
const (
	MinTemperature = -20.0
	MaxTemperature = 800.0
	MaxHumidity    = 100.0
	MinPressure    = 500.0
	MaxPressure    = 1100.0
	MaxRain        = 500.0
	MaxWindDegrees = 360.0
)

// Reading is one station sample in physical units.
type Reading struct {
	DeviceID       uint16    `json:"device_id"`
	Timestamp      time.Time `json:"timestamp"`
	BatteryVoltage float64   `json:"battery_voltage"`
	StatusBits     uint8     `json:"status_bits"`
	Temperature    float64   `json:"temperature"`
	AirHumidity    float64   `json:"air_humidity"`
	SoilHumidity   float64   `json:"soil_humidity"`
	AirPressure    float64   `json:"air_pressure"`
	Rain           float64   `json:"rain"`
	WindSpeed      float64   `json:"wind_speed"`
	WindDirection  float64   `json:"wind_direction"`
}

// Charging reports whether the station flagged itself as charging.
func (r Reading) Charging() bool { return r.StatusBits&StatusCharging != 0 }

// Validate rejects readings with values no real station would report.
// Aberration sentinels injected upstream land outside these ranges.
func (r Reading) Validate() error {
	switch {
	case r.Temperature < MinTemperature || r.Temperature > MaxTemperature:
		return fmt.Errorf("%w: temperature %.2f", ErrOutOfRange, r.Temperature)
	case r.AirHumidity < 0 || r.AirHumidity > MaxHumidity:
		return fmt.Errorf("%w: air humidity %.2f", ErrOutOfRange, r.AirHumidity)
	case r.SoilHumidity < 0 || r.SoilHumidity > MaxHumidity:
		return fmt.Errorf("%w: soil humidity %.2f", ErrOutOfRange, r.SoilHumidity)
	case r.AirPressure < MinPressure || r.AirPressure > MaxPressure:
		return fmt.Errorf("%w: air pressure %.2f", ErrOutOfRange, r.AirPressure)
	case r.Rain < 0 || r.Rain > MaxRain:
		return fmt.Errorf("%w: rain %.2f", ErrOutOfRange, r.Rain)
	case r.WindSpeed < 0:
		return fmt.Errorf("%w: wind speed %.2f", ErrOutOfRange, r.WindSpeed)
	case r.WindDirection < 0 || r.WindDirection >= MaxWindDegrees:
		return fmt.Errorf("%w: wind direction %.2f", ErrOutOfRange, r.WindDirection)
	}
	return nil
}

// Observation is a validated reading joined with its station metadata.
type Observation struct {
	Reading     Reading
	Station     Station
	ProcessedAt time.Time
}
