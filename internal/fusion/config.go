// Package fusion merges ground-station readings and satellite ground truth
// into a single fire-risk map.
package fusion

import (
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/automaton"
	"github.com/couchcryptid/wildfire-watch/internal/domain"
)

// Defaults fill the weather field when too few stations are known.
type Defaults struct {
	Temperature   float64
	AirHumidity   float64
	SoilHumidity  float64
	Altitude      float64
	WindSpeed     float64
	WindDirection float64
	BBox          domain.BBox
}

// Config holds the fusion cycle parameters.
type Config struct {
	GridSize        int
	ForecastSteps   int
	FireThreshold   float64
	SeedRadius      int
	MinDevices      int
	FreshnessWindow time.Duration
	PublishInterval time.Duration

	// BBoxMargin expands the station extent by a fraction of its size on
	// each side; DegenerateMargin (degrees) is used when an axis has zero
	// extent.
	BBoxMargin       float64
	DegenerateMargin float64

	Defaults Defaults
	Params   automaton.Params
}

// DefaultConfig returns the stock fog settings.
func DefaultConfig() Config {
	return Config{
		GridSize:         64,
		ForecastSteps:    10,
		FireThreshold:    60,
		SeedRadius:       2,
		MinDevices:       3,
		FreshnessWindow:  5 * time.Second,
		PublishInterval:  2 * time.Second,
		BBoxMargin:       0.1,
		DegenerateMargin: 0.01,
		Defaults: Defaults{
			Temperature:  20,
			AirHumidity:  50,
			SoilHumidity: 50,
			BBox:         domain.UnitBBox,
		},
		Params: automaton.ForecastParams(),
	}
}
