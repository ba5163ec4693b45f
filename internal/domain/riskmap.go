package domain

import "time"

// RiskCell is one non-vegetation cell of a published risk map.
type RiskCell struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Value     CellState `json:"value"`
}

// DataSources records which inputs contributed to a risk map.
type DataSources struct {
	MeteoStations       int      `json:"meteo_stations"`
	SatelliteAgeSeconds *float64 `json:"satellite_age_seconds"`
	HasSatellite        bool     `json:"has_satellite"`
}

// RiskMap is the fused fire-state map published by the fog layer.
type RiskMap struct {
	ID            string      `json:"id"`
	Timestamp     time.Time   `json:"timestamp"`
	CellSizeLat   float64     `json:"cell_size_lat"`
	CellSizeLon   float64     `json:"cell_size_lon"`
	Cells         []RiskCell  `json:"cells"`
	DataSources   DataSources `json:"data_sources"`
	WindSpeed     *float64    `json:"wind_speed,omitempty"`
	WindDirection *int        `json:"wind_direction,omitempty"`
}

// SatelliteEnvelope carries one compressed satellite view. BBox is optional;
// when absent the view is assumed to cover the current fusion extent.
type SatelliteEnvelope struct {
	Image     string    `json:"image"`
	BBox      *BBox     `json:"bbox,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
