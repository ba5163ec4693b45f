package domain

import (
	"context"
	"log/slog"
)

// UnknownForestArea labels stations missing from the registry.
const UnknownForestArea = "unknown"

// Station is the static metadata of one sensor station.
type Station struct {
	DeviceID   uint16   `json:"device_id"`
	Location   Location `json:"location"`
	ForestArea string   `json:"forest_area"`

	// Located is false for placeholder stations. Unlocated stations are
	// counted but never interpolated or used as fire seeds.
	Located bool `json:"-"`
}

// StationLookup resolves station metadata by device id.
type StationLookup interface {
	LookupStation(ctx context.Context, deviceID uint16) (Station, error)
}

// PlaceholderStation is substituted when a device is not in the registry.
func PlaceholderStation(deviceID uint16) Station {
	return Station{DeviceID: deviceID, ForestArea: UnknownForestArea}
}

// ResolveStation looks up deviceID and falls back to a placeholder on any
// failure. A nil lookup always yields the placeholder.
func ResolveStation(ctx context.Context, lookup StationLookup, deviceID uint16, logger *slog.Logger) Station {
	if lookup == nil {
		return PlaceholderStation(deviceID)
	}
	st, err := lookup.LookupStation(ctx, deviceID)
	if err != nil {
		logger.Warn("station lookup failed, using placeholder", "device_id", deviceID, "error", err)
		return PlaceholderStation(deviceID)
	}
	st.DeviceID = deviceID
	st.Located = true
	if st.ForestArea == "" {
		st.ForestArea = UnknownForestArea
	}
	return st
}
