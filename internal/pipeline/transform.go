package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/codec"
	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/grid"
	"github.com/couchcryptid/wildfire-watch/internal/satellite"
)

// FrameTransformer turns a packed sensor frame into an Observation.
type FrameTransformer struct {
	stations domain.StationLookup
	logger   *slog.Logger
}

// NewFrameTransformer creates a FrameTransformer. Pass a nil lookup to treat
// every device as unregistered.
func NewFrameTransformer(stations domain.StationLookup, logger *slog.Logger) *FrameTransformer {
	return &FrameTransformer{stations: stations, logger: logger}
}

func (t *FrameTransformer) Transform(ctx context.Context, raw domain.RawMessage) (domain.Observation, error) {
	reading, err := codec.Decode(raw.Value)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("decode frame: %w", err)
	}
	if err := reading.Validate(); err != nil {
		return domain.Observation{}, fmt.Errorf("device %d: %w", reading.DeviceID, err)
	}
	return domain.Observation{
		Reading:     reading,
		Station:     domain.ResolveStation(ctx, t.stations, reading.DeviceID, t.logger),
		ProcessedAt: domain.Now(),
	}, nil
}

// SatelliteView is a decoded and classified satellite image.
type SatelliteView struct {
	Classes   *grid.Grid[domain.CellState]
	BBox      *domain.BBox
	Timestamp time.Time
}

// SatelliteTransformer decodes satellite envelopes into classification
// grids of a fixed size.
type SatelliteTransformer struct {
	size int
}

// NewSatelliteTransformer creates a SatelliteTransformer producing size x
// size grids.
func NewSatelliteTransformer(size int) *SatelliteTransformer {
	return &SatelliteTransformer{size: size}
}

func (t *SatelliteTransformer) Transform(_ context.Context, raw domain.RawMessage) (SatelliteView, error) {
	var env domain.SatelliteEnvelope
	if err := json.Unmarshal(raw.Value, &env); err != nil {
		return SatelliteView{}, fmt.Errorf("unmarshal satellite envelope: %w", err)
	}
	if env.BBox != nil && !env.BBox.Valid() {
		return SatelliteView{}, fmt.Errorf("satellite envelope: invalid bbox %v", *env.BBox)
	}
	classes, err := satellite.DecodeEnvelope(env, t.size)
	if err != nil {
		return SatelliteView{}, err
	}
	return SatelliteView{Classes: classes, BBox: env.BBox, Timestamp: env.Timestamp}, nil
}
