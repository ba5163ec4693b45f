package pipeline

import (
	"context"

	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/grid"
)

// ObservationSink accepts validated observations.
type ObservationSink interface {
	Ingest(obs domain.Observation)
}

// SatelliteSink accepts classified satellite views.
type SatelliteSink interface {
	IngestSatellite(classes *grid.Grid[domain.CellState], bbox *domain.BBox)
}

// ObservationLoader hands observations to a sink in arrival order, so the
// newest reading of a device wins.
type ObservationLoader struct {
	sink ObservationSink
}

func NewObservationLoader(sink ObservationSink) *ObservationLoader {
	return &ObservationLoader{sink: sink}
}

func (l *ObservationLoader) LoadBatch(_ context.Context, items []domain.Observation) error {
	for _, obs := range items {
		l.sink.Ingest(obs)
	}
	return nil
}

// SatelliteLoader hands satellite views to a sink in arrival order.
type SatelliteLoader struct {
	sink SatelliteSink
}

func NewSatelliteLoader(sink SatelliteSink) *SatelliteLoader {
	return &SatelliteLoader{sink: sink}
}

func (l *SatelliteLoader) LoadBatch(_ context.Context, items []SatelliteView) error {
	for _, v := range items {
		l.sink.IngestSatellite(v.Classes, v.BBox)
	}
	return nil
}
