package fusion

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/google/uuid"
)

// Publish sends the latest fused map unless one was already sent within the
// publish interval. It reports whether a map was sent. A failed send leaves
// the throttle untouched so the next cycle retries.
func (e *Engine) Publish(ctx context.Context) (bool, error) {
	e.publishMu.Lock()
	defer e.publishMu.Unlock()

	now := e.clock.Now()
	e.state.mu.Lock()
	if !e.state.computed {
		e.state.mu.Unlock()
		return false, nil
	}
	if !e.state.lastPublish.IsZero() && now.Sub(e.state.lastPublish) < e.cfg.PublishInterval {
		e.state.mu.Unlock()
		e.metrics.RiskMapsThrottled.Inc()
		return false, nil
	}
	rm := e.buildRiskMapLocked(now)
	e.state.mu.Unlock()

	if e.publisher != nil {
		if err := e.publisher.PublishRiskMap(ctx, rm); err != nil {
			e.metrics.PublishErrors.Inc()
			return false, fmt.Errorf("publish risk map: %w", err)
		}
	}

	e.state.mu.Lock()
	e.state.lastPublish = now
	e.state.lastRiskMap = &rm
	e.state.mu.Unlock()

	e.metrics.RiskMapsPublished.Inc()
	e.logger.Info("risk map published",
		"id", rm.ID,
		"cells", len(rm.Cells),
		"stations", rm.DataSources.MeteoStations,
		"has_satellite", rm.DataSources.HasSatellite,
	)
	return true, nil
}

// LatestRiskMap returns the last map that was published.
func (e *Engine) LatestRiskMap() (domain.RiskMap, bool) {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	if e.state.lastRiskMap == nil {
		return domain.RiskMap{}, false
	}
	return *e.state.lastRiskMap, true
}

// buildRiskMapLocked serializes the display grid. Callers hold state.mu.
func (e *Engine) buildRiskMapLocked(now time.Time) domain.RiskMap {
	s := e.state
	cellLat, cellLon := s.mapping.CellSize()
	rm := domain.RiskMap{
		ID:          uuid.NewString(),
		Timestamp:   now.UTC(),
		CellSizeLat: cellLat,
		CellSizeLon: cellLon,
		Cells:       make([]domain.RiskCell, 0),
		DataSources: domain.DataSources{
			MeteoStations: len(s.devices),
			HasSatellite:  s.appliedSat != nil,
		},
	}
	if s.latestSat != nil {
		age := now.Sub(s.latestSat.receivedAt).Seconds()
		rm.DataSources.SatelliteAgeSeconds = &age
	}
	if s.wind != nil {
		speed, dir := s.wind.speed, s.wind.direction
		rm.WindSpeed = &speed
		rm.WindDirection = &dir
	}
	for y := 0; y < s.display.H; y++ {
		for x := 0; x < s.display.W; x++ {
			st := s.display.At(x, y)
			if st == domain.Vegetation {
				continue
			}
			lat, lon := s.mapping.CellToGeo(x, y)
			rm.Cells = append(rm.Cells, domain.RiskCell{Latitude: lat, Longitude: lon, Value: st})
		}
	}
	return rm
}
