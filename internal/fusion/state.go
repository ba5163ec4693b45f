package fusion

import (
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/grid"
)

// DeviceRecord is the latest accepted reading of one device.
type DeviceRecord struct {
	Reading    domain.Reading
	Station    domain.Station
	ReceivedAt time.Time
}

// satelliteView is one classified satellite image. Views are immutable once
// stored.
type satelliteView struct {
	classes    *grid.Grid[domain.CellState]
	bbox       *domain.BBox
	receivedAt time.Time
}

type windSummary struct {
	speed     float64
	direction int
}

// State is the shared fusion state. One mutex guards every field; ingestion
// callbacks and the cycle both go through it.
type State struct {
	mu sync.Mutex

	devices map[uint16]DeviceRecord

	// latestSat is the newest view received; appliedSat is the view last
	// accepted as ground truth by a cycle.
	latestSat  *satelliteView
	appliedSat *satelliteView

	computed bool
	display  *grid.Grid[domain.CellState]
	mapping  domain.Mapping
	wind     *windSummary

	lastPublish time.Time
	lastRiskMap *domain.RiskMap
}

func newState() *State {
	return &State{devices: make(map[uint16]DeviceRecord)}
}

func (s *State) putDevice(rec DeviceRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[rec.Reading.DeviceID] = rec
	return len(s.devices)
}

func (s *State) putSatellite(v *satelliteView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestSat = v
}

// snapshot copies what a cycle needs so the heavy work runs unlocked.
func (s *State) snapshot() (devices []DeviceRecord, latest, applied *satelliteView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	devices = make([]DeviceRecord, 0, len(s.devices))
	for _, d := range s.devices {
		devices = append(devices, d)
	}
	slices.SortFunc(devices, func(a, b DeviceRecord) int {
		return int(a.Reading.DeviceID) - int(b.Reading.DeviceID)
	})
	return devices, s.latestSat, s.appliedSat
}

func (s *State) commit(display *grid.Grid[domain.CellState], m domain.Mapping, truth *satelliteView, wind *windSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.computed = true
	s.display = display
	s.mapping = m
	s.appliedSat = truth
	s.wind = wind
}
