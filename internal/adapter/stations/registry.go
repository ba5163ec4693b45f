// Package stations resolves device ids to station metadata from a JSON file
// or a MinIO bucket, with an LRU cache in front.
package stations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/couchcryptid/wildfire-watch/internal/domain"
)

// ErrNotFound is returned when a device has no registry entry.
var ErrNotFound = errors.New("station not found")

// Registry is an in-memory station table. It implements domain.StationLookup.
type Registry struct {
	mu       sync.RWMutex
	stations map[uint16]domain.Station
}

// NewRegistry builds a registry from stations; later duplicates win.
func NewRegistry(stations []domain.Station) *Registry {
	r := &Registry{stations: make(map[uint16]domain.Station, len(stations))}
	for _, s := range stations {
		r.stations[s.DeviceID] = s
	}
	return r
}

func (r *Registry) LookupStation(_ context.Context, deviceID uint16) (domain.Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stations[deviceID]
	if !ok {
		return domain.Station{}, fmt.Errorf("device %d: %w", deviceID, ErrNotFound)
	}
	return s, nil
}

// Put adds or replaces a station.
func (r *Registry) Put(s domain.Station) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stations[s.DeviceID] = s
}

// Len returns the number of stations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stations)
}

// All returns every station ordered by device id.
func (r *Registry) All() []domain.Station {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Station, 0, len(r.stations))
	for _, s := range r.stations {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b domain.Station) int { return int(a.DeviceID) - int(b.DeviceID) })
	return out
}

// LoadFile reads a JSON array of stations.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stations file: %w", err)
	}
	var stations []domain.Station
	if err := json.Unmarshal(data, &stations); err != nil {
		return nil, fmt.Errorf("parse stations file %s: %w", path, err)
	}
	return NewRegistry(stations), nil
}

// WriteFile writes stations as an indented JSON array.
func WriteFile(path string, stations []domain.Station) error {
	data, err := json.MarshalIndent(stations, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize stations: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write stations file: %w", err)
	}
	return nil
}
