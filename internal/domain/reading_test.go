package domain

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validReading() Reading {
	return Reading{
		DeviceID:      1,
		Temperature:   25,
		AirHumidity:   40,
		SoilHumidity:  30,
		AirPressure:   1000,
		Rain:          0,
		WindSpeed:     20,
		WindDirection: 135,
	}
}

func TestReading_Validate(t *testing.T) {
	assert.NoError(t, validReading().Validate())

	tests := []struct {
		name   string
		mutate func(*Reading)
	}{
		{"temperature sentinel", func(r *Reading) { r.Temperature = 1000 }},
		{"humidity sentinel", func(r *Reading) { r.AirHumidity = 255 }},
		{"soil humidity sentinel", func(r *Reading) { r.SoilHumidity = 255 }},
		{"pressure sentinel", func(r *Reading) { r.AirPressure = 0 }},
		{"rain saturated", func(r *Reading) { r.Rain = 13107 }},
		{"wind direction sentinel", func(r *Reading) { r.WindDirection = 999 }},
		{"wind direction full turn", func(r *Reading) { r.WindDirection = 360 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReading()
			tt.mutate(&r)
			err := r.Validate()
			assert.True(t, errors.Is(err, ErrOutOfRange), "got %v", err)
		})
	}
}

func TestReading_Charging(t *testing.T) {
	r := validReading()
	assert.False(t, r.Charging())
	r.StatusBits = 0b101
	assert.True(t, r.Charging())
}

type stubLookup struct {
	station Station
	err     error
}

func (s stubLookup) LookupStation(_ context.Context, _ uint16) (Station, error) {
	return s.station, s.err
}

func TestResolveStation(t *testing.T) {
	ctx := context.Background()

	found := ResolveStation(ctx, stubLookup{station: Station{
		Location:   Location{Latitude: 43.55, Longitude: 7.05, Altitude: 210},
		ForestArea: "esterel",
	}}, 7, slog.Default())
	assert.True(t, found.Located)
	assert.Equal(t, uint16(7), found.DeviceID)
	assert.Equal(t, "esterel", found.ForestArea)

	missing := ResolveStation(ctx, stubLookup{err: errors.New("no such station")}, 9, slog.Default())
	assert.False(t, missing.Located)
	assert.Equal(t, PlaceholderStation(9), missing)

	assert.Equal(t, UnknownForestArea, ResolveStation(ctx, nil, 3, slog.Default()).ForestArea)
}
