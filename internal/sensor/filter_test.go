package sensor

import (
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(id uint16, temp, dir float64) domain.Reading {
	return domain.Reading{
		DeviceID:      id,
		Timestamp:     time.Unix(1_700_000_000, 0).UTC(),
		Temperature:   temp,
		AirHumidity:   40,
		SoilHumidity:  30,
		AirPressure:   1000,
		WindSpeed:     20,
		WindDirection: dir,
	}
}

func TestFilter_IdenticalSamplesAreIdempotent(t *testing.T) {
	for _, policy := range []Policy{Median, Mean} {
		f := NewFilter(policy, 6)
		in := reading(1, 0.1, 359.9)
		in.Rain = 0.3
		in.AirPressure = 1013.3
		var out domain.Reading
		for i := 0; i < 6; i++ {
			out = f.Apply(in)
		}
		assert.Equal(t, in, out, "policy %s", policy)
	}
}

func TestFilter_WindowDropsOldest(t *testing.T) {
	f := NewFilter(Mean, 3)
	for _, temp := range []float64{100, 10, 20, 30} {
		f.Apply(reading(1, temp, 0))
	}
	assert.Equal(t, 3, f.Buffered(1))

	out := f.Apply(reading(1, 40, 0))
	assert.InDelta(t, 30, out.Temperature, 1e-9)
}

func TestFilter_MedianRejectsSpike(t *testing.T) {
	f := NewFilter(Median, 5)
	for _, temp := range []float64{25, 26, AberrantTemperature, 24} {
		f.Apply(reading(1, temp, 90))
	}
	out := f.Apply(reading(1, 25, 90))
	assert.InDelta(t, 25, out.Temperature, 1e-9)
}

func TestFilter_DevicesAreIndependent(t *testing.T) {
	f := NewFilter(Mean, 4)
	f.Apply(reading(1, 10, 0))
	out := f.Apply(reading(2, 50, 0))
	assert.InDelta(t, 50, out.Temperature, 1e-9)
	assert.Equal(t, 1, f.Buffered(1))
	assert.Equal(t, 1, f.Buffered(2))
	assert.Equal(t, 0, f.Buffered(3))
}

func TestFilter_MetadataFromNewestSample(t *testing.T) {
	f := NewFilter(Mean, 4)
	first := reading(1, 10, 0)
	f.Apply(first)

	newest := reading(1, 20, 0)
	newest.Timestamp = first.Timestamp.Add(time.Second)
	newest.StatusBits = domain.StatusCharging
	newest.BatteryVoltage = 4.1

	out := f.Apply(newest)
	assert.Equal(t, newest.Timestamp, out.Timestamp)
	assert.Equal(t, newest.StatusBits, out.StatusBits)
	assert.InDelta(t, newest.BatteryVoltage, out.BatteryVoltage, 1e-12)
	assert.InDelta(t, 15, out.Temperature, 1e-9)
}

func TestFilter_WindDirectionAcrossNorth(t *testing.T) {
	f := NewFilter(Mean, 2)
	f.Apply(reading(1, 20, 350))
	out := f.Apply(reading(1, 20, 10))
	assert.InDelta(t, 0, out.WindDirection, 1e-9)
}

func TestFilter_AberrantDirection(t *testing.T) {
	f := NewFilter(Mean, 3)
	f.Apply(reading(1, 20, 100))
	f.Apply(reading(1, 20, AberrantWindDirection))
	out := f.Apply(reading(1, 20, 110))
	assert.InDelta(t, 105, out.WindDirection, 1e-9)

	out = f.Apply(reading(1, 20, AberrantWindDirection))
	assert.InDelta(t, AberrantWindDirection, out.WindDirection, 1e-9)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("MEAN")
	require.NoError(t, err)
	assert.Equal(t, Mean, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Median, p)

	_, err = ParsePolicy("mode")
	assert.Error(t, err)
}

func TestRing_OldestFirst(t *testing.T) {
	r := newRing(3)
	for i := 1; i <= 5; i++ {
		r.push(domain.Reading{DeviceID: uint16(i)})
	}
	items := r.items()
	require.Len(t, items, 3)
	assert.Equal(t, uint16(3), items[0].DeviceID)
	assert.Equal(t, uint16(5), items[2].DeviceID)
}
