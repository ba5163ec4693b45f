package sensor

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/codec"
	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/environment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatEnv(t *testing.T) *environment.Environment {
	t.Helper()
	cfg := environment.DefaultConfig()
	cfg.Size = 10
	env := environment.New(cfg, rand.New(rand.NewPCG(1, 1)))
	env.Temperature.Fill(20)
	env.AirHumidity.Fill(40)
	env.SoilHumidity.Fill(30)
	env.AirPressure.Fill(1000)
	env.WindSpeed.Fill(10)
	env.WindDirection.Fill(90)
	return env
}

func TestSample_WindowSemantics(t *testing.T) {
	env := flatEnv(t)
	env.Temperature.Set(6, 5, 300)  // inside the window of (5,5)
	env.Temperature.Set(9, 9, 900)  // outside
	env.AirHumidity.Set(5, 5, 65)   // 24 cells at 40, one at 65
	env.WindDirection.Set(5, 5, 42) // centre only
	env.WindDirection.Set(5, 6, 270)

	n := NewNetworkAt(DefaultNetworkConfig(), []Sensor{{ID: 3, X: 5, Y: 5}}, rand.New(rand.NewPCG(1, 1)))
	now := time.Unix(1_700_000_000, 0).UTC()
	readings := n.Sample(env, now)

	require.Len(t, readings, 1)
	r := readings[0]
	assert.Equal(t, uint16(3), r.DeviceID)
	assert.Equal(t, now, r.Timestamp)
	assert.InDelta(t, 300, r.Temperature, 1e-9)
	assert.InDelta(t, 41, r.AirHumidity, 1e-9)
	assert.InDelta(t, 42, r.WindDirection, 1e-9)
	assert.InDelta(t, 10, r.WindSpeed, 1e-9)
}

func TestSample_ClipsAtCorner(t *testing.T) {
	env := flatEnv(t)
	env.AirHumidity.Set(0, 0, 49) // 9 cells in the clipped window

	n := NewNetworkAt(DefaultNetworkConfig(), []Sensor{{ID: 1, X: 0, Y: 0}}, rand.New(rand.NewPCG(1, 1)))
	r := n.Sample(env, time.Now())[0]
	assert.InDelta(t, 41, r.AirHumidity, 1e-9)
}

func TestSample_AberrationsFailValidationAfterCodec(t *testing.T) {
	env := flatEnv(t)
	cfg := DefaultNetworkConfig()
	cfg.AberrationRate = 1
	n := NewNetworkAt(cfg, []Sensor{{ID: 1, X: 2, Y: 2}}, rand.New(rand.NewPCG(1, 1)))

	r := n.Sample(env, time.Now())[0]
	assert.InDelta(t, AberrantTemperature, r.Temperature, 1e-9)
	assert.InDelta(t, AberrantWindDirection, r.WindDirection, 1e-9)

	decoded, err := codec.Decode(codec.Encode(r))
	require.NoError(t, err)
	assert.ErrorIs(t, decoded.Validate(), domain.ErrOutOfRange)
}

func TestNewNetwork_PlacesSensorsOnGrid(t *testing.T) {
	n := NewNetwork(NetworkConfig{Count: 25, Radius: 2}, 8, rand.New(rand.NewPCG(5, 6)))
	sensors := n.Sensors()
	require.Len(t, sensors, 25)
	for i, s := range sensors {
		assert.Equal(t, uint16(i+1), s.ID)
		assert.GreaterOrEqual(t, s.X, 0)
		assert.Less(t, s.X, 8)
		assert.GreaterOrEqual(t, s.Y, 0)
		assert.Less(t, s.Y, 8)
	}
}

func TestStations_UseEnvironmentGeo(t *testing.T) {
	env := flatEnv(t)
	n := NewNetworkAt(DefaultNetworkConfig(), []Sensor{{ID: 4, X: 3, Y: 7}}, rand.New(rand.NewPCG(1, 1)))

	st := n.Stations(env, "esterel")
	require.Len(t, st, 1)
	lat, lon := env.GridToGeo(3, 7)
	assert.InDelta(t, lat, st[0].Location.Latitude, 1e-12)
	assert.InDelta(t, lon, st[0].Location.Longitude, 1e-12)
	assert.InDelta(t, env.Altitude.At(3, 7), st[0].Location.Altitude, 1e-12)
	assert.Equal(t, "esterel", st[0].ForestArea)
}
