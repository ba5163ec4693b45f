package codec

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReading() domain.Reading {
	return domain.Reading{
		DeviceID:       0x0102,
		Timestamp:      time.Date(2025, time.July, 14, 12, 0, 0, 0, time.UTC),
		BatteryVoltage: 3.7,
		StatusBits:     domain.StatusCharging,
		Temperature:    22.5,
		AirHumidity:    41,
		SoilHumidity:   28,
		AirPressure:    1001.4,
		Rain:           1.2,
		WindSpeed:      30,
		WindDirection:  135,
	}
}

func TestQuantize_Temperature(t *testing.T) {
	f := Quantize(sampleReading())
	assert.Equal(t, int16(170), f.Temperature)

	r := Dequantize(f)
	assert.InDelta(t, 22.5, r.Temperature, temperatureStep/2)
}

func TestPack_SizeAndByteOrder(t *testing.T) {
	buf := Encode(sampleReading())
	require.Len(t, buf, FrameSize)

	assert.Equal(t, byte(0x01), buf[0])
	assert.Equal(t, byte(0x02), buf[1])
	assert.Equal(t, domain.StatusCharging, buf[8])
	// temperature 170 = 0x00AA
	assert.Equal(t, byte(0x00), buf[9])
	assert.Equal(t, byte(0xAA), buf[10])
	// wind direction 135 / 0.5 = 270 = 0x010E
	assert.Equal(t, byte(0x01), buf[18])
	assert.Equal(t, byte(0x0E), buf[19])
}

func TestEncodeDecode_WithinOneStep(t *testing.T) {
	in := sampleReading()
	out, err := Decode(Encode(in))
	require.NoError(t, err)

	assert.Equal(t, in.DeviceID, out.DeviceID)
	assert.True(t, in.Timestamp.Equal(out.Timestamp))
	assert.Equal(t, in.StatusBits, out.StatusBits)
	assert.InDelta(t, in.BatteryVoltage, out.BatteryVoltage, batteryStep)
	assert.InDelta(t, in.Temperature, out.Temperature, temperatureStep)
	assert.InDelta(t, in.AirHumidity, out.AirHumidity, 1)
	assert.InDelta(t, in.SoilHumidity, out.SoilHumidity, 1)
	assert.InDelta(t, in.AirPressure, out.AirPressure, pressureStep)
	assert.InDelta(t, in.Rain, out.Rain, rainStep)
	assert.InDelta(t, in.WindSpeed, out.WindSpeed, windSpeedStep)
	assert.InDelta(t, in.WindDirection, out.WindDirection, windDirStep)
}

func TestQuantize_Saturates(t *testing.T) {
	r := sampleReading()
	r.Temperature = 1e6
	r.AirHumidity = 300
	r.SoilHumidity = -5
	r.AirPressure = -10
	r.Rain = 1e9
	r.WindSpeed = 100
	r.WindDirection = math.NaN()

	f := Quantize(r)
	assert.Equal(t, int16(math.MaxInt16), f.Temperature)
	assert.Equal(t, uint8(math.MaxUint8), f.AirHumidity)
	assert.Equal(t, uint8(0), f.SoilHumidity)
	assert.Equal(t, uint16(0), f.AirPressure)
	assert.Equal(t, uint16(math.MaxUint16), f.Rain)
	assert.Equal(t, uint8(math.MaxUint8), f.WindSpeed)
	assert.Equal(t, uint16(0), f.WindDirection)

	r.Temperature = -1e6
	assert.Equal(t, int16(math.MinInt16), Quantize(r).Temperature)
}

func TestQuantize_InvertsDequantize(t *testing.T) {
	frames := []Frame{
		{},
		{DeviceID: 1, Timestamp: 1_700_000_000, BatteryVoltage: 370, Temperature: 170, AirHumidity: 41, SoilHumidity: 28, AirPressure: 10132, Rain: 6, WindSpeed: 150, WindDirection: 270},
		{DeviceID: math.MaxUint16, Timestamp: math.MaxUint32, BatteryVoltage: math.MaxUint16, StatusBits: 0xFF, Temperature: math.MaxInt16, AirHumidity: 255, SoilHumidity: 255, AirPressure: math.MaxUint16, Rain: math.MaxUint16, WindSpeed: 255, WindDirection: math.MaxUint16},
		{Temperature: math.MinInt16},
		{Temperature: -3},
	}
	for p := 0; p <= math.MaxUint16; p += 7 {
		frames = append(frames, Frame{AirPressure: uint16(p), Rain: uint16(p), BatteryVoltage: uint16(p), WindDirection: uint16(p), Temperature: int16(p - 32768)})
	}

	for _, f := range frames {
		got := Quantize(Dequantize(f))
		if diff := cmp.Diff(f, got); diff != "" {
			t.Fatalf("frame mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestUnpack_RejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 19, 21, 40} {
		_, err := Unpack(make([]byte, n))
		assert.True(t, errors.Is(err, ErrFrameSize), "len %d", n)
	}
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrFrameSize)
}
