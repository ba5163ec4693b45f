// Package codec converts sensor readings to and from the 20-byte
// big-endian telemetry frame.
//
// Frame layout:
//
//	off size field           encoding
//	  0  u16 device_id       raw
//	  2  u32 timestamp       epoch seconds
//	  6  u16 battery_voltage V x 100
//	  8  u8  status_bits     raw
//	  9  i16 temperature     (°C + 20) / 0.25
//	 11  u8  air_humidity    % raw
//	 12  u8  soil_humidity   % raw
//	 13  u16 air_pressure    hPa / 0.1
//	 15  u16 rain            mm / 0.2
//	 17  u8  wind_speed      / 0.2
//	 18  u16 wind_direction  deg / 0.5
//
// Values outside a field's integer range saturate at the nearest bound.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/domain"
)

// FrameSize is the exact wire size of a frame.
const FrameSize = 20

// ErrFrameSize is returned when unpacking a buffer that is not FrameSize long.
var ErrFrameSize = errors.New("invalid frame size")

const (
	temperatureOffset = 20.0
	temperatureStep   = 0.25
	batteryStep       = 0.01
	pressureStep      = 0.1
	rainStep          = 0.2
	windSpeedStep     = 0.2
	windDirStep       = 0.5

	// quantizeEpsilon absorbs binary float error so that values already on a
	// quantization step (e.g. 1013.2 / 0.1) do not truncate one step low.
	quantizeEpsilon = 1e-6
)

// Frame is the quantized integer form of a reading.
type Frame struct {
	DeviceID       uint16
	Timestamp      uint32
	BatteryVoltage uint16
	StatusBits     uint8
	Temperature    int16
	AirHumidity    uint8
	SoilHumidity   uint8
	AirPressure    uint16
	Rain           uint16
	WindSpeed      uint8
	WindDirection  uint16
}

// Quantize scales a reading into wire integers, truncating toward zero and
// saturating at each field's integer range.
func Quantize(r domain.Reading) Frame {
	return Frame{
		DeviceID:       r.DeviceID,
		Timestamp:      uint32(clampInt(unixSeconds(r.Timestamp), 0, math.MaxUint32)),
		BatteryVoltage: uint16(scaled(r.BatteryVoltage, 0, batteryStep, 0, math.MaxUint16)),
		StatusBits:     r.StatusBits,
		Temperature:    int16(scaled(r.Temperature, temperatureOffset, temperatureStep, math.MinInt16, math.MaxInt16)),
		AirHumidity:    uint8(scaled(r.AirHumidity, 0, 1, 0, math.MaxUint8)),
		SoilHumidity:   uint8(scaled(r.SoilHumidity, 0, 1, 0, math.MaxUint8)),
		AirPressure:    uint16(scaled(r.AirPressure, 0, pressureStep, 0, math.MaxUint16)),
		Rain:           uint16(scaled(r.Rain, 0, rainStep, 0, math.MaxUint16)),
		WindSpeed:      uint8(scaled(r.WindSpeed, 0, windSpeedStep, 0, math.MaxUint8)),
		WindDirection:  uint16(scaled(r.WindDirection, 0, windDirStep, 0, math.MaxUint16)),
	}
}

// Dequantize converts wire integers back to physical units.
func Dequantize(f Frame) domain.Reading {
	return domain.Reading{
		DeviceID:       f.DeviceID,
		Timestamp:      time.Unix(int64(f.Timestamp), 0).UTC(),
		BatteryVoltage: float64(f.BatteryVoltage) * batteryStep,
		StatusBits:     f.StatusBits,
		Temperature:    float64(f.Temperature)*temperatureStep - temperatureOffset,
		AirHumidity:    float64(f.AirHumidity),
		SoilHumidity:   float64(f.SoilHumidity),
		AirPressure:    float64(f.AirPressure) * pressureStep,
		Rain:           float64(f.Rain) * rainStep,
		WindSpeed:      float64(f.WindSpeed) * windSpeedStep,
		WindDirection:  float64(f.WindDirection) * windDirStep,
	}
}

// Pack serializes f into its 20-byte big-endian form.
func Pack(f Frame) []byte {
	buf := make([]byte, FrameSize)
	binary.BigEndian.PutUint16(buf[0:], f.DeviceID)
	binary.BigEndian.PutUint32(buf[2:], f.Timestamp)
	binary.BigEndian.PutUint16(buf[6:], f.BatteryVoltage)
	buf[8] = f.StatusBits
	binary.BigEndian.PutUint16(buf[9:], uint16(f.Temperature))
	buf[11] = f.AirHumidity
	buf[12] = f.SoilHumidity
	binary.BigEndian.PutUint16(buf[13:], f.AirPressure)
	binary.BigEndian.PutUint16(buf[15:], f.Rain)
	buf[17] = f.WindSpeed
	binary.BigEndian.PutUint16(buf[18:], f.WindDirection)
	return buf
}

// Unpack parses a 20-byte frame. Any other length is rejected.
func Unpack(buf []byte) (Frame, error) {
	if len(buf) != FrameSize {
		return Frame{}, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(buf), FrameSize)
	}
	return Frame{
		DeviceID:       binary.BigEndian.Uint16(buf[0:]),
		Timestamp:      binary.BigEndian.Uint32(buf[2:]),
		BatteryVoltage: binary.BigEndian.Uint16(buf[6:]),
		StatusBits:     buf[8],
		Temperature:    int16(binary.BigEndian.Uint16(buf[9:])),
		AirHumidity:    buf[11],
		SoilHumidity:   buf[12],
		AirPressure:    binary.BigEndian.Uint16(buf[13:]),
		Rain:           binary.BigEndian.Uint16(buf[15:]),
		WindSpeed:      buf[17],
		WindDirection:  binary.BigEndian.Uint16(buf[18:]),
	}, nil
}

// Encode is Quantize followed by Pack.
func Encode(r domain.Reading) []byte { return Pack(Quantize(r)) }

// Decode is Unpack followed by Dequantize.
func Decode(buf []byte) (domain.Reading, error) {
	f, err := Unpack(buf)
	if err != nil {
		return domain.Reading{}, err
	}
	return Dequantize(f), nil
}

func scaled(v, offset, step float64, lo, hi int64) int64 {
	if math.IsNaN(v) {
		return clampInt(0, lo, hi)
	}
	q := (v + offset) / step
	if q >= 0 {
		q = math.Trunc(q + quantizeEpsilon)
	} else {
		q = math.Trunc(q - quantizeEpsilon)
	}
	switch {
	case q <= float64(lo):
		return lo
	case q >= float64(hi):
		return hi
	}
	return int64(q)
}

func unixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func clampInt(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
