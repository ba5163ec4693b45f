// Command validate checks a scenario fixture written by genmock: frame
// sizes, codec round trips, reading ranges, station coverage and the
// satellite view's classification against the recorded fire counts.
//
// Usage:
//
//	go run ./cmd/validate -fixture data/mock/scenario_seed42.json
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/couchcryptid/wildfire-watch/internal/codec"
	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/satellite"
	"github.com/couchcryptid/wildfire-watch/internal/simulation"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// decodedFrame is a fixture frame after hex and codec decoding.
type decodedFrame struct {
	simulation.FixtureFrame
	reading domain.Reading
	ok      bool
}

func main() {
	fixturePath := flag.String("fixture", "", "path to the scenario fixture")
	flag.Parse()

	if *fixturePath == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*fixturePath))
}

func run(path string) int {
	fmt.Println("=== Wildfire Scenario Validation ===")
	fmt.Println()

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read fixture: %v\n", err)
		return 1
	}
	var fx simulation.Fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: parse fixture: %v\n", err)
		return 1
	}

	frames, framePhase := validateFrames(fx)
	phases := []*phase{
		framePhase,
		validateRanges(frames),
		validateStations(fx, frames),
		validateFinalReadings(fx, frames),
		validateSatellite(fx),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Seed %d: %d steps, %d stations, %d frames\n", fx.Seed, fx.Steps, len(fx.Stations), len(fx.Frames))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// validateFrames decodes every frame and checks that packing is stable.
func validateFrames(fx simulation.Fixture) ([]decodedFrame, *phase) {
	p := &phase{name: "Frame size and codec round trip"}
	out := make([]decodedFrame, 0, len(fx.Frames))
	for i, f := range fx.Frames {
		d := decodedFrame{FixtureFrame: f}
		raw, err := hex.DecodeString(f.Hex)
		if err != nil {
			p.errorf("frame %d: bad hex: %v", i, err)
			out = append(out, d)
			continue
		}
		if len(raw) != codec.FrameSize {
			p.errorf("frame %d: %d bytes, want %d", i, len(raw), codec.FrameSize)
			out = append(out, d)
			continue
		}
		r, err := codec.Decode(raw)
		if err != nil {
			p.errorf("frame %d: decode: %v", i, err)
			out = append(out, d)
			continue
		}
		if r.DeviceID != f.DeviceID {
			p.errorf("frame %d: device id %d in payload, %d in fixture", i, r.DeviceID, f.DeviceID)
		}
		if again := codec.Encode(r); !bytes.Equal(again, raw) {
			p.errorf("frame %d: re-encode differs: %x vs %x", i, again, raw)
		}
		d.reading = r
		d.ok = true
		out = append(out, d)
	}
	if want := fx.Steps * len(fx.Stations); len(fx.Frames) != want {
		p.errorf("%d frames, want %d (steps x stations)", len(fx.Frames), want)
	}
	return out, p
}

func validateRanges(frames []decodedFrame) *phase {
	p := &phase{name: "Reading ranges"}
	for i, f := range frames {
		if !f.ok {
			continue
		}
		if err := f.reading.Validate(); err != nil {
			p.errorf("frame %d (device %d, step %d): %v", i, f.DeviceID, f.Step, err)
		}
	}
	return p
}

func validateStations(fx simulation.Fixture, frames []decodedFrame) *phase {
	p := &phase{name: "Station coverage"}
	known := make(map[uint16]domain.Station, len(fx.Stations))
	for _, s := range fx.Stations {
		if _, dup := known[s.DeviceID]; dup {
			p.errorf("duplicate station %d", s.DeviceID)
		}
		known[s.DeviceID] = s
		if fx.Satellite.BBox != nil && !fx.Satellite.BBox.Contains(s.Location.Latitude, s.Location.Longitude) {
			p.errorf("station %d at (%.5f, %.5f) outside the scenario bbox", s.DeviceID, s.Location.Latitude, s.Location.Longitude)
		}
	}
	for i, f := range frames {
		if _, ok := known[f.DeviceID]; !ok {
			p.errorf("frame %d: device %d has no station", i, f.DeviceID)
		}
	}
	return p
}

// validateFinalReadings compares the last step's frames with the recorded
// filtered readings, allowing for quantization.
func validateFinalReadings(fx simulation.Fixture, frames []decodedFrame) *phase {
	p := &phase{name: "Final step readings"}
	last := make(map[uint16]domain.Reading)
	for _, f := range frames {
		if f.ok && f.Step == fx.Steps {
			last[f.DeviceID] = f.reading
		}
	}
	for _, want := range fx.Readings {
		got, ok := last[want.DeviceID]
		if !ok {
			p.errorf("device %d: no frame in final step", want.DeviceID)
			continue
		}
		if math.Abs(got.Temperature-want.Temperature) > 0.5 {
			p.errorf("device %d: temperature %.2f in frame, %.2f recorded", want.DeviceID, got.Temperature, want.Temperature)
		}
		if math.Abs(got.AirHumidity-want.AirHumidity) > 1 {
			p.errorf("device %d: air humidity %.2f in frame, %.2f recorded", want.DeviceID, got.AirHumidity, want.AirHumidity)
		}
	}
	return p
}

func validateSatellite(fx simulation.Fixture) *phase {
	p := &phase{name: "Satellite view classification"}
	if fx.GridSize <= 0 {
		p.errorf("fixture has no grid size")
		return p
	}
	classes, err := satellite.DecodeEnvelope(fx.Satellite, fx.GridSize)
	if err != nil {
		p.errorf("decode: %v", err)
		return p
	}
	var burning, burnt int
	for _, c := range classes.Cells() {
		switch c {
		case domain.Burning:
			burning++
		case domain.Burnt:
			burnt++
		}
	}
	if burning != fx.Counts.Burning {
		p.errorf("%d burning cells classified, %d recorded", burning, fx.Counts.Burning)
	}
	if burnt != fx.Counts.Burnt {
		p.errorf("%d burnt cells classified, %d recorded", burnt, fx.Counts.Burnt)
	}
	return p
}
