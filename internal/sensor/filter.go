package sensor

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"gonum.org/v1/gonum/floats"
)

// Policy selects how a window of samples is reduced.
type Policy int

const (
	Median Policy = iota
	Mean
)

func (p Policy) String() string {
	if p == Mean {
		return "mean"
	}
	return "median"
}

// ParsePolicy maps "median" or "mean" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "median", "":
		return Median, nil
	case "mean":
		return Mean, nil
	default:
		return Median, fmt.Errorf("unknown filter policy %q", s)
	}
}

// Filter smooths each device's stream over a sliding window. Weather fields
// are reduced with the policy; identity, timestamp, battery and status pass
// through from the newest sample. Wind direction is reduced on offsets from
// the newest sample's direction so windows straddling north do not average
// to south; directions outside [0, 360) are left out of that reduction and
// an out-of-range newest direction passes through as is. Not safe for
// concurrent use.
type Filter struct {
	policy Policy
	window int
	rings  map[uint16]*ring
}

// NewFilter returns a filter with the given policy and window size.
func NewFilter(policy Policy, window int) *Filter {
	return &Filter{policy: policy, window: max(window, 1), rings: make(map[uint16]*ring)}
}

// Policy returns the configured reduction policy.
func (f *Filter) Policy() Policy { return f.policy }

// Apply pushes r into its device window and returns the smoothed reading.
func (f *Filter) Apply(r domain.Reading) domain.Reading {
	rg, ok := f.rings[r.DeviceID]
	if !ok {
		rg = newRing(f.window)
		f.rings[r.DeviceID] = rg
	}
	rg.push(r)
	return reduce(f.policy, rg.items())
}

// Buffered returns how many samples are held for a device.
func (f *Filter) Buffered(deviceID uint16) int {
	if rg, ok := f.rings[deviceID]; ok {
		return rg.len()
	}
	return 0
}

func reduce(policy Policy, samples []domain.Reading) domain.Reading {
	out := samples[len(samples)-1]
	pick := func(get func(domain.Reading) float64) float64 {
		ref := get(out)
		offsets := make([]float64, len(samples))
		for i, s := range samples {
			offsets[i] = get(s) - ref
		}
		return ref + aggregate(policy, offsets)
	}

	out.Temperature = pick(func(r domain.Reading) float64 { return r.Temperature })
	out.AirHumidity = pick(func(r domain.Reading) float64 { return r.AirHumidity })
	out.SoilHumidity = pick(func(r domain.Reading) float64 { return r.SoilHumidity })
	out.AirPressure = pick(func(r domain.Reading) float64 { return r.AirPressure })
	out.Rain = pick(func(r domain.Reading) float64 { return r.Rain })
	out.WindSpeed = pick(func(r domain.Reading) float64 { return r.WindSpeed })

	ref := out.WindDirection
	if !validDirection(ref) {
		return out
	}
	offsets := make([]float64, 0, len(samples))
	for _, s := range samples {
		if validDirection(s.WindDirection) {
			offsets = append(offsets, angleDiff(s.WindDirection, ref))
		}
	}
	out.WindDirection = normalizeDegrees(ref + aggregate(policy, offsets))
	return out
}

func validDirection(d float64) bool {
	return d >= 0 && d < domain.MaxWindDegrees
}

func aggregate(policy Policy, vals []float64) float64 {
	if policy == Mean {
		return floats.Sum(vals) / float64(len(vals))
	}
	sorted := slices.Clone(vals)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// angleDiff returns a - b folded into [-180, 180).
func angleDiff(a, b float64) float64 {
	d := math.Mod(a-b+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}

func normalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}
