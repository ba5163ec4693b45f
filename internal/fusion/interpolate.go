package fusion

import (
	"math"
	"slices"

	"github.com/couchcryptid/wildfire-watch/internal/automaton"
	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/grid"
)

// Field is an interpolated weather field laid over a geographic extent.
type Field struct {
	Mapping      domain.Mapping
	Fields       automaton.Fields
	Interpolated bool
}

// Interpolate builds the weather field from located devices using
// nearest-neighbour assignment in (lon, lat). The extent is the station box
// grown by the margin, unioned with satBBox when one is known, so station
// and satellite data share one grid. With fewer than cfg.MinDevices located
// devices it returns the flat defaults over satBBox, or over
// cfg.Defaults.BBox when satBBox is nil.
func Interpolate(cfg Config, devices []DeviceRecord, satBBox *domain.BBox) Field {
	located := make([]DeviceRecord, 0, len(devices))
	for _, d := range devices {
		if d.Station.Located {
			located = append(located, d)
		}
	}
	slices.SortFunc(located, func(a, b DeviceRecord) int {
		return int(a.Reading.DeviceID) - int(b.Reading.DeviceID)
	})

	n := max(cfg.GridSize, 1)
	if len(located) < max(cfg.MinDevices, 1) {
		bbox := cfg.Defaults.BBox
		if satBBox != nil && satBBox.Valid() {
			bbox = *satBBox
		}
		return flatField(cfg.Defaults, domain.Mapping{BBox: bbox, W: n, H: n})
	}

	extent := stationExtent(cfg, located)
	if satBBox != nil && satBBox.Valid() {
		extent = extent.Union(*satBBox)
	}
	m := domain.Mapping{BBox: extent, W: n, H: n}
	f := newFields(n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			lat, lon := m.CellToGeo(x, y)
			d := nearest(located, lat, lon)
			f.Temperature.Set(x, y, d.Reading.Temperature)
			f.AirHumidity.Set(x, y, d.Reading.AirHumidity)
			f.SoilHumidity.Set(x, y, d.Reading.SoilHumidity)
			f.Altitude.Set(x, y, d.Station.Location.Altitude)
			f.WindSpeed.Set(x, y, d.Reading.WindSpeed)
			f.WindDirection.Set(x, y, d.Reading.WindDirection)
		}
	}
	return Field{Mapping: m, Fields: f, Interpolated: true}
}

func flatField(d Defaults, m domain.Mapping) Field {
	return Field{
		Mapping: m,
		Fields: automaton.Fields{
			Temperature:   grid.Filled(m.W, m.H, d.Temperature),
			AirHumidity:   grid.Filled(m.W, m.H, d.AirHumidity),
			SoilHumidity:  grid.Filled(m.W, m.H, d.SoilHumidity),
			Altitude:      grid.Filled(m.W, m.H, d.Altitude),
			WindSpeed:     grid.Filled(m.W, m.H, d.WindSpeed),
			WindDirection: grid.Filled(m.W, m.H, d.WindDirection),
		},
	}
}

func newFields(n int) automaton.Fields {
	return automaton.Fields{
		Temperature:   grid.New[float64](n, n),
		AirHumidity:   grid.New[float64](n, n),
		SoilHumidity:  grid.New[float64](n, n),
		Altitude:      grid.New[float64](n, n),
		WindSpeed:     grid.New[float64](n, n),
		WindDirection: grid.New[float64](n, n),
	}
}

// stationExtent returns the bounding box of the stations grown by the
// configured margin.
func stationExtent(cfg Config, devices []DeviceRecord) domain.BBox {
	b := domain.BBox{MinLon: math.Inf(1), MinLat: math.Inf(1), MaxLon: math.Inf(-1), MaxLat: math.Inf(-1)}
	for _, d := range devices {
		loc := d.Station.Location
		b.MinLon = math.Min(b.MinLon, loc.Longitude)
		b.MaxLon = math.Max(b.MaxLon, loc.Longitude)
		b.MinLat = math.Min(b.MinLat, loc.Latitude)
		b.MaxLat = math.Max(b.MaxLat, loc.Latitude)
	}
	dLon := b.Width() * cfg.BBoxMargin
	if dLon <= 0 {
		dLon = cfg.DegenerateMargin
	}
	dLat := b.Height() * cfg.BBoxMargin
	if dLat <= 0 {
		dLat = cfg.DegenerateMargin
	}
	return domain.BBox{
		MinLon: b.MinLon - dLon,
		MinLat: b.MinLat - dLat,
		MaxLon: b.MaxLon + dLon,
		MaxLat: b.MaxLat + dLat,
	}
}

func nearest(devices []DeviceRecord, lat, lon float64) DeviceRecord {
	best, bestDist := 0, math.Inf(1)
	for i, d := range devices {
		dLat := d.Station.Location.Latitude - lat
		dLon := d.Station.Location.Longitude - lon
		if dist := dLat*dLat + dLon*dLon; dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return devices[best]
}
