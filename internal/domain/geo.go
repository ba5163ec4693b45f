package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// Location is a WGS-84 position with altitude in metres.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// BBox is a geographic bounding box. On the wire it is the four-element
// array [min_lon, min_lat, max_lon, max_lat].
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// UnitBBox is used when no real extent is known.
var UnitBBox = BBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}

func (b BBox) Width() float64  { return b.MaxLon - b.MinLon }
func (b BBox) Height() float64 { return b.MaxLat - b.MinLat }

// Contains reports whether (lat, lon) lies inside b, edges included.
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Valid reports whether the box has finite, ordered corners.
func (b BBox) Valid() bool {
	for _, v := range []float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.MinLon <= b.MaxLon && b.MinLat <= b.MaxLat
}

// Union returns the smallest box covering both b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		MinLon: math.Min(b.MinLon, o.MinLon),
		MinLat: math.Min(b.MinLat, o.MinLat),
		MaxLon: math.Max(b.MaxLon, o.MaxLon),
		MaxLat: math.Max(b.MaxLat, o.MaxLat),
	}
}

func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat})
}

func (b *BBox) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("decode bbox: %w", err)
	}
	if len(arr) != 4 {
		return fmt.Errorf("decode bbox: want 4 values, got %d", len(arr))
	}
	*b = BBox{MinLon: arr[0], MinLat: arr[1], MaxLon: arr[2], MaxLat: arr[3]}
	return nil
}

// Mapping converts between grid cells and geographic coordinates for a
// W x H grid laid over BBox.
type Mapping struct {
	BBox BBox
	W, H int
}

// CellSize returns the latitude and longitude extent of one cell.
func (m Mapping) CellSize() (lat, lon float64) {
	return m.BBox.Height() / float64(m.H), m.BBox.Width() / float64(m.W)
}

// CellToGeo returns the south-west anchor of cell (x, y).
func (m Mapping) CellToGeo(x, y int) (lat, lon float64) {
	cellLat, cellLon := m.CellSize()
	return m.BBox.MinLat + float64(y)*cellLat, m.BBox.MinLon + float64(x)*cellLon
}

// GeoToCell returns the nearest cell for (lat, lon), clamped to the grid.
// A zero-extent axis maps every coordinate to index 0.
func (m Mapping) GeoToCell(lat, lon float64) (x, y int) {
	cellLat, cellLon := m.CellSize()
	return axisIndex(lon-m.BBox.MinLon, cellLon, m.W), axisIndex(lat-m.BBox.MinLat, cellLat, m.H)
}

func axisIndex(offset, step float64, n int) int {
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return 0
	}
	f := math.Round(offset / step)
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > float64(n-1) {
		return n - 1
	}
	return int(f)
}
