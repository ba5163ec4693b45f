// Package satellite turns satellite imagery into fire-state grids and
// renders synthetic views of a simulated fire.
package satellite

import (
	"image"
	"image/color"

	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/grid"
)

// Pixel thresholds.
const (
	burntMaxChannel = 80
	burntMaxSpread  = 30
	fireRedMargin   = 40
)

// ClassifyPixel maps one RGB pixel to a cell state. Fire wins over burnt.
func ClassifyPixel(r, g, b uint8) domain.CellState {
	ri, gi, bi := int(r), int(g), int(b)
	if ri > gi+fireRedMargin && ri > bi+fireRedMargin {
		return domain.Burning
	}
	if ri < burntMaxChannel && gi < burntMaxChannel && bi < burntMaxChannel &&
		absInt(ri-gi) < burntMaxSpread && absInt(gi-bi) < burntMaxSpread && absInt(ri-bi) < burntMaxSpread {
		return domain.Burnt
	}
	return domain.Vegetation
}

// Classify labels every pixel of img. Image row 0 is north; the returned
// grid has row 0 south.
func Classify(img image.Image) *grid.Grid[domain.CellState] {
	b := img.Bounds()
	out := grid.New[domain.CellState](b.Dx(), b.Dy())
	for py := b.Min.Y; py < b.Max.Y; py++ {
		y := out.H - 1 - (py - b.Min.Y)
		for px := b.Min.X; px < b.Max.X; px++ {
			c := color.RGBAModel.Convert(img.At(px, py)).(color.RGBA)
			out.Set(px-b.Min.X, y, ClassifyPixel(c.R, c.G, c.B))
		}
	}
	return out
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
