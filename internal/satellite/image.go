package satellite

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // accepted envelope encoding
	"image/png"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/grid"
	"golang.org/x/image/draw"
)

// ErrEmptyImage is returned for envelopes without image data.
var ErrEmptyImage = errors.New("satellite envelope has no image")

// Palette used when rendering a synthetic view.
var (
	VegetationColor = color.RGBA{R: 34, G: 139, B: 34, A: 255}
	BurningColor    = color.RGBA{R: 220, G: 40, B: 20, A: 255}
	BurntColor      = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	AtRiskColor     = color.RGBA{R: 230, G: 160, B: 30, A: 255}
)

// Resample scales img to size x size with bilinear interpolation. The 2x2
// support is kept when shrinking, so a render scaled by an integer factor
// resamples back to its exact cell colours.
func Resample(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// DecodeEnvelope decodes the base64 image of env, resamples it to size x size
// and classifies it.
func DecodeEnvelope(env domain.SatelliteEnvelope, size int) (*grid.Grid[domain.CellState], error) {
	if env.Image == "" {
		return nil, ErrEmptyImage
	}
	raw, err := base64.StdEncoding.DecodeString(env.Image)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode %s image: %w", format, ErrEmptyImage)
	}
	return Classify(Resample(img, size)), nil
}

// Render draws state as an image with scale x scale pixels per cell, north
// up.
func Render(state *grid.Grid[domain.CellState], scale int) *image.RGBA {
	scale = max(scale, 1)
	img := image.NewRGBA(image.Rect(0, 0, state.W*scale, state.H*scale))
	for y := 0; y < state.H; y++ {
		row := state.H - 1 - y
		for x := 0; x < state.W; x++ {
			c := colorFor(state.At(x, y))
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetRGBA(x*scale+dx, row*scale+dy, c)
				}
			}
		}
	}
	return img
}

// EncodeEnvelope PNG-compresses img and wraps it with its extent.
func EncodeEnvelope(img image.Image, bbox domain.BBox, at time.Time) (domain.SatelliteEnvelope, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.SatelliteEnvelope{}, fmt.Errorf("encode png: %w", err)
	}
	b := bbox
	return domain.SatelliteEnvelope{
		Image:     base64.StdEncoding.EncodeToString(buf.Bytes()),
		BBox:      &b,
		Timestamp: at.UTC(),
	}, nil
}

func colorFor(s domain.CellState) color.RGBA {
	switch s {
	case domain.Burning:
		return BurningColor
	case domain.Burnt:
		return BurntColor
	case domain.AtRisk:
		return AtRiskColor
	default:
		return VegetationColor
	}
}
