package environment

import (
	"math/rand/v2"

	"github.com/couchcryptid/wildfire-watch/internal/grid"
)

// GenerateSmoothField draws uniform noise in [Low, High) and smooths it with
// a box mean over a (2r+1)² window clipped at the grid edges. A zero radius
// returns the raw noise. The result always stays within [Low, High].
func GenerateSmoothField(rng *rand.Rand, w, h int, fr FieldRange) *grid.Grid[float64] {
	noise := grid.New[float64](w, h)
	cells := noise.Cells()
	for i := range cells {
		cells[i] = fr.Low + rng.Float64()*(fr.High-fr.Low)
	}
	if fr.Radius <= 0 {
		return noise
	}

	out := grid.New[float64](noise.W, noise.H)
	r := fr.Radius
	for y := 0; y < noise.H; y++ {
		for x := 0; x < noise.W; x++ {
			sum, n := 0.0, 0
			for yy := max(0, y-r); yy <= min(noise.H-1, y+r); yy++ {
				for xx := max(0, x-r); xx <= min(noise.W-1, x+r); xx++ {
					sum += noise.At(xx, yy)
					n++
				}
			}
			out.Set(x, y, sum/float64(n))
		}
	}
	return out
}
