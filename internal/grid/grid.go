// Package grid provides a dense, row-major 2D grid used by every
// simulation and fusion layer.
package grid

// Grid stores W*H cells in row-major order: index = y*W + x.
// Row 0 is the southern edge of the mapped area.
type Grid[T any] struct {
	W, H int
	data []T
}

// New allocates a grid with the given dimensions. Non-positive dimensions
// are raised to 1.
func New[T any](w, h int) *Grid[T] {
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	return &Grid[T]{W: w, H: h, data: make([]T, w*h)}
}

// Filled allocates a grid with every cell set to v.
func Filled[T any](w, h int, v T) *Grid[T] {
	g := New[T](w, h)
	g.Fill(v)
	return g
}

// Cells exposes the backing slice so callers can read/write values directly.
func (g *Grid[T]) Cells() []T { return g.data }

// Index returns the linear slice index for coordinates (x, y).
func (g *Grid[T]) Index(x, y int) int { return y*g.W + x }

// InBounds reports whether (x, y) addresses a cell.
func (g *Grid[T]) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.W && y < g.H
}

// At returns the value at (x, y). Callers must stay in bounds.
func (g *Grid[T]) At(x, y int) T { return g.data[y*g.W+x] }

// Set stores v at (x, y).
func (g *Grid[T]) Set(x, y int, v T) { g.data[y*g.W+x] = v }

// Fill sets every cell to v.
func (g *Grid[T]) Fill(v T) {
	for i := range g.data {
		g.data[i] = v
	}
}

// Clone returns a deep copy.
func (g *Grid[T]) Clone() *Grid[T] {
	out := &Grid[T]{W: g.W, H: g.H, data: make([]T, len(g.data))}
	copy(out.data, g.data)
	return out
}

// CopyFrom overwrites g with the contents of src. Dimensions must match.
func (g *Grid[T]) CopyFrom(src *Grid[T]) {
	copy(g.data, src.data)
}

// Count returns how many cells satisfy pred.
func (g *Grid[T]) Count(pred func(T) bool) int {
	n := 0
	for _, v := range g.data {
		if pred(v) {
			n++
		}
	}
	return n
}

// Rows returns the grid as a slice of rows, south to north. Used for JSON
// snapshots.
func (g *Grid[T]) Rows() [][]T {
	rows := make([][]T, g.H)
	for y := 0; y < g.H; y++ {
		row := make([]T, g.W)
		copy(row, g.data[y*g.W:(y+1)*g.W])
		rows[y] = row
	}
	return rows
}

// Neighbors8 calls fn for each in-bounds Moore neighbour of (x, y).
func (g *Grid[T]) Neighbors8(x, y int, fn func(nx, ny int)) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if g.InBounds(nx, ny) {
				fn(nx, ny)
			}
		}
	}
}
