package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_ClampsDimensions(t *testing.T) {
	g := New[int](0, -3)
	assert.Equal(t, 1, g.W)
	assert.Equal(t, 1, g.H)
	assert.Len(t, g.Cells(), 1)
}

func TestGrid_RowMajorIndex(t *testing.T) {
	g := New[int](4, 3)
	g.Set(2, 1, 7)
	assert.Equal(t, 6, g.Index(2, 1))
	assert.Equal(t, 7, g.Cells()[6])
	assert.Equal(t, 7, g.At(2, 1))
}

func TestGrid_CloneIsIndependent(t *testing.T) {
	g := Filled(3, 3, 1.5)
	c := g.Clone()
	c.Set(0, 0, 9)
	assert.InDelta(t, 1.5, g.At(0, 0), 1e-12)
	assert.InDelta(t, 9, c.At(0, 0), 1e-12)
}

func TestGrid_Neighbors8(t *testing.T) {
	g := New[int](3, 3)

	var corner, centre int
	g.Neighbors8(0, 0, func(_, _ int) { corner++ })
	g.Neighbors8(1, 1, func(_, _ int) { centre++ })

	assert.Equal(t, 3, corner)
	assert.Equal(t, 8, centre)
}

func TestGrid_CountAndRows(t *testing.T) {
	g := New[int](2, 2)
	g.Set(1, 0, 1)
	g.Set(0, 1, 1)

	assert.Equal(t, 2, g.Count(func(v int) bool { return v == 1 }))
	assert.Equal(t, [][]int{{0, 1}, {1, 0}}, g.Rows())
}
