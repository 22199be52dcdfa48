// Package mask rasterizes geometric primitives into boolean pixel masks.
//
// Shapes are defined in isotropic "point" coordinates. The grid may have
// non-square pixels, which the scaleX/scaleY factors compensate for.
// Pixel (row, col) has its centre at (col+0.5, row+0.5) in grid units.
package mask

import (
	"fmt"
	"image"
	"image/color"
	"strings"
)

// Mask is a row-major boolean grid.
type Mask struct {
	Rows int
	Cols int
	Data []bool
}

// New creates an empty mask with the given grid shape.
func New(rows, cols int) *Mask {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("mask: negative shape (%d, %d)", rows, cols))
	}
	return &Mask{Rows: rows, Cols: cols, Data: make([]bool, rows*cols)}
}

// At reports whether the pixel at (row, col) is set.
func (m *Mask) At(row, col int) bool {
	return m.Data[row*m.Cols+col]
}

// Set sets the pixel at (row, col).
func (m *Mask) Set(row, col int, v bool) {
	m.Data[row*m.Cols+col] = v
}

// Count returns the number of set pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Equal reports whether two masks have the same shape and pixels.
func (m *Mask) Equal(other *Mask) bool {
	if m.Rows != other.Rows || m.Cols != other.Cols {
		return false
	}
	for i, v := range m.Data {
		if other.Data[i] != v {
			return false
		}
	}
	return true
}

// Transpose returns a new mask with rows and columns swapped.
func (m *Mask) Transpose() *Mask {
	t := New(m.Cols, m.Rows)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			t.Set(c, r, m.At(r, c))
		}
	}
	return t
}

// Indices returns the row-major flat indices of all set pixels.
func (m *Mask) Indices() []int {
	idx := make([]int, 0, m.Count())
	for i, v := range m.Data {
		if v {
			idx = append(idx, i)
		}
	}
	return idx
}

// ToGray converts the mask to an 8-bit image (set = 255).
func (m *Mask) ToGray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Cols, m.Rows))
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			if m.At(r, c) {
				img.SetGray(c, r, color.Gray{Y: 255})
			}
		}
	}
	return img
}

// FromGray creates a mask from an 8-bit image; pixels brighter than
// threshold are set.
func FromGray(img *image.Gray, threshold uint8) *Mask {
	b := img.Bounds()
	m := New(b.Dy(), b.Dx())
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			if img.GrayAt(b.Min.X+c, b.Min.Y+r).Y > threshold {
				m.Set(r, c, true)
			}
		}
	}
	return m
}

// String renders the mask as rows of '#' and '.', handy in test failures.
func (m *Mask) String() string {
	var sb strings.Builder
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			if m.At(r, c) {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
