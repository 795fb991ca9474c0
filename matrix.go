package levmarq

import (
	"fmt"
	"strings"
)

// Matrix is a row-major view over a caller-owned float64 buffer. It owns no
// memory: copies of a Matrix share storage, T returns a transposed view and
// Slice a sub-block view, neither of which copies or allocates. The buffer
// must outlive every view carved from it.
//
// Indexing outside the view panics, like slice indexing.
type Matrix struct {
	data       []float64
	rows, cols int  // logical shape as seen through this view
	stride     int  // distance between consecutive storage rows
	transposed bool // storage rows are logical columns
}

// NewMatrix creates a rows×cols view over buf. buf must hold at least
// rows*cols values.
func NewMatrix(buf []float64, rows, cols int) (Matrix, error) {
	if rows < 0 || cols < 0 {
		return Matrix{}, withContext(ErrInvalidShape, fmt.Sprintf("%dx%d", rows, cols), nil)
	}
	if len(buf) < rows*cols {
		return Matrix{}, withContext(ErrInvalidShape,
			fmt.Sprintf("%dx%d needs %d values, buffer has %d", rows, cols, rows*cols, len(buf)), nil)
	}
	return Matrix{
		data:   buf[:rows*cols],
		rows:   rows,
		cols:   cols,
		stride: cols,
	}, nil
}

// MustMatrix is NewMatrix for shapes known to be valid; it panics otherwise.
func MustMatrix(buf []float64, rows, cols int) Matrix {
	m, err := NewMatrix(buf, rows, cols)
	if err != nil {
		panic(err)
	}
	return m
}

// Rows returns the number of rows of the view
func (m Matrix) Rows() int {
	return m.rows
}

// Cols returns the number of columns of the view
func (m Matrix) Cols() int {
	return m.cols
}

// Len returns rows*cols
func (m Matrix) Len() int {
	return m.rows * m.cols
}

func (m Matrix) index(r, c int) int {
	if uint(r) >= uint(m.rows) || uint(c) >= uint(m.cols) {
		panic(fmt.Sprintf("levmarq: index (%d,%d) out of range for %dx%d view", r, c, m.rows, m.cols))
	}
	if m.transposed {
		return c*m.stride + r
	}
	return r*m.stride + c
}

// At returns the element at (r, c)
func (m Matrix) At(r, c int) float64 {
	return m.data[m.index(r, c)]
}

// Set assigns v at (r, c)
func (m Matrix) Set(r, c int, v float64) {
	m.data[m.index(r, c)] = v
}

// Add adds v to the element at (r, c)
func (m Matrix) Add(r, c int, v float64) {
	m.data[m.index(r, c)] += v
}

// T returns the transposed view over the same storage.
func (m Matrix) T() Matrix {
	return Matrix{
		data:       m.data,
		rows:       m.cols,
		cols:       m.rows,
		stride:     m.stride,
		transposed: !m.transposed,
	}
}

// Slice returns the rows×cols sub-block starting at (r0, c0), sharing storage.
func (m Matrix) Slice(r0, c0, rows, cols int) Matrix {
	if r0 < 0 || c0 < 0 || rows < 0 || cols < 0 || r0+rows > m.rows || c0+cols > m.cols {
		panic(fmt.Sprintf("levmarq: slice [%d:%d, %d:%d] out of range for %dx%d view",
			r0, r0+rows, c0, c0+cols, m.rows, m.cols))
	}
	if rows == 0 || cols == 0 {
		return Matrix{rows: rows, cols: cols, stride: m.stride, transposed: m.transposed}
	}
	start := m.index(r0, c0)
	end := m.index(r0+rows-1, c0+cols-1) + 1
	return Matrix{
		data:       m.data[start:end:end],
		rows:       rows,
		cols:       cols,
		stride:     m.stride,
		transposed: m.transposed,
	}
}

// Vec returns the contiguous backing values of a vector view (a single row or
// column laid out without gaps). It panics for anything else.
func (m Matrix) Vec() []float64 {
	if m.Len() == 0 {
		return nil
	}
	contiguous := (m.rows == 1 && !m.transposed) || (m.cols == 1 && m.transposed) ||
		(m.cols == 1 && m.stride == 1) || (m.rows == 1 && m.stride == 1)
	if !contiguous {
		panic(fmt.Sprintf("levmarq: %dx%d view is not a contiguous vector", m.rows, m.cols))
	}
	n := m.Len()
	return m.data[:n:n]
}

// Zero sets every element of the view to 0
func (m Matrix) Zero() {
	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			m.Set(r, c, 0)
		}
	}
}

// Identity sets the view to the identity. The view must be square.
func (m Matrix) Identity() {
	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			v := 0.0
			if r == c {
				v = 1
			}
			m.Set(r, c, v)
		}
	}
}

// CopyFrom copies src into m element by element. Shapes must match.
func (m Matrix) CopyFrom(src Matrix) {
	if m.rows != src.rows || m.cols != src.cols {
		panic(fmt.Sprintf("levmarq: copy %dx%d into %dx%d", src.rows, src.cols, m.rows, m.cols))
	}
	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			m.Set(r, c, src.At(r, c))
		}
	}
}

// String implements fmt.Stringer for debugging
func (m Matrix) String() string {
	var sb strings.Builder
	for r := 0; r < m.rows; r++ {
		sb.WriteString("[")
		for c := 0; c < m.cols; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%g", m.At(r, c))
		}
		sb.WriteString("]\n")
	}
	return sb.String()
}
