package levmarq

import (
	"fmt"
	"math"
)

// GaussJordan writes the inverse of the square matrix g into inv, reducing g
// to the identity on the way. All workers of the block must call it with the
// same arguments; shared must hold at least one value visible to all of them.
//
// For every pivot column the elected worker picks the largest remaining pivot
// and swaps it into place, the workers scale the pivot row by column, then
// eliminate the column from every other row with the rows split between them.
// A barrier separates the three steps.
//
// A singular or numerically singular g is not reported: the zero pivot turns
// into Inf/NaN entries of inv, and callers are expected to see them in
// whatever they compute from the inverse.
func GaussJordan(tid ThreadID, blk *Block, inv, g Matrix, shared []float64) {
	n := g.Rows()
	if g.Cols() != n || inv.Rows() != n || inv.Cols() != n {
		panic(fmt.Sprintf("levmarq: GaussJordan of %dx%d into %dx%d", g.Rows(), g.Cols(), inv.Rows(), inv.Cols()))
	}
	workers, t := tid.BlockDim, tid.Thread

	for r := t; r < n; r += workers {
		for c := 0; c < n; c++ {
			v := 0.0
			if r == c {
				v = 1
			}
			inv.Set(r, c, v)
		}
	}
	blk.Sync()

	for k := 0; k < n; k++ {
		if t == 0 {
			p, best := k, math.Abs(g.At(k, k))
			for i := k + 1; i < n; i++ {
				if v := math.Abs(g.At(i, k)); v > best {
					p, best = i, v
				}
			}
			if p != k {
				swapRows(g, p, k)
				swapRows(inv, p, k)
			}
			shared[0] = 1 / g.At(k, k)
		}
		blk.Sync()

		recip := shared[0]
		for c := t; c < 2*n; c += workers {
			if c < n {
				g.Set(k, c, g.At(k, c)*recip)
			} else {
				inv.Set(k, c-n, inv.At(k, c-n)*recip)
			}
		}
		blk.Sync()

		for i := t; i < n; i += workers {
			if i == k {
				continue
			}
			f := g.At(i, k)
			if f == 0 {
				continue
			}
			for c := 0; c < n; c++ {
				g.Set(i, c, g.At(i, c)-f*g.At(k, c))
				inv.Set(i, c, inv.At(i, c)-f*inv.At(k, c))
			}
		}
		blk.Sync()
	}
}

// Invert writes the inverse of g into inv on the calling goroutine. g is
// overwritten.
func Invert(inv, g Matrix) {
	tid, blk := solo()
	var shared [1]float64
	GaussJordan(tid, blk, inv, g, shared[:])
}

func swapRows(m Matrix, a, b int) {
	for c := 0; c < m.Cols(); c++ {
		va, vb := m.At(a, c), m.At(b, c)
		m.Set(a, c, vb)
		m.Set(b, c, va)
	}
}
