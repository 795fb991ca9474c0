package levmarq

import "fmt"

// Cooperative small-matrix products. Every worker of the block must call the
// same kernel with the same arguments; the kernels synchronize internally and
// return only after C is complete and visible to all workers. C must not
// alias A or B.

// MatProd computes C = A·B by splitting the inner dimension across the
// block's workers. Each worker accumulates a strided partial sum for every
// output element into its own slice of partial, then the partials are folded
// with the outputs split across workers. This is the shape for long inner
// dimensions and tiny outputs: AᵗA, AᵗF and FᵗF.
//
// partial must hold at least BlockDim × rows(C) × cols(C) values.
func MatProd(tid ThreadID, blk *Block, c, a, b Matrix, partial []float64) {
	checkProduct(c, a, b)
	workers, t := tid.BlockDim, tid.Thread
	m, n, k := a.Rows(), b.Cols(), a.Cols()
	outs := m * n
	if len(partial) < workers*outs {
		panic(fmt.Sprintf("levmarq: MatProd needs %d partial values, have %d", workers*outs, len(partial)))
	}

	own := partial[t*outs : (t+1)*outs]
	for o := 0; o < outs; o++ {
		i, j := o/n, o%n
		sum := 0.0
		for kk := t; kk < k; kk += workers {
			sum += a.At(i, kk) * b.At(kk, j)
		}
		own[o] = sum
	}
	blk.Sync()

	for o := t; o < outs; o += workers {
		sum := 0.0
		for w := 0; w < workers; w++ {
			sum += partial[w*outs+o]
		}
		c.Set(o/n, o%n, sum)
	}
	blk.Sync()
}

// MatProdRows computes C = A·B with the rows of C split across the block's
// workers. Suited to tall outputs with a short inner dimension, e.g. A·s.
func MatProdRows(tid ThreadID, blk *Block, c, a, b Matrix) {
	checkProduct(c, a, b)
	n, k := b.Cols(), a.Cols()
	for i := tid.Thread; i < c.Rows(); i += tid.BlockDim {
		for j := 0; j < n; j++ {
			sum := 0.0
			for kk := 0; kk < k; kk++ {
				sum += a.At(i, kk) * b.At(kk, j)
			}
			c.Set(i, j, sum)
		}
	}
	blk.Sync()
}

// Mul computes C = A·B on the calling goroutine.
func Mul(c, a, b Matrix) {
	tid, blk := solo()
	MatProdRows(tid, blk, c, a, b)
}

func checkProduct(c, a, b Matrix) {
	if a.Cols() != b.Rows() || c.Rows() != a.Rows() || c.Cols() != b.Cols() {
		panic(fmt.Sprintf("levmarq: product %dx%d · %dx%d into %dx%d",
			a.Rows(), a.Cols(), b.Rows(), b.Cols(), c.Rows(), c.Cols()))
	}
}

// solo returns the identity of a one-worker block for running cooperative
// kernels outside a launch.
func solo() (ThreadID, *Block) {
	return ThreadID{BlockDim: 1, GridDim: 1}, &Block{barrier: NewBarrier(1)}
}
