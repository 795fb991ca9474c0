package fitfunc

import (
	"gonum.org/v1/gonum/mat"
)

// Guesser writes initial parameters for the window samples y taken at
// positions x. params arrives zeroed.
type Guesser interface {
	Guess(x, y, params []float64)
}

// MeanGuess sets the intercept to the mean of the window samples.
type MeanGuess struct{}

// Guess implements Guesser
func (MeanGuess) Guess(_, y, params []float64) {
	if len(params) == 0 || len(y) == 0 {
		return
	}
	sum := 0.0
	for _, v := range y {
		sum += v
	}
	params[0] = sum / float64(len(y))
}

// LeastSquaresGuess solves the linear least squares polynomial fit by QR
// decomposition of the Vandermonde matrix. With fewer samples than parameters
// it falls back to MeanGuess.
type LeastSquaresGuess struct{}

// Guess implements Guesser
func (LeastSquaresGuess) Guess(x, y, params []float64) {
	n := len(params)
	if n == 0 {
		return
	}
	if len(x) < n {
		MeanGuess{}.Guess(x, y, params)
		return
	}
	a := vandermonde(x, n-1)
	b := mat.NewVecDense(len(y), y)
	c := mat.NewVecDense(n, nil)

	qr := new(mat.QR)
	qr.Factorize(a)
	if err := qr.SolveVecTo(c, false, b); err != nil {
		MeanGuess{}.Guess(x, y, params)
		return
	}
	for j := range params {
		params[j] = c.AtVec(j)
	}
}

// vandermonde returns the len(x)×(degree+1) matrix with rows 1, x, x², ...
func vandermonde(x []float64, degree int) *mat.Dense {
	v := mat.NewDense(len(x), degree+1, nil)
	for i := range x {
		for j, p := 0, 1.0; j <= degree; j, p = j+1, p*x[i] {
			v.Set(i, j, p)
		}
	}
	return v
}
