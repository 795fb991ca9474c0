// Package fitfunc provides fit strategies for the levmarq solver.
package fitfunc

import (
	"fmt"

	"github.com/LynnColeArt/levmarq"
)

var (
	_ levmarq.Strategy     = (*Polynomial)(nil)
	_ levmarq.Interpolator = (*Polynomial)(nil)
)

// Polynomial fits p_0 + p_1·x + ... + p_d·x^d to the window samples, where x
// is the sample position within the event.
type Polynomial struct {
	Degree int
	// Selector picks the window. Nil covers the whole event.
	Selector Selector
	// Guesser seeds the parameters. Nil starts from zero.
	Guesser Guesser
	// Interpolation must match levmarq.Config.Interpolation. Zero means 1.
	Interpolation int
}

// NewPolynomial returns a whole-event polynomial of the given degree with a
// mean guess.
func NewPolynomial(degree int) (*Polynomial, error) {
	if degree < 0 {
		return nil, levmarq.NewInvalidArgError("NewPolynomial", fmt.Sprintf("negative degree %d", degree))
	}
	return &Polynomial{Degree: degree, Guesser: MeanGuess{}}, nil
}

// NumParams implements levmarq.Strategy
func (p *Polynomial) NumParams() int {
	return p.Degree + 1
}

// Model implements levmarq.Strategy
func (p *Polynomial) Model(x, y float64, params []float64) float64 {
	v := 0.0
	for j := len(params) - 1; j >= 0; j-- {
		v = v*x + params[j]
	}
	return v - y
}

// Derivative implements levmarq.Strategy
func (p *Polynomial) Derivative(j int, x, _ float64, _ []float64) float64 {
	v := 1.0
	for ; j > 0; j-- {
		v *= x
	}
	return v
}

// Window implements levmarq.Strategy
func (p *Polynomial) Window(src levmarq.SampleProvider, event int) levmarq.Window {
	if p.Selector == nil {
		return WholeEvent{}.Window(src, event, p.interpolation())
	}
	return p.Selector.Window(src, event, p.interpolation())
}

// Guess implements levmarq.Strategy
func (p *Polynomial) Guess(src levmarq.SampleProvider, event int, w levmarq.Window, params []float64) {
	for j := range params {
		params[j] = 0
	}
	if p.Guesser == nil || w.Width == 0 {
		return
	}
	x := make([]float64, w.Width)
	y := make([]float64, w.Width)
	step := 1 / float64(p.interpolation())
	for i := range x {
		x[i] = float64(w.Offset) + float64(i)*step
		y[i] = src.Sample(event, x[i])
	}
	p.Guesser.Guess(x, y, params)
}

// InterpolationFactor implements levmarq.Interpolator
func (p *Polynomial) InterpolationFactor() int {
	return p.interpolation()
}

func (p *Polynomial) interpolation() int {
	if p.Interpolation < 1 {
		return 1
	}
	return p.Interpolation
}
