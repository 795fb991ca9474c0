package waveform

import (
	"io"
	"math/rand"
)

// Synthetic generates polynomial waveforms with uniform noise. Event k of the
// stream samples p(i) + noise at i = 0..Samples-1 where p has the coefficients
// in Coeffs, intercept first. The same seed always yields the same stream.
type Synthetic struct {
	Coeffs  []float64
	Noise   float64 // half-width of the uniform noise
	Samples int
	Events  int // total events, 0 for unbounded
	Chunk   int // events per chunk
	Seed    int64

	rng  *rand.Rand
	next int
}

// Value evaluates the noiseless polynomial at x
func (s *Synthetic) Value(x float64) float64 {
	v := 0.0
	for j := len(s.Coeffs) - 1; j >= 0; j-- {
		v = v*x + s.Coeffs[j]
	}
	return v
}

// Next implements Source
func (s *Synthetic) Next() (*Chunk, error) {
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(s.Seed))
	}
	n := s.Chunk
	if n < 1 {
		n = 1
	}
	if s.Events > 0 {
		if s.next >= s.Events {
			return nil, io.EOF
		}
		if rem := s.Events - s.next; rem < n {
			n = rem
		}
	}
	c, err := NewChunk(s.next, n, s.Samples)
	if err != nil {
		return nil, err
	}
	for ev := 0; ev < n; ev++ {
		row := c.Row(ev)
		for i := range row {
			v := s.Value(float64(i))
			if s.Noise > 0 {
				v += (2*s.rng.Float64() - 1) * s.Noise
			}
			row[i] = float32(v)
		}
	}
	s.next += n
	return c, nil
}
