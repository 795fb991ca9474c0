package levmarq

import (
	"context"
	"math"
	"math/rand"
	"testing"
)

// NewDeviceOrFail creates a device and closes it when the test ends
func NewDeviceOrFail(t testing.TB, workers int) *Device {
	t.Helper()
	dev := NewDevice(workers)
	t.Cleanup(dev.Close)
	return dev
}

// LaunchOrFail launches a kernel and fails the test if unsuccessful
func LaunchOrFail(t testing.TB, dev *Device, grid, block int, kernel KernelFunc) {
	t.Helper()
	if err := dev.Launch(context.Background(), grid, block, kernel); err != nil {
		t.Fatalf("Kernel launch failed: %v", err)
	}
}

// NewDispatcherOrFail creates a dispatcher and closes it when the test ends
func NewDispatcherOrFail(t testing.TB, cfg Config, s Strategy, opts ...Option) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(cfg, s, opts...)
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

// testConfig is a small configuration for solver tests
func testConfig(threads, workers int) Config {
	cfg := DefaultConfig()
	cfg.MaxWindow = 32
	cfg.Threads = threads
	cfg.Workers = workers
	return cfg
}

// randomMatrix fills a rows×cols matrix with values in [-1, 1)
func randomMatrix(rng *rand.Rand, rows, cols int) Matrix {
	m := MustMatrix(make([]float64, rows*cols), rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.Set(r, c, 2*rng.Float64()-1)
		}
	}
	return m
}

// randomSPD returns a well-conditioned symmetric positive definite n×n matrix
func randomSPD(rng *rand.Rand, n int) Matrix {
	a := randomMatrix(rng, n, n)
	g := MustMatrix(make([]float64, n*n), n, n)
	Mul(g, a.T(), a)
	for i := 0; i < n; i++ {
		g.Add(i, i, float64(n))
	}
	return g
}

// rows is an in-memory sample provider with linear interpolation
type rows [][]float64

func (r rows) Len() int { return len(r) }

func (r rows) Samples() int {
	if len(r) == 0 {
		return 0
	}
	return len(r[0])
}

func (r rows) Sample(event int, pos float64) float64 {
	row := r[event]
	if pos <= 0 {
		return row[0]
	}
	if pos >= float64(len(row)-1) {
		return row[len(row)-1]
	}
	i := math.Floor(pos)
	lo, hi := row[int(i)], row[int(i)+1]
	return lo + (pos-i)*(hi-lo)
}

// lineEvents samples y = a + b·x at x = 0..n-1 for every (a, b)
func lineEvents(n int, coeffs ...[2]float64) rows {
	out := make(rows, len(coeffs))
	for ev, c := range coeffs {
		out[ev] = make([]float64, n)
		for i := range out[ev] {
			out[ev][i] = c[0] + c[1]*float64(i)
		}
	}
	return out
}

// line fits p0 + p1·x. A nil window covers the whole event.
type line struct {
	window *Window
	guess  []float64
	flip   bool // negate the derivative, so every step goes uphill
	panics bool // Model panics, to exercise kernel failure
}

func (l *line) NumParams() int { return 2 }

func (l *line) Model(x, y float64, p []float64) float64 {
	if l.panics {
		panic("model exploded")
	}
	return p[0] + p[1]*x - y
}

func (l *line) Derivative(j int, x, _ float64, _ []float64) float64 {
	d := 1.0
	if j == 1 {
		d = x
	}
	if l.flip {
		d = -d
	}
	return d
}

func (l *line) Window(src SampleProvider, _ int) Window {
	if l.window != nil {
		return *l.window
	}
	return Window{Offset: 0, Width: src.Samples()}
}

func (l *line) Guess(_ SampleProvider, _ int, _ Window, p []float64) {
	for j := range p {
		p[j] = 0
	}
	copy(p, l.guess)
}
