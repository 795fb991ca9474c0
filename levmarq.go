package levmarq

import "fmt"

// SampleProvider gives read access to the waveforms of one chunk. Sample
// returns the value of event at a possibly fractional position, linearly
// interpolated between the neighbouring stored samples. Implementations must
// be safe for concurrent use and free of side effects.
type SampleProvider interface {
	Sample(event int, pos float64) float64
	Len() int     // number of events
	Samples() int // stored samples per event
}

// Window is the contiguous span of sample positions used for one event's fit.
type Window struct {
	Offset int
	Width  int
}

// String implements fmt.Stringer
func (w Window) String() string {
	return fmt.Sprintf("[%d,+%d)", w.Offset, w.Width)
}

// Strategy is the fit model consumed by the solver. Swapping strategies
// changes what is fitted without touching the solver.
//
// Model and Derivative are called concurrently from many workers and must not
// modify params. Window and Guess are called once per event.
type Strategy interface {
	// NumParams is the fixed parameter count P.
	NumParams() int
	// Model returns the residual of the model at x against the sample value y.
	Model(x, y float64, params []float64) float64
	// Derivative returns ∂Model/∂params[j] at x.
	Derivative(j int, x, y float64, params []float64) float64
	// Window selects the samples of interest of an event.
	Window(src SampleProvider, event int) Window
	// Guess writes the initial parameters for an event into params.
	Guess(src SampleProvider, event int, w Window, params []float64)
}

// Interpolator is implemented by strategies that place their own sample
// positions, e.g. to build an initial guess. The dispatcher rejects a
// strategy whose factor differs from Config.Interpolation.
type Interpolator interface {
	InterpolationFactor() int
}

// Status is the terminal state of one event's solve.
type Status int

const (
	// Unsolved is the zero value: the event was never run, e.g. because the
	// launch was cancelled before its block started.
	Unsolved Status = iota
	// Converged means the last accepted step was within tolerance.
	Converged
	// IterationCapExceeded means the loop stopped at the iteration cap.
	IterationCapExceeded
)

// String implements fmt.Stringer
func (s Status) String() string {
	switch s {
	case Unsolved:
		return "unsolved"
	case Converged:
		return "converged"
	case IterationCapExceeded:
		return "exceeded"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText renders the status as its name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// FitResult is the outcome of one event, written exactly once.
type FitResult struct {
	Params       []float64 `json:"params"`
	Status       Status    `json:"status"`
	WindowOffset int       `json:"woffset"`
	Iterations   int       `json:"iterations"`
}

// Converged reports whether the fit converged within the cap
func (r FitResult) Converged() bool {
	return r.Status == Converged
}

// Iteration describes one pass of the damped solver loop.
type Iteration struct {
	Event    int
	Number   int // 1-based
	U1       float64
	U2       float64
	U3       float64
	Roh      float64
	MuBefore float64
	MuAfter  float64
	Accepted bool
	Finished bool
}

// Observer receives every iteration of every event. It is called from the
// elected worker of each block, concurrently across events, and must not
// block for long.
type Observer interface {
	ObserveIteration(it Iteration)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(it Iteration)

// ObserveIteration implements Observer
func (f ObserverFunc) ObserveIteration(it Iteration) {
	f(it)
}
