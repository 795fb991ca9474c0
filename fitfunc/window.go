package fitfunc

import "github.com/LynnColeArt/levmarq"

// Selector picks the window of an event. interpolation is the number of
// positions per stored sample the solver will visit.
type Selector interface {
	Window(src levmarq.SampleProvider, event, interpolation int) levmarq.Window
}

// FixedWindow uses the same window for every event.
type FixedWindow struct {
	Offset int
	Width  int
}

// Window implements Selector
func (f FixedWindow) Window(levmarq.SampleProvider, int, int) levmarq.Window {
	return levmarq.Window{Offset: f.Offset, Width: f.Width}
}

// WholeEvent covers every stored sample of the event.
type WholeEvent struct{}

// Window implements Selector
func (WholeEvent) Window(src levmarq.SampleProvider, _ int, interpolation int) levmarq.Window {
	return span(0, src.Samples()-1, interpolation)
}

// PeakWindow covers Before samples ahead of the event maximum and After
// samples behind it, clamped to the event.
type PeakWindow struct {
	Before int
	After  int
}

type peaker interface {
	Peak(event int) int
}

// Window implements Selector
func (p PeakWindow) Window(src levmarq.SampleProvider, event, interpolation int) levmarq.Window {
	n := src.Samples()
	if n == 0 {
		return levmarq.Window{}
	}
	pk := peak(src, event)
	lo, hi := pk-p.Before, pk+p.After
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	return span(lo, hi, interpolation)
}

func peak(src levmarq.SampleProvider, event int) int {
	if p, ok := src.(peaker); ok {
		return p.Peak(event)
	}
	best, bestV := 0, src.Sample(event, 0)
	for i := 1; i < src.Samples(); i++ {
		if v := src.Sample(event, float64(i)); v > bestV {
			best, bestV = i, v
		}
	}
	return best
}

// span is the window visiting stored samples lo..hi inclusive.
func span(lo, hi, interpolation int) levmarq.Window {
	if hi < lo {
		return levmarq.Window{Offset: lo}
	}
	if interpolation < 1 {
		interpolation = 1
	}
	return levmarq.Window{Offset: lo, Width: (hi-lo)*interpolation + 1}
}
