package levmarq

import (
	"math"
	"sync/atomic"
)

// solver is one launch of the damped Gauss-Newton kernel over a range of
// events. Everything in it is read-only during the launch except events,
// whose entries are each owned by one block.
type solver struct {
	cfg      Config
	strategy Strategy
	params   int
	src      SampleProvider
	first    int      // event index of block 0
	windows  []Window // per block, fixed before launch
	arena    *Arena
	space    int
	results  []FitResult // per block
	observer Observer
	events   []eventState // per block
}

// eventState is shared by the workers of one block. Worker 0 writes mu,
// accepted and finished between barriers; stepTooLarge is written by any
// worker during the parameter update.
type eventState struct {
	ws           workspace
	mu           float64
	accepted     bool
	finished     bool
	stepTooLarge atomic.Bool
}

// workspace holds the views of one event over its scratch partition.
type workspace struct {
	F, F1, A      Matrix // (W+P)×1, (W+P)×1, (W+P)×P
	FT, F1T, AT   Matrix // transposed views, no storage of their own
	G, Ginv       Matrix // P×P
	b, s          Matrix // P×1
	param, param2 Matrix // P×1
	u1, u2, u3    Matrix // 1×1
	partial       []float64
	pivot         []float64
}

func newWorkspace(scratch *Scratch, width, params, threads int) (workspace, error) {
	var (
		ws  workspace
		err error
	)
	rows := width + params
	carve := func(dst *Matrix, r, c int) {
		if err == nil {
			*dst, err = scratch.Matrix(r, c)
		}
	}
	carve(&ws.F, rows, 1)
	carve(&ws.F1, rows, 1)
	carve(&ws.A, rows, params)
	carve(&ws.G, params, params)
	carve(&ws.Ginv, params, params)
	carve(&ws.b, params, 1)
	carve(&ws.s, params, 1)
	carve(&ws.param, params, 1)
	carve(&ws.param2, params, 1)
	carve(&ws.u1, 1, 1)
	carve(&ws.u2, 1, 1)
	carve(&ws.u3, 1, 1)
	if err != nil {
		return ws, err
	}
	if ws.partial, err = scratch.Take(reduceSpace(params, threads)); err != nil {
		return ws, err
	}
	if ws.pivot, err = scratch.Take(1); err != nil {
		return ws, err
	}
	ws.FT = ws.F.T()
	ws.F1T = ws.F1.T()
	ws.AT = ws.A.T()
	return ws, nil
}

// kernel runs the whole damped loop of one event on one worker of its block.
func (s *solver) kernel(tid ThreadID, blk *Block) {
	ev := &s.events[tid.Block]
	event := s.first + tid.Block
	w := s.windows[tid.Block]
	t, workers := tid.Thread, tid.BlockDim

	if t == 0 {
		scratch := s.arena.Partition(tid.Block, s.space)
		ws, err := newWorkspace(&scratch, w.Width, s.params, workers)
		if err != nil {
			// The dispatcher sizes partitions for MaxWindow, so this is a bug.
			panic(err)
		}
		ev.ws = ws
		ev.mu = s.cfg.DampingInit
		ev.finished = false
		s.strategy.Guess(s.src, event, w, ws.param.Vec())
	}
	blk.Sync()

	ws := &ev.ws
	param, param2, step := ws.param.Vec(), ws.param2.Vec(), ws.s.Vec()
	count := 0
	for {
		count++

		// Linearize around the current parameters and solve for the step
		s.residual(tid, blk, event, w, param, ws.F)
		s.jacobian(tid, blk, event, w, param, ev.mu, ws.A)
		MatProd(tid, blk, ws.G, ws.AT, ws.A, ws.partial)
		GaussJordan(tid, blk, ws.Ginv, ws.G, ws.pivot)
		MatProd(tid, blk, ws.b, ws.AT, ws.F, ws.partial)
		MatProd(tid, blk, ws.s, ws.Ginv, ws.b, ws.partial)

		// Cost now, at the trial point, and as predicted by the linear model
		MatProd(tid, blk, ws.u1, ws.FT, ws.F, ws.partial)
		for j := t; j < s.params; j += workers {
			param2[j] = param[j] + step[j]
		}
		blk.Sync()
		s.residual(tid, blk, event, w, param2, ws.F1)
		MatProd(tid, blk, ws.u2, ws.F1T, ws.F1, ws.partial)
		MatProdRows(tid, blk, ws.F1, ws.A, ws.s)
		for i := t; i < ws.F1.Rows(); i += workers {
			ws.F1.Set(i, 0, ws.F1.At(i, 0)-ws.F.At(i, 0))
		}
		blk.Sync()
		MatProd(tid, blk, ws.u3, ws.F1T, ws.F1, ws.partial)

		var it Iteration
		if t == 0 {
			it = s.decide(ev, event, count)
		}
		blk.Sync()

		if ev.accepted {
			for j := t; j < s.params; j += workers {
				param[j] += step[j]
				if math.Abs(step[j]) > s.cfg.Tolerance {
					ev.stepTooLarge.Store(true)
				}
			}
		}
		blk.Sync()

		finished := ev.finished && !ev.stepTooLarge.Load()
		if t == 0 && s.observer != nil {
			it.Finished = finished
			s.observer.ObserveIteration(it)
		}
		if finished || count >= s.cfg.MaxIterations {
			if t == 0 {
				s.finish(tid.Block, w, param, finished, count)
			}
			return
		}
	}
}

// decide is the single-writer step: gain ratio, accept or reject, damping.
func (s *solver) decide(ev *eventState, event, count int) Iteration {
	ws := &ev.ws
	u1, u2, u3 := ws.u1.At(0, 0), ws.u2.At(0, 0), ws.u3.At(0, 0)
	roh := (u1 - u2) / (u1 - u3)

	it := Iteration{
		Event:    event,
		Number:   count,
		U1:       u1,
		U2:       u2,
		U3:       u3,
		Roh:      roh,
		MuBefore: ev.mu,
	}

	ev.stepTooLarge.Store(false)
	ev.finished = true
	finite := !math.IsNaN(roh) && !math.IsInf(roh, 0)
	if !finite || roh <= s.cfg.AcceptThreshold {
		// Reject. Only a finite ratio vetoes convergence.
		ev.accepted = false
		ev.mu *= s.cfg.DampingScale
		if finite {
			ev.finished = false
		}
	} else {
		ev.accepted = true
		if roh >= s.cfg.ExpandThreshold {
			ev.mu /= s.cfg.DampingScale
		}
	}

	it.MuAfter = ev.mu
	it.Accepted = ev.accepted
	return it
}

// residual fills f with −model at every window position and zero padding.
func (s *solver) residual(tid ThreadID, blk *Block, event int, w Window, params []float64, f Matrix) {
	for i := tid.Thread; i < f.Rows(); i += tid.BlockDim {
		v := 0.0
		if i < w.Width {
			x := s.position(w, i)
			v = -s.strategy.Model(x, s.src.Sample(event, x), params)
		}
		f.Set(i, 0, v)
	}
	blk.Sync()
}

// jacobian fills a with the model derivatives over the window followed by
// mu·I in the trailing P rows.
func (s *solver) jacobian(tid ThreadID, blk *Block, event int, w Window, params []float64, mu float64, a Matrix) {
	p := s.params
	total := a.Rows() * p
	for idx := tid.Thread; idx < total; idx += tid.BlockDim {
		i, j := idx/p, idx%p
		v := 0.0
		switch {
		case i < w.Width:
			x := s.position(w, i)
			v = s.strategy.Derivative(j, x, s.src.Sample(event, x), params)
		case i-w.Width == j:
			v = mu
		}
		a.Set(i, j, v)
	}
	blk.Sync()
}

// position maps window row i to a sample position. With interpolation n each
// stored sample is visited at n sub-sample positions.
func (s *solver) position(w Window, i int) float64 {
	return float64(w.Offset) + float64(i)/float64(s.cfg.Interpolation)
}

func (s *solver) finish(block int, w Window, param []float64, finished bool, count int) {
	out := make([]float64, len(param))
	copy(out, param)
	status := IterationCapExceeded
	if finished {
		status = Converged
	}
	s.results[block] = FitResult{
		Params:       out,
		Status:       status,
		WindowOffset: w.Offset,
		Iterations:   count,
	}
}
