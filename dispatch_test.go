package levmarq

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitLine(t *testing.T) {
	// y = 3x + 1 over 10 samples, starting from zero
	src := lineEvents(10, [2]float64{1, 3})
	d := NewDispatcherOrFail(t, testConfig(4, 2), &line{})

	results := make([]FitResult, 1)
	require.NoError(t, d.Fit(context.Background(), src, results))

	r := results[0]
	assert.True(t, r.Converged(), "status %s", r.Status)
	assert.Less(t, r.Iterations, 20)
	assert.Zero(t, r.WindowOffset)
	res := VerifyArray([]float64{1, 3}, r.Params, FitTolerance())
	assert.Zero(t, res.NumErrors, res.String())
}

func TestFitWindowOffset(t *testing.T) {
	src := lineEvents(20, [2]float64{-2, 0.5}, [2]float64{4, -1})
	w := Window{Offset: 7, Width: 9}
	d := NewDispatcherOrFail(t, testConfig(3, 2), &line{window: &w, guess: []float64{1, 1}})

	results := make([]FitResult, 2)
	require.NoError(t, d.Fit(context.Background(), src, results))
	for ev, r := range results {
		assert.Equal(t, 7, r.WindowOffset, "event %d", ev)
		assert.True(t, r.Converged(), "event %d", ev)
		assert.LessOrEqual(t, r.Iterations, d.Config().MaxIterations)
	}
	assert.InDeltaSlice(t, []float64{-2, 0.5}, results[0].Params, 1e-4)
	assert.InDeltaSlice(t, []float64{4, -1}, results[1].Params, 1e-4)
}

func TestFitIterationCap(t *testing.T) {
	src := lineEvents(10, [2]float64{1, 3})
	cfg := testConfig(2, 1)
	cfg.MaxIterations = 2
	d := NewDispatcherOrFail(t, cfg, &line{})

	r, err := d.Solve(context.Background(), src, 0)
	require.NoError(t, err)
	assert.Equal(t, IterationCapExceeded, r.Status)
	assert.Equal(t, "exceeded", r.Status.String())
	assert.Equal(t, 2, r.Iterations)
}

func TestFitFirstStepExpandsTrustRegion(t *testing.T) {
	src := lineEvents(10, [2]float64{1, 3})
	rec := NewRecorder()
	d := NewDispatcherOrFail(t, testConfig(4, 1), &line{}, WithObserver(rec))

	_, err := d.Solve(context.Background(), src, 0)
	require.NoError(t, err)

	its := rec.Event(0)
	require.NotEmpty(t, its)
	first := its[0]
	assert.Equal(t, 1, first.Number)
	assert.True(t, first.Accepted)
	assert.GreaterOrEqual(t, first.Roh, 0.8)
	assert.Equal(t, DefaultDampingInit, first.MuBefore)
	assert.Equal(t, DefaultDampingInit/2, first.MuAfter)

	for i, it := range its {
		assert.Equal(t, i+1, it.Number)
		if i > 0 {
			assert.Equal(t, its[i-1].MuAfter, it.MuBefore)
		}
	}
	assert.True(t, its[len(its)-1].Finished)
}

func TestFitUphillStepRejected(t *testing.T) {
	src := lineEvents(10, [2]float64{1, 3})
	cfg := testConfig(2, 1)
	cfg.MaxIterations = 5
	rec := NewRecorder()
	guess := []float64{0.5, -0.25}
	d := NewDispatcherOrFail(t, cfg, &line{flip: true, guess: guess}, WithObserver(rec))

	r, err := d.Solve(context.Background(), src, 0)
	require.NoError(t, err)
	assert.Equal(t, IterationCapExceeded, r.Status)
	assert.Equal(t, guess, r.Params)

	its := rec.Event(0)
	require.Len(t, its, 5)
	mu := DefaultDampingInit
	for _, it := range its {
		assert.False(t, it.Accepted)
		assert.Less(t, it.Roh, 0.2)
		assert.Equal(t, mu, it.MuBefore)
		mu *= DefaultDampingScale
		assert.Equal(t, mu, it.MuAfter)
	}
}

func TestFitEmptyWindow(t *testing.T) {
	src := lineEvents(10, [2]float64{1, 3})
	w := Window{Offset: 4, Width: 0}
	d := NewDispatcherOrFail(t, testConfig(3, 1), &line{window: &w, guess: []float64{2, 2}})

	var r FitResult
	var err error
	assert.NotPanics(t, func() { r, err = d.Solve(context.Background(), src, 0) })
	require.NoError(t, err)
	assert.Equal(t, 4, r.WindowOffset)
	assert.Equal(t, []float64{2, 2}, r.Params)
	assert.LessOrEqual(t, r.Iterations, d.Config().MaxIterations)
}

func TestFitIndependentOfThreadsAndWorkers(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	const events, samples = 24, 30
	src := make(rows, events)
	for ev := range src {
		a, b := 10*rng.Float64()-5, 2*rng.Float64()-1
		src[ev] = make([]float64, samples)
		for i := range src[ev] {
			src[ev][i] = a + b*float64(i) + 0.1*(rng.Float64()-0.5)
		}
	}

	var baseline []FitResult
	for _, tc := range []struct{ threads, workers int }{{1, 1}, {2, 3}, {4, 4}, {7, 2}, {32, 8}} {
		t.Run(fmt.Sprintf("t%d_w%d", tc.threads, tc.workers), func(t *testing.T) {
			d := NewDispatcherOrFail(t, testConfig(tc.threads, tc.workers), &line{})
			results := make([]FitResult, events)
			require.NoError(t, d.Fit(context.Background(), src, results))
			if baseline == nil {
				baseline = results
				return
			}
			for ev := range results {
				assert.Equal(t, baseline[ev].Status, results[ev].Status, "event %d", ev)
				assert.InDeltaSlice(t, baseline[ev].Params, results[ev].Params, 1e-6, "event %d", ev)
			}
		})
	}
}

func TestFitInterpolated(t *testing.T) {
	src := lineEvents(10, [2]float64{1, 3})
	cfg := testConfig(2, 1)
	cfg.Interpolation = 3
	w := Window{Offset: 2, Width: 19} // positions 2, 2⅓, ... 8
	d := NewDispatcherOrFail(t, cfg, &line{window: &w})

	r, err := d.Solve(context.Background(), src, 0)
	require.NoError(t, err)
	assert.True(t, r.Converged())
	assert.InDeltaSlice(t, []float64{1, 3}, r.Params, 1e-4)
}

func TestFitWindowErrors(t *testing.T) {
	src := lineEvents(10, [2]float64{1, 3}, [2]float64{0, 1})
	tests := []struct {
		name   string
		window Window
		want   error
	}{
		{"Too_Wide", Window{Offset: 0, Width: 33}, ErrWindowTooWide},
		{"Past_End", Window{Offset: 5, Width: 6}, ErrWindowOutOfRange},
		{"Negative_Offset", Window{Offset: -1, Width: 2}, ErrWindowOutOfRange},
		{"Empty_Past_End", Window{Offset: 11, Width: 0}, ErrWindowOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tt.window
			launched := false
			rec := ObserverFunc(func(Iteration) { launched = true })
			d := NewDispatcherOrFail(t, testConfig(2, 1), &line{window: &w}, WithObserver(rec))

			results := make([]FitResult, 2)
			err := d.Fit(context.Background(), src, results)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsConfigError(err))
			assert.False(t, launched)
			assert.Nil(t, results[0].Params)
		})
	}

	// Interpolated windows end earlier
	cfg := testConfig(2, 1)
	cfg.Interpolation = 2
	w := Window{Offset: 0, Width: 20}
	d := NewDispatcherOrFail(t, cfg, &line{window: &w})
	_, err := d.Solve(context.Background(), src, 0)
	assert.ErrorIs(t, err, ErrWindowOutOfRange)
	w.Width = 19
	_, err = d.Solve(context.Background(), src, 0)
	assert.NoError(t, err)
}

func TestFitArguments(t *testing.T) {
	src := lineEvents(10, [2]float64{1, 3}, [2]float64{0, 1})
	d := NewDispatcherOrFail(t, testConfig(2, 1), &line{})

	err := d.Fit(context.Background(), src, make([]FitResult, 1))
	assert.True(t, IsInvalidArgError(err))

	_, err = d.Solve(context.Background(), src, 2)
	assert.True(t, IsInvalidArgError(err))

	assert.NoError(t, d.Fit(context.Background(), rows{}, nil))

	_, err = NewDispatcher(testConfig(2, 1), nil)
	assert.True(t, IsInvalidArgError(err))

	bad := testConfig(0, 1)
	_, err = NewDispatcher(bad, &line{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFitKernelPanic(t *testing.T) {
	src := lineEvents(10, [2]float64{1, 3}, [2]float64{0, 1})
	d := NewDispatcherOrFail(t, testConfig(3, 2), &line{panics: true})

	err := d.Fit(context.Background(), src, make([]FitResult, 2))
	assert.ErrorIs(t, err, ErrKernelFailed)
	assert.Contains(t, err.Error(), "model exploded")

	// Arena went back to the pool
	allocated, _ := d.Pool().GetStats()
	assert.Zero(t, allocated)
}

func TestFitCancelled(t *testing.T) {
	src := lineEvents(10, [2]float64{1, 3})
	d := NewDispatcherOrFail(t, testConfig(2, 1), &line{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := make([]FitResult, 1)
	err := d.Fit(ctx, src, results)
	assert.ErrorIs(t, err, context.Canceled)

	// A block that never started leaves its slot unsolved, not converged
	assert.Equal(t, Unsolved, results[0].Status)
	assert.False(t, results[0].Converged())
	assert.Equal(t, "unsolved", results[0].Status.String())
	assert.Nil(t, results[0].Params)
}

func TestDispatcherSharedResources(t *testing.T) {
	dev := NewDeviceOrFail(t, 2)
	pool := NewScratchPool()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	src := lineEvents(10, [2]float64{1, 3})
	for i := 0; i < 2; i++ {
		d := NewDispatcherOrFail(t, testConfig(2, 2), &line{},
			WithDevice(dev), WithPool(pool), WithLogger(logrus.NewEntry(logger)))
		assert.Same(t, pool, d.Pool())
		assert.Equal(t, 2, d.NumParams())
		_, err := d.Solve(context.Background(), src, 0)
		require.NoError(t, err)
		d.Close()
	}

	// The shared device survives dispatcher Close
	LaunchOrFail(t, dev, 1, 1, func(ThreadID, *Block) {})

	var ready, fitted int
	for _, e := range hook.AllEntries() {
		assert.Equal(t, "dispatcher", e.Data["component"])
		switch e.Message {
		case "dispatcher ready":
			ready++
		case "chunk fitted":
			fitted++
			assert.Equal(t, 1, e.Data["events"])
			assert.Equal(t, 1, e.Data["converged"])
		}
	}
	assert.Equal(t, 2, ready)
	assert.Equal(t, 2, fitted)
}

func TestRecorderAndTrace(t *testing.T) {
	src := lineEvents(10, [2]float64{1, 3}, [2]float64{2, -1}, [2]float64{0, 0.5})
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)

	rec := NewRecorder()
	obs := MultiObserver(rec, TraceObserver(logrus.NewEntry(logger)))
	d := NewDispatcherOrFail(t, testConfig(2, 3), &line{}, WithObserver(obs))

	results := make([]FitResult, 3)
	require.NoError(t, d.Fit(context.Background(), src, results))

	assert.Equal(t, []int{0, 1, 2}, rec.Events())
	total := 0
	for ev, r := range results {
		its := rec.Event(ev)
		assert.Len(t, its, r.Iterations)
		assert.Equal(t, r.Converged(), its[len(its)-1].Finished)
		total += len(its)
	}

	traced := 0
	for _, e := range hook.AllEntries() {
		if e.Message == "iteration" {
			traced++
		}
	}
	assert.Equal(t, total, traced)
}

func TestDecideNonFiniteRatio(t *testing.T) {
	s := &solver{cfg: DefaultConfig()}
	for _, tc := range []struct {
		name       string
		u1, u2, u3 float64
		finished   bool
	}{
		{"NaN", 0, 0, 0, true},
		{"Inf", 1, 0, 1, true},
		{"Negative", 1, 2, 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ev := &eventState{mu: 1}
			ev.ws.u1 = MustMatrix([]float64{tc.u1}, 1, 1)
			ev.ws.u2 = MustMatrix([]float64{tc.u2}, 1, 1)
			ev.ws.u3 = MustMatrix([]float64{tc.u3}, 1, 1)
			it := s.decide(ev, 0, 1)
			assert.False(t, it.Accepted)
			assert.Equal(t, 2.0, ev.mu)
			assert.Equal(t, tc.finished, ev.finished)
			if tc.name == "NaN" {
				assert.True(t, math.IsNaN(it.Roh))
			}
		})
	}
}
