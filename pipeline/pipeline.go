package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/LynnColeArt/levmarq"
	"github.com/LynnColeArt/levmarq/waveform"
)

// Batch is one fitted chunk
type Batch struct {
	Chunk   *waveform.Chunk
	Results []levmarq.FitResult
}

// Sink consumes fitted batches in the order they complete. It runs on a
// single goroutine.
type Sink func(b Batch) error

// Options configures Run
type Options struct {
	// BufferCapacity is the number of chunks each ring holds. Zero uses the
	// dispatcher configuration.
	BufferCapacity int
	// Fitters is the number of chunks fitted at once. Zero means one; the
	// dispatcher already spreads a chunk across all workers.
	Fitters int
	// Sink receives every batch after it is counted. May be nil.
	Sink Sink
	// Log defaults to the logrus standard logger.
	Log *logrus.Entry
}

// Run reads every chunk of src, fits it with d and aggregates the results.
// The stages are connected by bounded rings, so a slow fitter stalls the
// reader rather than buffering the whole input. The first error of any stage
// cancels the others and is returned together with the partial report.
func Run(ctx context.Context, src waveform.Source, d *levmarq.Dispatcher, opts Options) (*Report, error) {
	capacity := opts.BufferCapacity
	if capacity < 1 {
		capacity = d.Config().BufferCapacity
	}
	fitters := opts.Fitters
	if fitters < 1 {
		fitters = 1
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "pipeline")

	chunks := NewRing[*waveform.Chunk](capacity)
	fitted := NewRing[Batch](capacity)
	report := &Report{}
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)

	// reader
	g.Go(func() error {
		defer chunks.Close()
		for {
			c, err := src.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read chunk: %w", err)
			}
			if err := chunks.Push(gctx, c); err != nil {
				return err
			}
		}
	})

	// fitters
	fg, fctx := errgroup.WithContext(gctx)
	for i := 0; i < fitters; i++ {
		fg.Go(func() error {
			for {
				c, err := chunks.Pop(fctx)
				if errors.Is(err, ErrClosed) {
					return nil
				}
				if err != nil {
					return err
				}
				results := make([]levmarq.FitResult, c.Len())
				if err := d.Fit(fctx, c, results); err != nil {
					return fmt.Errorf("fit events %d..%d: %w", c.First(), c.First()+c.Len()-1, err)
				}
				if err := fitted.Push(fctx, Batch{Chunk: c, Results: results}); err != nil {
					return err
				}
			}
		})
	}
	g.Go(func() error {
		defer fitted.Close()
		return fg.Wait()
	})

	// report
	g.Go(func() error {
		for {
			b, err := fitted.Pop(gctx)
			if errors.Is(err, ErrClosed) {
				return nil
			}
			if err != nil {
				return err
			}
			report.Add(b.Results)
			log.WithFields(logrus.Fields{
				"first":  b.Chunk.First(),
				"events": b.Chunk.Len(),
			}).Debug("chunk done")
			if opts.Sink != nil {
				if err := opts.Sink(b); err != nil {
					return fmt.Errorf("sink: %w", err)
				}
			}
		}
	})

	err := g.Wait()
	report.Elapsed = time.Since(start)
	if err != nil {
		return report, err
	}
	report.Log(log)
	return report, nil
}
