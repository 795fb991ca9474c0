package levmarq

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// Dispatcher fits whole chunks: one independent solver instance per event,
// each in its own scratch partition, writing its own result slot.
type Dispatcher struct {
	cfg        Config
	strategy   Strategy
	params     int
	space      int
	device     *Device
	ownsDevice bool
	pool       *ScratchPool
	log        *logrus.Entry
	observer   Observer
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(l *logrus.Entry) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithObserver installs an observer that sees every solver iteration.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithPool shares a scratch pool between dispatchers.
func WithPool(p *ScratchPool) Option {
	return func(d *Dispatcher) { d.pool = p }
}

// WithDevice runs launches on a shared device. The dispatcher will not close it.
func WithDevice(dev *Device) Option {
	return func(d *Dispatcher) { d.device = dev }
}

// NewDispatcher validates cfg and prepares a dispatcher for strategy.
func NewDispatcher(cfg Config, strategy Strategy, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strategy == nil {
		return nil, NewInvalidArgError("NewDispatcher", "strategy is nil")
	}
	if ip, ok := strategy.(Interpolator); ok && ip.InterpolationFactor() != cfg.Interpolation {
		return nil, withContext(ErrInvalidConfig,
			fmt.Sprintf("interpolation: strategy samples at %d positions per sample, config at %d",
				ip.InterpolationFactor(), cfg.Interpolation), nil)
	}
	p := strategy.NumParams()
	if p < 0 {
		return nil, NewInvalidArgError("NewDispatcher", fmt.Sprintf("negative parameter count %d", p))
	}

	d := &Dispatcher{
		cfg:      cfg,
		strategy: strategy,
		params:   p,
		space:    SpaceFor(cfg.MaxWindow, p, cfg.Threads),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logrus.NewEntry(logrus.StandardLogger())
	}
	d.log = d.log.WithField("component", "dispatcher")
	if d.pool == nil {
		d.pool = NewScratchPool()
	}
	if d.device == nil {
		d.device = NewDevice(cfg.Workers)
		d.ownsDevice = true
	}

	d.log.WithFields(logrus.Fields{
		"params":     p,
		"max_window": cfg.MaxWindow,
		"threads":    cfg.Threads,
		"workers":    d.device.Workers(),
		"scratch":    d.space,
		"cpu":        d.device.Features.String(),
	}).Debug("dispatcher ready")
	return d, nil
}

// Config returns the dispatcher configuration
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// NumParams returns the parameter count of the strategy
func (d *Dispatcher) NumParams() int {
	return d.params
}

// Pool returns the scratch pool backing launches
func (d *Dispatcher) Pool() *ScratchPool {
	return d.pool
}

// Close releases the device if the dispatcher created it
func (d *Dispatcher) Close() {
	if d.ownsDevice {
		d.device.Close()
	}
}

// Fit solves every event of src and writes results[i] for event i. results
// must hold at least src.Len() entries. Windows are selected and checked for
// all events before anything is launched; a window that does not fit the
// configured scratch capacity fails the whole call with a config error.
func (d *Dispatcher) Fit(ctx context.Context, src SampleProvider, results []FitResult) error {
	n := src.Len()
	if len(results) < n {
		return NewInvalidArgError("Fit", fmt.Sprintf("results holds %d entries for %d events", len(results), n))
	}
	windows := make([]Window, n)
	for ev := 0; ev < n; ev++ {
		w := d.strategy.Window(src, ev)
		if err := d.checkWindow(src, ev, w); err != nil {
			return err
		}
		windows[ev] = w
	}
	return d.launch(ctx, src, 0, windows, results[:n])
}

// Solve fits a single event of src.
func (d *Dispatcher) Solve(ctx context.Context, src SampleProvider, event int) (FitResult, error) {
	if event < 0 || event >= src.Len() {
		return FitResult{}, NewInvalidArgError("Solve", fmt.Sprintf("event %d outside chunk of %d", event, src.Len()))
	}
	w := d.strategy.Window(src, event)
	if err := d.checkWindow(src, event, w); err != nil {
		return FitResult{}, err
	}
	results := make([]FitResult, 1)
	if err := d.launch(ctx, src, event, []Window{w}, results); err != nil {
		return FitResult{}, err
	}
	return results[0], nil
}

// checkWindow rejects windows the scratch partition cannot hold or whose
// positions fall outside the event.
func (d *Dispatcher) checkWindow(src SampleProvider, event int, w Window) error {
	where := fmt.Sprintf("event %d window %s", event, w)
	if w.Width > d.cfg.MaxWindow {
		return withContext(ErrWindowTooWide, where, nil)
	}
	if w.Offset < 0 || w.Width < 0 {
		return withContext(ErrWindowOutOfRange, where, nil)
	}
	if w.Width == 0 {
		if w.Offset > src.Samples() {
			return withContext(ErrWindowOutOfRange, where, nil)
		}
		return nil
	}
	last := float64(w.Offset) + float64(w.Width-1)/float64(d.cfg.Interpolation)
	if last > float64(src.Samples()-1) {
		return withContext(ErrWindowOutOfRange, where, nil)
	}
	return nil
}

func (d *Dispatcher) launch(ctx context.Context, src SampleProvider, first int, windows []Window, results []FitResult) error {
	n := len(windows)
	if n == 0 {
		return nil
	}
	arena, err := d.pool.Allocate(n * d.space)
	if err != nil {
		return fmt.Errorf("allocate scratch for %d events: %w", n, err)
	}
	defer func() {
		if err := d.pool.Free(arena); err != nil {
			d.log.WithError(err).Warn("scratch arena not returned to pool")
		}
	}()

	s := &solver{
		cfg:      d.cfg,
		strategy: d.strategy,
		params:   d.params,
		src:      src,
		first:    first,
		windows:  windows,
		arena:    arena,
		space:    d.space,
		results:  results,
		observer: d.observer,
		events:   make([]eventState, n),
	}

	start := time.Now()
	if err := d.device.Launch(ctx, n, d.cfg.Threads, s.kernel); err != nil {
		return fmt.Errorf("launch %d events: %w", n, err)
	}
	elapsed := time.Since(start)

	if d.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		converged := 0
		for _, r := range results {
			if r.Converged() {
				converged++
			}
		}
		d.log.WithFields(logrus.Fields{
			"events":    n,
			"converged": converged,
			"elapsed":   elapsed,
			"per_event": time.Duration(math.Round(float64(elapsed) / float64(n))),
		}).Debug("chunk fitted")
	}
	return nil
}
