package cli

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/LynnColeArt/levmarq"
	"github.com/LynnColeArt/levmarq/fitfunc"
	"github.com/LynnColeArt/levmarq/pipeline"
	"github.com/LynnColeArt/levmarq/waveform"
)

type fitOptions struct {
	configFile string
	input      string
	synthetic  int
	noise      float64
	seed       int64
	degree     int
	guess      string
	offset     int
	width      int
	peakBefore int
	peakAfter  int
	fitters    int
	output     string
	trace      bool
}

func fitCmd() *cobra.Command {
	var opts fitOptions
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit a polynomial to every event",
		Long: `Fit a polynomial to every event of a raw little-endian int16 sample file
(samples_per_event values per event) or of a synthetic noisy polynomial stream.
The window is either fixed (--offset, --width) or centred on the event maximum
(--peak-before, --peak-after).
`,
		Example: `levmarq fit --input run42.raw --degree 2 --peak-before 40 --peak-after 80
levmarq fit --synthetic 10000 --output results.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFit(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.configFile, "config", "", "YAML configuration file")
	f.StringVar(&opts.input, "input", "", "raw int16 waveform file")
	f.IntVar(&opts.synthetic, "synthetic", 0, "fit N generated events instead of --input")
	f.Float64Var(&opts.noise, "noise", 1, "noise amplitude of generated events")
	f.Int64Var(&opts.seed, "seed", 1, "seed of generated events")
	f.IntVar(&opts.degree, "degree", 2, "polynomial degree")
	f.StringVar(&opts.guess, "guess", "mean", "initial guess (zero, mean, lsq)")
	f.IntVar(&opts.offset, "offset", 0, "fixed window offset")
	f.IntVar(&opts.width, "width", 0, "fixed window width (0 uses max_window)")
	f.IntVar(&opts.peakBefore, "peak-before", 0, "samples before the event maximum")
	f.IntVar(&opts.peakAfter, "peak-after", 0, "samples after the event maximum")
	f.IntVar(&opts.fitters, "fitters", 1, "chunks fitted at once")
	f.StringVarP(&opts.output, "output", "o", "", "write per-event results as JSON lines (- for stdout)")
	f.BoolVar(&opts.trace, "trace", false, "log every solver iteration (needs --log-level trace)")
	cmd.MarkFlagsMutuallyExclusive("input", "synthetic")
	return cmd
}

func runFit(cmd *cobra.Command, opts fitOptions) error {
	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		return err
	}
	log := logrus.WithField("cmd", "fit")

	strategy, err := newStrategy(cfg, opts)
	if err != nil {
		return err
	}

	src, closeSrc, err := newSource(cfg, opts)
	if err != nil {
		return err
	}
	defer closeSrc()

	dopts := []levmarq.Option{levmarq.WithLogger(log)}
	if opts.trace {
		dopts = append(dopts, levmarq.WithObserver(levmarq.TraceObserver(log)))
	}
	d, err := levmarq.NewDispatcher(cfg, strategy, dopts...)
	if err != nil {
		return err
	}
	defer d.Close()

	popts := pipeline.Options{Fitters: opts.fitters, Log: log}
	if opts.output != "" {
		w, closeOut, err := openOutput(cmd, opts.output)
		if err != nil {
			return err
		}
		defer closeOut()
		popts.Sink = pipeline.JSONSink(w)
	}

	report, err := pipeline.Run(cmd.Context(), src, d, popts)
	if err != nil {
		return err
	}
	if opts.output != "-" {
		fmt.Fprintln(cmd.OutOrStdout(), report)
	}
	return nil
}

func newStrategy(cfg levmarq.Config, opts fitOptions) (*fitfunc.Polynomial, error) {
	p, err := fitfunc.NewPolynomial(opts.degree)
	if err != nil {
		return nil, err
	}
	p.Interpolation = cfg.Interpolation

	switch opts.guess {
	case "zero":
		p.Guesser = nil
	case "mean":
		p.Guesser = fitfunc.MeanGuess{}
	case "lsq":
		p.Guesser = fitfunc.LeastSquaresGuess{}
	default:
		return nil, fmt.Errorf("unknown guess %q", opts.guess)
	}

	if opts.peakBefore > 0 || opts.peakAfter > 0 {
		p.Selector = fitfunc.PeakWindow{Before: opts.peakBefore, After: opts.peakAfter}
		return p, nil
	}
	width := opts.width
	if width == 0 {
		// widest window that still lies inside the event
		stored := (cfg.MaxWindow-1)/cfg.Interpolation + 1
		if rem := cfg.SamplesPerEvent - opts.offset; rem < stored {
			stored = rem
		}
		width = (stored-1)*cfg.Interpolation + 1
	}
	p.Selector = fitfunc.FixedWindow{Offset: opts.offset, Width: width}
	return p, nil
}

func newSource(cfg levmarq.Config, opts fitOptions) (waveform.Source, func(), error) {
	switch {
	case opts.synthetic > 0:
		coeffs := make([]float64, opts.degree+1)
		for j := range coeffs {
			coeffs[j] = 100 * math.Pow(0.05, float64(j))
		}
		return &waveform.Synthetic{
			Coeffs:  coeffs,
			Noise:   opts.noise,
			Samples: cfg.SamplesPerEvent,
			Events:  opts.synthetic,
			Chunk:   cfg.ChunkEvents,
			Seed:    opts.seed,
		}, func() {}, nil
	case opts.input != "":
		f, err := os.Open(opts.input)
		if err != nil {
			return nil, nil, err
		}
		r, err := waveform.NewReader(f, cfg.SamplesPerEvent, cfg.ChunkEvents)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return r, func() { f.Close() }, nil
	default:
		return nil, nil, errors.New("one of --input or --synthetic is required")
	}
}

func openOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "-" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() {
		if err := f.Close(); err != nil {
			logrus.WithError(err).Warn("closing output")
		}
	}, nil
}
