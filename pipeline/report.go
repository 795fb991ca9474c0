package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/LynnColeArt/levmarq"
)

// Report aggregates the results of a run.
type Report struct {
	Chunks     int           `json:"chunks"`
	Events     int           `json:"events"`
	Converged  int           `json:"converged"`
	Exceeded   int           `json:"exceeded"`
	Iterations int           `json:"iterations"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Add accounts for one fitted chunk
func (r *Report) Add(results []levmarq.FitResult) {
	r.Chunks++
	for _, res := range results {
		r.Events++
		r.Iterations += res.Iterations
		switch res.Status {
		case levmarq.Converged:
			r.Converged++
		case levmarq.IterationCapExceeded:
			r.Exceeded++
		}
	}
}

// MeanIterations returns the average iteration count per event
func (r *Report) MeanIterations() float64 {
	if r.Events == 0 {
		return 0
	}
	return float64(r.Iterations) / float64(r.Events)
}

// Throughput returns fitted events per second
func (r *Report) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Events) / r.Elapsed.Seconds()
}

// String implements fmt.Stringer
func (r *Report) String() string {
	return fmt.Sprintf("%d events in %d chunks: %d converged, %d exceeded, %.2f iterations/event, %.0f events/s",
		r.Events, r.Chunks, r.Converged, r.Exceeded, r.MeanIterations(), r.Throughput())
}

// Log writes the report as one structured entry
func (r *Report) Log(log *logrus.Entry) {
	log.WithFields(logrus.Fields{
		"chunks":         r.Chunks,
		"events":         r.Events,
		"converged":      r.Converged,
		"exceeded":       r.Exceeded,
		"mean_iter":      fmt.Sprintf("%.2f", r.MeanIterations()),
		"elapsed":        r.Elapsed,
		"events_per_sec": fmt.Sprintf("%.0f", r.Throughput()),
	}).Info("fit complete")
}

// eventRecord is one line of the JSON dump. Non-finite parameters are
// written as strings since JSON has no NaN.
type eventRecord struct {
	Event      int            `json:"event"`
	Status     levmarq.Status `json:"status"`
	WOffset    int            `json:"woffset"`
	Iterations int            `json:"iterations"`
	Params     []interface{}  `json:"params"`
}

func newEventRecord(event int, res levmarq.FitResult) eventRecord {
	params := make([]interface{}, len(res.Params))
	for j, v := range res.Params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			params[j] = strconv.FormatFloat(v, 'g', -1, 64)
		} else {
			params[j] = v
		}
	}
	return eventRecord{
		Event:      event,
		Status:     res.Status,
		WOffset:    res.WindowOffset,
		Iterations: res.Iterations,
		Params:     params,
	}
}

// JSONSink writes every result as one JSON object per line. The layout is a
// debugging aid and may change.
func JSONSink(w io.Writer) Sink {
	enc := json.NewEncoder(w)
	return func(b Batch) error {
		for i, res := range b.Results {
			if err := enc.Encode(newEventRecord(b.Chunk.First()+i, res)); err != nil {
				return fmt.Errorf("encode event %d: %w", b.Chunk.First()+i, err)
			}
		}
		return nil
	}
}
