// Package waveform provides the sample sources fitted by levmarq: an
// interpolating in-memory chunk, a raw int16 file reader and a synthetic
// generator.
package waveform

import (
	"fmt"
	"math"

	"github.com/LynnColeArt/levmarq"
)

var _ levmarq.SampleProvider = (*Chunk)(nil)

// Chunk holds the waveforms of a fixed number of events, row-major, one row
// of Samples values per event. A chunk is written while it is being filled and
// is read-only once handed to a dispatcher.
type Chunk struct {
	data    []float32
	events  int
	samples int
	first   int
}

// NewChunk allocates a zeroed chunk. first is the stream index of event 0.
func NewChunk(first, events, samples int) (*Chunk, error) {
	if events < 0 || samples < 0 {
		return nil, levmarq.NewInvalidArgError("NewChunk",
			fmt.Sprintf("invalid shape %d events x %d samples", events, samples))
	}
	return &Chunk{
		data:    make([]float32, events*samples),
		events:  events,
		samples: samples,
		first:   first,
	}, nil
}

// FromRows builds a chunk from equally long rows.
func FromRows(first int, rows [][]float64) (*Chunk, error) {
	samples := 0
	if len(rows) > 0 {
		samples = len(rows[0])
	}
	c, err := NewChunk(first, len(rows), samples)
	if err != nil {
		return nil, err
	}
	for ev, row := range rows {
		if len(row) != samples {
			return nil, levmarq.NewInvalidArgError("FromRows",
				fmt.Sprintf("event %d has %d samples, want %d", ev, len(row), samples))
		}
		dst := c.Row(ev)
		for i, v := range row {
			dst[i] = float32(v)
		}
	}
	return c, nil
}

// Len returns the number of events
func (c *Chunk) Len() int { return c.events }

// Samples returns the stored samples per event
func (c *Chunk) Samples() int { return c.samples }

// First returns the stream index of event 0
func (c *Chunk) First() int { return c.first }

// Row returns the stored samples of an event. The slice aliases the chunk.
func (c *Chunk) Row(event int) []float32 {
	off := event * c.samples
	return c.data[off : off+c.samples : off+c.samples]
}

// Set stores one sample
func (c *Chunk) Set(event, i int, v float32) {
	c.Row(event)[i] = v
}

// Sample returns the value of event at pos, linearly interpolated between the
// neighbouring stored samples. Positions outside the event clamp to its
// first or last sample.
func (c *Chunk) Sample(event int, pos float64) float64 {
	row := c.Row(event)
	n := len(row)
	if n == 0 {
		return 0
	}
	if !(pos > 0) { // also catches NaN
		return float64(row[0])
	}
	last := float64(n - 1)
	if pos >= last {
		return float64(row[n-1])
	}
	i := math.Floor(pos)
	frac := pos - i
	lo := float64(row[int(i)])
	if frac == 0 {
		return lo
	}
	hi := float64(row[int(i)+1])
	return lo + frac*(hi-lo)
}

// Peak returns the index of the largest stored sample of an event, the first
// one on ties. An empty event peaks at 0.
func (c *Chunk) Peak(event int) int {
	row := c.Row(event)
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}
