package waveform

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrTruncatedEvent is returned when a stream ends inside an event.
var ErrTruncatedEvent = errors.New("waveform: stream ends inside an event")

// Source yields chunks until it returns io.EOF.
type Source interface {
	Next() (*Chunk, error)
}

// Reader decodes a raw stream of little-endian int16 samples, a fixed number
// per event, into chunks of up to chunkEvents events.
type Reader struct {
	r           *bufio.Reader
	samples     int
	chunkEvents int
	next        int // stream index of the next event
	buf         []int16
	done        bool
}

// NewReader wraps r. samples is the sample count per event.
func NewReader(r io.Reader, samples, chunkEvents int) (*Reader, error) {
	if samples < 1 || chunkEvents < 1 {
		return nil, fmt.Errorf("waveform: invalid reader shape %d samples, %d events per chunk", samples, chunkEvents)
	}
	return &Reader{
		r:           bufio.NewReaderSize(r, 1<<16),
		samples:     samples,
		chunkEvents: chunkEvents,
		buf:         make([]int16, samples),
	}, nil
}

// Next returns the next chunk. The last chunk may hold fewer than chunkEvents
// events; after it Next returns io.EOF.
func (r *Reader) Next() (*Chunk, error) {
	if r.done {
		return nil, io.EOF
	}
	c, err := NewChunk(r.next, r.chunkEvents, r.samples)
	if err != nil {
		return nil, err
	}
	n := 0
	for n < r.chunkEvents {
		err := binary.Read(r.r, binary.LittleEndian, r.buf)
		if err == io.EOF {
			r.done = true
			break
		}
		if err == io.ErrUnexpectedEOF {
			r.done = true
			return nil, fmt.Errorf("event %d: %w", r.next+n, ErrTruncatedEvent)
		}
		if err != nil {
			return nil, fmt.Errorf("read event %d: %w", r.next+n, err)
		}
		row := c.Row(n)
		for i, v := range r.buf {
			row[i] = float32(v)
		}
		n++
	}
	if n == 0 {
		return nil, io.EOF
	}
	c.events = n
	c.data = c.data[:n*r.samples]
	r.next += n
	return c, nil
}

// WriteEvents encodes rows as the raw format read by Reader. Values are
// rounded and saturated to int16.
func WriteEvents(w io.Writer, rows [][]float64) error {
	bw := bufio.NewWriter(w)
	for ev, row := range rows {
		out := make([]int16, len(row))
		for i, v := range row {
			out[i] = toInt16(v)
		}
		if err := binary.Write(bw, binary.LittleEndian, out); err != nil {
			return fmt.Errorf("write event %d: %w", ev, err)
		}
	}
	return bw.Flush()
}

func toInt16(v float64) int16 {
	switch {
	case v >= 32767:
		return 32767
	case v <= -32768:
		return -32768
	case v < 0:
		return int16(v - 0.5)
	default:
		return int16(v + 0.5)
	}
}
