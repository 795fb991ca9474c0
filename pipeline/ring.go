// Package pipeline connects waveform sources, the levmarq dispatcher and
// result consumers with bounded buffers.
package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Pop once a closed ring is drained and by Push on a
// closed ring.
var ErrClosed = errors.New("pipeline: ring closed")

// Ring is a bounded blocking queue between two stages. Push blocks while the
// ring is full and Pop while it is empty. Items pushed before Close are still
// delivered.
type Ring[T any] struct {
	items     chan T
	closed    chan struct{}
	closeOnce sync.Once
}

// NewRing creates a ring holding up to capacity items (at least one).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		items:  make(chan T, capacity),
		closed: make(chan struct{}),
	}
}

// Push appends v, waiting for space.
func (r *Ring[T]) Push(ctx context.Context, v T) error {
	select {
	case <-r.closed:
		return ErrClosed
	default:
	}
	select {
	case r.items <- v:
		return nil
	case <-r.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop removes the oldest item, waiting for one to arrive.
func (r *Ring[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	select {
	case v := <-r.items:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-r.closed:
		select {
		case v := <-r.items:
			return v, nil
		default:
			return zero, ErrClosed
		}
	}
}

// Close stops further pushes. It is safe to call more than once.
func (r *Ring[T]) Close() {
	r.closeOnce.Do(func() { close(r.closed) })
}

// Len returns the number of buffered items
func (r *Ring[T]) Len() int { return len(r.items) }

// Cap returns the ring capacity
func (r *Ring[T]) Cap() int { return cap(r.items) }
