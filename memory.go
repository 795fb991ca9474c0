package levmarq

import (
	"fmt"
	"sync"
)

// ScratchPool manages the float64 arenas that back per-event working memory.
// It keeps a free list of previously allocated arenas so that consecutive
// chunks of the same shape reuse one allocation.
type ScratchPool struct {
	mu         sync.Mutex
	allocated  map[*Arena]struct{}
	freeList   []*Arena
	totalAlloc int64
	peakAlloc  int64
}

// Arena is one contiguous scratch allocation, split into equal disjoint
// partitions, one per event of a launch.
type Arena struct {
	data []float64
	used bool
}

// Scratch is the working memory of exactly one event. Views are carved from
// it front to back; nothing else aliases the partition while the event runs.
type Scratch struct {
	data []float64
	next int
}

// NewScratchPool creates a new scratch pool.
func NewScratchPool() *ScratchPool {
	return &ScratchPool{
		allocated: make(map[*Arena]struct{}),
	}
}

// Allocate returns an arena of at least n float64 values, reusing a free one
// when possible. The visible length is exactly n and the contents are zeroed.
func (mp *ScratchPool) Allocate(n int) (*Arena, error) {
	if n <= 0 {
		return nil, ErrInvalidSize
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	// Try to reuse from free list
	for i, a := range mp.freeList {
		if cap(a.data) >= n {
			mp.freeList = append(mp.freeList[:i], mp.freeList[i+1:]...)
			a.data = a.data[:n]
			clear(a.data)
			a.used = true

			mp.totalAlloc += int64(cap(a.data))
			if mp.totalAlloc > mp.peakAlloc {
				mp.peakAlloc = mp.totalAlloc
			}
			return a, nil
		}
	}

	a := &Arena{
		data: make([]float64, n),
		used: true,
	}
	mp.allocated[a] = struct{}{}

	mp.totalAlloc += int64(n)
	if mp.totalAlloc > mp.peakAlloc {
		mp.peakAlloc = mp.totalAlloc
	}
	return a, nil
}

// Free returns an arena to the pool
func (mp *ScratchPool) Free(a *Arena) error {
	if a == nil {
		return nil
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, ok := mp.allocated[a]; !ok {
		return NewMemoryError("Free", "arena not owned by this pool", nil)
	}
	if !a.used {
		return ErrDoubleFree
	}

	a.used = false
	mp.freeList = append(mp.freeList, a)
	mp.totalAlloc -= int64(cap(a.data))
	return nil
}

// GetStats returns the number of float64 values currently handed out and the
// high-water mark.
func (mp *ScratchPool) GetStats() (allocated, peak int64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.totalAlloc, mp.peakAlloc
}

// Len returns the number of float64 values in the arena
func (a *Arena) Len() int {
	return len(a.data)
}

// Partition returns the i-th of the equal partitions of size space.
// The returned Scratch has capacity capped at its own end, so a carve can
// never spill into the neighbouring event.
func (a *Arena) Partition(i, space int) Scratch {
	lo := i * space
	hi := lo + space
	if i < 0 || space < 0 || hi > len(a.data) {
		panic(fmt.Sprintf("levmarq: partition %d of size %d outside arena of %d", i, space, len(a.data)))
	}
	return Scratch{data: a.data[lo:hi:hi]}
}

// NewScratch wraps a caller-owned buffer. Useful for single-worker callers
// and tests.
func NewScratch(buf []float64) Scratch {
	return Scratch{data: buf[:len(buf):len(buf)]}
}

// Take carves the next n values from the partition.
func (s *Scratch) Take(n int) ([]float64, error) {
	if n < 0 || s.next+n > len(s.data) {
		return nil, withContext(ErrScratchExhausted, fmt.Sprintf("need %d, have %d", n, len(s.data)-s.next), nil)
	}
	out := s.data[s.next : s.next+n : s.next+n]
	s.next += n
	return out, nil
}

// Matrix carves a rows×cols view from the partition.
func (s *Scratch) Matrix(rows, cols int) (Matrix, error) {
	buf, err := s.Take(rows * cols)
	if err != nil {
		return Matrix{}, err
	}
	return NewMatrix(buf, rows, cols)
}

// Remaining returns the number of values not yet carved
func (s *Scratch) Remaining() int {
	return len(s.data) - s.next
}

// SpaceFor returns the scratch size, in float64 values, one event needs for a
// window of at most maxWindow positions, P parameters and the given number of
// cooperating workers.
func SpaceFor(maxWindow, params, threads int) int {
	rows := maxWindow + params
	space := 0
	space += rows * 2            // F, F1
	space += rows * params       // A
	space += params * params * 2 // G, G⁻¹
	space += params * 4          // b, s, param, param2
	space += 3                   // u1, u2, u3
	space += reduceSpace(params, threads)
	space++ // pivot scalar for Gauss-Jordan
	return space
}

// reduceSpace is the per-event buffer for cross-worker partial sums. The
// largest reduction output is G with P×P entries.
func reduceSpace(params, threads int) int {
	outputs := params * params
	if outputs < 1 {
		outputs = 1
	}
	return threads * outputs
}
