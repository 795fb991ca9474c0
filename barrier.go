package levmarq

import "sync"

// Barrier is a reusable phase barrier for the workers of one block. Every
// worker calls Wait; the last arrival releases the others and the barrier
// resets for the next phase. Writes made before Wait are visible to all
// workers after it returns.
type Barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	waiting    int
	generation uint64
	broken     bool
}

// NewBarrier creates a barrier for n workers
func NewBarrier(n int) *Barrier {
	b := &Barrier{parties: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until all parties have called Wait for the current phase.
// It panics with ErrBarrierBroken if the barrier was broken, so that the
// remaining workers of a failed block unwind instead of hanging.
func (b *Barrier) Wait() {
	if b.parties <= 1 {
		return
	}
	b.mu.Lock()
	if b.broken {
		b.mu.Unlock()
		panic(ErrBarrierBroken)
	}
	gen := b.generation
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.generation++
		b.cond.Broadcast()
		b.mu.Unlock()
		return
	}
	for gen == b.generation && !b.broken {
		b.cond.Wait()
	}
	broken := b.broken && gen == b.generation
	b.mu.Unlock()
	if broken {
		panic(ErrBarrierBroken)
	}
}

// Break releases every waiter with ErrBarrierBroken. Used when a worker fails.
func (b *Barrier) Break() {
	b.mu.Lock()
	b.broken = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Parties returns the number of workers the barrier synchronizes
func (b *Barrier) Parties() int {
	return b.parties
}
