package levmarq

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// ThreadID identifies a worker's position within the launch. Block is the
// event index within the grid, Thread the worker index within that event's
// cooperating group.
type ThreadID struct {
	Block    int // Block index within the grid
	Thread   int // Thread index within the block
	BlockDim int // Workers per block
	GridDim  int // Blocks in the grid
}

// Block is the state shared by the workers of one block: the phase barrier.
// Anything else a block shares lives in its scratch partition.
type Block struct {
	barrier *Barrier
}

// Sync waits until every worker of the block reaches the same point.
func (b *Block) Sync() {
	b.barrier.Wait()
}

// Size returns the number of cooperating workers
func (b *Block) Size() int {
	return b.barrier.Parties()
}

// KernelFunc is run once per worker of every block. Implementations must only
// touch memory owned by tid.Block and must call blk.Sync the same number of
// times on every worker.
type KernelFunc func(tid ThreadID, blk *Block)

// Device runs kernels on the host CPU. Blocks are distributed over a
// persistent worker pool; the workers of a single block run as separate
// goroutines so that they can meet at barriers.
type Device struct {
	ID         int         // Unique device identifier
	Name       string      // Human-readable device name
	NumCores   int         // Number of CPU cores
	MaxThreads int         // Maximum workers per block
	Features   CPUFeatures // Instruction set extensions of the host

	pool *WorkerPool
}

// NewDevice creates a device whose pool has the given number of workers.
// If workers <= 0, uses GOMAXPROCS.
func NewDevice(workers int) *Device {
	return &Device{
		Name:       "CPU",
		NumCores:   runtime.NumCPU(),
		MaxThreads: MaxThreadsPerBlock,
		Features:   HostFeatures(),
		pool:       NewWorkerPool(workers),
	}
}

// Workers returns the size of the block pool
func (d *Device) Workers() int {
	return d.pool.workers
}

// Close shuts down the worker pool. Calling Close multiple times is safe.
func (d *Device) Close() {
	d.pool.Close()
}

// Launch runs kernel for grid blocks of block workers each and waits for all
// of them. ctx is checked before each block starts; blocks already running
// finish. A panicking worker fails its block and the launch returns an
// execution error naming the first failed block.
func (d *Device) Launch(ctx context.Context, grid, block int, kernel KernelFunc) error {
	if grid < 0 {
		return NewInvalidArgError("Launch", fmt.Sprintf("invalid grid size: %d", grid))
	}
	if block < 1 || block > d.MaxThreads {
		return NewInvalidArgError("Launch", fmt.Sprintf("invalid block size: %d", block))
	}
	if grid == 0 {
		return nil
	}

	var (
		errOnce  sync.Once
		firstErr error
	)
	record := func(err error) {
		errOnce.Do(func() { firstErr = err })
	}

	err := d.pool.ParallelForAtomic(grid, func(blockID int) {
		if err := ctx.Err(); err != nil {
			record(err)
			return
		}
		if err := runBlock(blockID, grid, block, kernel); err != nil {
			record(err)
		}
	})
	if err != nil {
		return err
	}
	return firstErr
}

// runBlock executes all workers of one block. Worker 0 runs on the calling
// goroutine.
func runBlock(blockID, grid, block int, kernel KernelFunc) error {
	blk := &Block{barrier: NewBarrier(block)}
	errs := make([]error, block)

	run := func(thread int) {
		defer func() {
			if r := recover(); r != nil {
				blk.barrier.Break()
				if err, ok := r.(error); ok && err == ErrBarrierBroken {
					errs[thread] = ErrBarrierBroken
					return
				}
				errs[thread] = withContext(ErrKernelFailed,
					fmt.Sprintf("block %d thread %d", blockID, thread),
					fmt.Errorf("panic: %v", r))
			}
		}()
		kernel(ThreadID{
			Block:    blockID,
			Thread:   thread,
			BlockDim: block,
			GridDim:  grid,
		}, blk)
	}

	var wg sync.WaitGroup
	wg.Add(block - 1)
	for t := 1; t < block; t++ {
		go func(thread int) {
			defer wg.Done()
			run(thread)
		}(t)
	}
	run(0)
	wg.Wait()

	// Report the root cause, not the siblings that were unwound by it
	var broken error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if err == ErrBarrierBroken {
			broken = err
			continue
		}
		return err
	}
	return broken
}

// WorkerPool manages a pool of persistent worker goroutines
type WorkerPool struct {
	workers int
	tasks   chan func()
	mu      sync.RWMutex // held for reading while tasks are sent
	closed  bool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	pool := &WorkerPool{
		workers: workers,
		tasks:   make(chan func(), workers*2),
	}

	// Start workers
	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	return pool
}

// worker processes tasks from the queue
func (wp *WorkerPool) worker() {
	for task := range wp.tasks {
		task()
	}
}

// Close shuts down the worker pool. It waits for in-flight submissions, so a
// concurrent ParallelForAtomic either completes or returns ErrPoolClosed.
func (wp *WorkerPool) Close() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.closed {
		return
	}
	wp.closed = true
	close(wp.tasks)
}

// ParallelForAtomic executes fn for each index in [0, n) with atomic work
// stealing, so that slow events do not hold up a statically assigned range.
// Blocks until all work completes.
func (wp *WorkerPool) ParallelForAtomic(n int, fn func(i int)) error {
	if n <= 0 {
		return nil
	}
	wp.mu.RLock()
	if wp.closed {
		wp.mu.RUnlock()
		return ErrPoolClosed
	}

	workers := min(wp.workers, n)

	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		wp.tasks <- func() {
			defer wg.Done()
			for {
				idx := int(next.Add(1)) - 1
				if idx >= n {
					return
				}
				fn(idx)
			}
		}
	}
	wp.mu.RUnlock()

	wg.Wait()
	return nil
}
