package pools

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// DefaultWorkers is the pool size used when a non-positive size is requested.
const DefaultWorkers = 4

// Task represents a unit of work
type Task func()

// WorkerPool runs tasks on a fixed set of long-lived goroutines that share
// one unbounded FIFO queue. Submit never blocks on capacity.
type WorkerPool struct {
	numWorkers int
	logger     *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	closed bool
	wg     sync.WaitGroup

	// Statistics
	stats struct {
		tasksSubmitted atomic.Uint64
		tasksCompleted atomic.Uint64
		tasksPanicked  atomic.Uint64
		tasksRunning   atomic.Int64
	}
}

// NewWorkerPool creates a pool with numWorkers workers and starts them.
func NewWorkerPool(numWorkers int, logger *slog.Logger) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool := &WorkerPool{
		numWorkers: numWorkers,
		logger:     logger,
	}
	pool.cond = sync.NewCond(&pool.mu)

	pool.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go pool.run(i)
	}

	return pool
}

// Submit enqueues a task. It reports false if the pool has been closed.
func (p *WorkerPool) Submit(task Task) bool {
	if task == nil {
		return false
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.queue = append(p.queue, task)
	p.stats.tasksSubmitted.Add(1)
	p.mu.Unlock()

	p.cond.Signal()
	return true
}

// run is the main loop for a worker goroutine
func (p *WorkerPool) run(id int) {
	defer p.wg.Done()

	for {
		task, ok := p.next()
		if !ok {
			return
		}
		p.execute(id, task)
	}
}

// next blocks until a task is available. It returns false once the pool is
// closed and the queue has been drained.
func (p *WorkerPool) next() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 {
		if p.closed {
			return nil, false
		}
		p.cond.Wait()
	}

	task := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	if len(p.queue) == 0 {
		// Drop the backing array so a burst does not pin memory.
		p.queue = nil
	}
	return task, true
}

// execute runs one task; a panic is confined to that task.
func (p *WorkerPool) execute(id int, task Task) {
	p.stats.tasksRunning.Add(1)
	defer func() {
		p.stats.tasksRunning.Add(-1)
		p.stats.tasksCompleted.Add(1)
		if r := recover(); r != nil {
			p.stats.tasksPanicked.Add(1)
			p.logger.Error("worker task panicked",
				slog.Int("worker", id),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	task()
}

// Close stops accepting tasks, waits for queued tasks to finish and joins
// all workers. Calling Close more than once is a no-op.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
}

// Stats returns pool statistics
func (p *WorkerPool) Stats() WorkerPoolStats {
	p.mu.Lock()
	pending := len(p.queue)
	p.mu.Unlock()

	return WorkerPoolStats{
		NumWorkers:     p.numWorkers,
		TasksSubmitted: p.stats.tasksSubmitted.Load(),
		TasksCompleted: p.stats.tasksCompleted.Load(),
		TasksPanicked:  p.stats.tasksPanicked.Load(),
		TasksPending:   uint64(pending),
		TasksRunning:   uint64(p.stats.tasksRunning.Load()),
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers     int
	TasksSubmitted uint64
	TasksCompleted uint64
	TasksPanicked  uint64
	TasksPending   uint64
	TasksRunning   uint64
}
