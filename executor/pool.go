package executor

import (
	"container/heap"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/vixgo/vixgo/internal/metrics"
	"github.com/vixgo/vixgo/pkg/logger"
)

// Metrics is a point-in-time snapshot of the executor's internal counters.
type Metrics struct {
	PendingTasks  uint64
	ActiveTasks   uint64
	TimedOutTasks uint64
	Workers       int
}

// Options configures a Pool. Zero values mean "auto": MinThreads of 0
// resolves to 1, MaxThreads of 0 to 4*runtime.NumCPU(), and MaxPeriodic
// of 0 to 4.
type Options struct {
	MinThreads  int
	MaxThreads  int
	MaxPeriodic int
	// DefaultTimeout is the advisory per-task deadline used when a caller
	// submits via Post without specifying one explicitly. 0 disables the
	// timeout-telemetry check.
	DefaultTimeout time.Duration
}

func (o Options) resolved() Options {
	if o.MinThreads <= 0 {
		o.MinThreads = 1
	}
	if o.MaxThreads <= 0 {
		o.MaxThreads = 4 * runtime.NumCPU()
	}
	if o.MinThreads > o.MaxThreads {
		o.MinThreads = o.MaxThreads
	}
	if o.MaxPeriodic <= 0 {
		o.MaxPeriodic = 4
	}
	return o
}

// Pool is a bounded, elastically-sized priority thread-pool. Submitted
// tasks run in (priority desc, submission-order asc) order — see
// taskQueue — and the worker count grows from MinThreads toward MaxThreads
// only when the queue backs up behind a fully-busy pool, mirroring
// ThreadPool::createThread's saturated-and-backlogged trigger.
type Pool struct {
	mu        sync.Mutex
	cond      *sync.Cond
	idleCond  *sync.Cond
	queue     taskQueue
	nextSeq   atomic.Uint64
	stopped   atomic.Bool
	workers   int
	opts      Options
	active    atomic.Uint64
	timedOut  atomic.Uint64
	periodSem chan struct{}
	stopPer   atomic.Bool
	wg        sync.WaitGroup
}

// New creates and starts a Pool with MinThreads initial workers.
func New(opts Options) *Pool {
	opts = opts.resolved()
	p := &Pool{
		opts:      opts,
		periodSem: make(chan struct{}, opts.MaxPeriodic),
	}
	p.cond = sync.NewCond(&p.mu)
	p.idleCond = sync.NewCond(&p.mu)
	heap.Init(&p.queue)

	for i := 0; i < opts.MinThreads; i++ {
		p.spawnWorkerLocked()
	}
	logger.Info("executor started: min=%d max=%d max_periodic=%d", opts.MinThreads, opts.MaxThreads, opts.MaxPeriodic)
	return p
}

// spawnWorkerLocked must be called with p.mu held.
func (p *Pool) spawnWorkerLocked() {
	p.workers++
	metrics.ExecutorWorkers.Inc()
	p.wg.Add(1)
	go p.runWorker()
}

func (p *Pool) runWorker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.queue.Len() == 0 && !p.stopped.Load() {
			p.cond.Wait()
		}
		if p.stopped.Load() && p.queue.Len() == 0 {
			p.mu.Unlock()
			return
		}
		t := heap.Pop(&p.queue).(*task)
		metrics.ExecutorPending.Set(float64(p.queue.Len()))
		p.mu.Unlock()

		p.active.Inc()
		metrics.ExecutorActive.Set(float64(p.active.Load()))
		start := time.Now()
		runSafely(t.fn)
		metrics.ExecutorTasksCompleted.Inc()
		if t.deadline > 0 {
			if elapsed := time.Since(start); elapsed > t.deadline {
				logger.Warn("executor: task exceeded advisory timeout of %v (actual %v)", t.deadline, elapsed)
				p.timedOut.Inc()
				metrics.ExecutorTasksTimedOut.Inc()
			}
		}
		p.active.Dec()
		metrics.ExecutorActive.Set(float64(p.active.Load()))

		p.mu.Lock()
		if p.queue.Len() == 0 && p.active.Load() == 0 {
			p.idleCond.Broadcast()
		}
		p.mu.Unlock()
	}
}

// runSafely swallows a panicking task instead of letting it crash the
// executor worker goroutine.
func runSafely(fn Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("executor: task panicked: %v", r)
		}
	}()
	fn()
}

// Callable is a unit of work submitted via Submit, producing a result or
// an error once it runs.
type Callable func() (interface{}, error)

// Future is a channel-backed handle to a Callable's eventual result,
// the Go analog of the std::future<T> ThreadPool::submit returns.
type Future struct {
	done chan struct{}
	val  interface{}
	err  error
}

// Get blocks until the callable has run (or the submission was rejected)
// and returns its result.
func (f *Future) Get() (interface{}, error) {
	<-f.done
	return f.val, f.err
}

// Wait blocks until the future resolves, discarding the result.
func (f *Future) Wait() {
	<-f.done
}

func newRejectedFuture(err error) *Future {
	f := &Future{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

// Submit enqueues fn at the given priority and returns a Future resolving
// with its result once it runs. If the pool is stopped (or otherwise
// rejects the submission), the returned Future resolves immediately with
// a "submit rejected" error instead of blocking forever.
func (p *Pool) Submit(priority Priority, fn Callable) *Future {
	fut := &Future{done: make(chan struct{})}
	wrapped := func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("executor: submitted task panicked: %v", r)
				fut.err = fmt.Errorf("executor: task panicked: %v", r)
			}
			close(fut.done)
		}()
		fut.val, fut.err = fn()
	}
	if err := p.submit(priority, 0, wrapped); err != nil {
		return newRejectedFuture(fmt.Errorf("executor: submit rejected: %w", err))
	}
	return fut
}

// Post submits fn at the given priority, using Options.DefaultTimeout as its
// advisory timeout (0 disables the check).
func (p *Pool) Post(priority Priority, fn Task) error {
	return p.submit(priority, p.opts.DefaultTimeout, fn)
}

// PostWithTimeout submits fn at the given priority; if it runs longer than
// timeout the executor logs a warning and increments the timed-out counter,
// but the task still runs to completion (timeout here is telemetry only).
func (p *Pool) PostWithTimeout(priority Priority, timeout time.Duration, fn Task) error {
	return p.submit(priority, timeout, fn)
}

func (p *Pool) submit(priority Priority, timeout time.Duration, fn Task) error {
	if p.stopped.Load() {
		metrics.ExecutorTasksRejected.Inc()
		return fmt.Errorf("executor: pool is stopped")
	}

	seq := p.nextSeq.Inc()
	t := &task{fn: fn, priority: priority, seq: seq, deadline: timeout}

	p.mu.Lock()
	heap.Push(&p.queue, t)
	metrics.ExecutorPending.Set(float64(p.queue.Len()))

	wcount := p.workers
	saturated := p.active.Load() >= uint64(wcount)
	backlog := p.queue.Len() > wcount
	if wcount < p.opts.MaxThreads && saturated && backlog {
		p.spawnWorkerLocked()
	}
	p.mu.Unlock()

	p.cond.Signal()
	return nil
}

// GetMetrics returns a point-in-time snapshot of the pool's counters.
func (p *Pool) GetMetrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Metrics{
		PendingTasks:  uint64(p.queue.Len()),
		ActiveTasks:   p.active.Load(),
		TimedOutTasks: p.timedOut.Load(),
		Workers:       p.workers,
	}
}

// IsIdle reports whether the pool has no pending tasks and no active workers.
func (p *Pool) IsIdle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len() == 0 && p.active.Load() == 0
}

// WaitIdle blocks until the pool has no pending or active tasks. Repeated
// calls always observe true completion — callers may invoke it again after
// submitting more work.
func (p *Pool) WaitIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.queue.Len() > 0 || p.active.Load() > 0 {
		p.idleCond.Wait()
	}
}

// Periodic schedules fn to run via the executor at every interval, bounded
// by MaxPeriodic concurrently-running schedulers. It blocks the calling
// goroutine until the pool is stopped, so callers invoke it in its own
// goroutine — mirroring ThreadPool::periodicTask.
func (p *Pool) Periodic(priority Priority, interval time.Duration, fn Task) {
	select {
	case p.periodSem <- struct{}{}:
	default:
		logger.Warn("executor: max_periodic schedulers already running, refusing new periodic task")
		return
	}
	defer func() { <-p.periodSem }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if p.stopPer.Load() || p.stopped.Load() {
			return
		}
		if err := p.Post(priority, fn); err != nil {
			logger.Warn("executor: periodic task enqueue failed, stopping scheduler: %v", err)
			return
		}
	}
}

// StopPeriodic requests all running Periodic schedulers to exit at their
// next tick.
func (p *Pool) StopPeriodic() {
	p.stopPer.Store(true)
}

// Stop signals all workers to exit once the queue drains and waits for
// them to finish. It is safe to call once; subsequent calls are no-ops.
func (p *Pool) Stop() {
	p.stopPer.Store(true)
	p.mu.Lock()
	p.stopped.Store(true)
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
	logger.Info("executor stopped")
}
