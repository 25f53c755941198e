// Package scriptpool implements the bounded-concurrency, priority-
// ordered script execution pool: a priority heap feeds W worker
// goroutines gated by a W-sized semaphore, each delegating to
// internal/procrunner, grounded on the teacher's
// internal/core/scheduler.go worker-pool-over-a-semaphore shape.
package scriptpool

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"

	"github.com/hoardpm/hoard/internal/procrunner"
)

// ErrQueueFull is returned by Execute when the queue is already at its
// configured capacity.
var ErrQueueFull = errors.New("scriptpool: queue full")

// ErrPoolClosed is returned by Execute once Dispose has been called.
var ErrPoolClosed = errors.New("scriptpool: pool closed")

// Request is one script execution request.
type Request struct {
	ID       string
	Priority int
	// Timeout bounds this request; the pool's default is used if zero or
	// larger than the pool default, per spec's min(request, pool-default)
	// rule.
	Timeout time.Duration
	Proc    procrunner.Request
}

// ProcessResult is Execute's outcome.
type ProcessResult struct {
	ID       string
	Result   *procrunner.Result
	Err      error
	Canceled bool
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Total              int64
	Active             int64
	Queued             int64
	Failed             int64
	MeanDurationMS     float64
	SampledMemoryBytes uint64
}

type queuedRequest struct {
	req      Request
	priority int
	seq      uint64
	resultCh chan *ProcessResult

	mu       sync.Mutex
	canceled bool
	cancelFn context.CancelFunc
}

type activeEntry struct {
	ctx    context.Context
	cancel context.CancelFunc
}

type poolCounters struct {
	total, active, queued, failed int64
	sampledMemory                 uint64
}

// Pool is a bounded-concurrency, priority-ordered script execution pool.
type Pool struct {
	mu             sync.Mutex
	heap           priorityHeap
	maxQueue       int
	sem            *semaphore.Weighted
	runner         *procrunner.Runner
	logger         hclog.Logger
	defaultTimeout time.Duration

	active map[string]activeEntry

	counters  poolCounters
	durations *durationRing

	wakeCh      chan struct{}
	stopCh      chan struct{}
	monitorStop chan struct{}
	wg          sync.WaitGroup
	closed      bool
}

// New constructs a Pool with workers worker goroutines, a queue capped
// at maxQueue, delegating execution to runner.
func New(workers, maxQueue int, runner *procrunner.Runner, defaultTimeout time.Duration, logger hclog.Logger) *Pool {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		maxQueue:       maxQueue,
		sem:            semaphore.NewWeighted(int64(workers)),
		runner:         runner,
		logger:         logger.Named("scriptpool"),
		defaultTimeout: defaultTimeout,
		active:         map[string]activeEntry{},
		durations:      newDurationRing(256),
		wakeCh:         make(chan struct{}, workers),
		stopCh:         make(chan struct{}),
		monitorStop:    make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
	go p.monitorLoop()
	return p
}

// Execute enqueues req and blocks until it completes, is canceled via
// ctx, or the queue is at capacity (ErrQueueFull, returned immediately
// without blocking).
func (p *Pool) Execute(ctx context.Context, req Request) (*ProcessResult, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.heap.Len() >= p.maxQueue {
		p.mu.Unlock()
		return nil, ErrQueueFull
	}
	qr := &queuedRequest{req: req, priority: req.Priority, resultCh: make(chan *ProcessResult, 1)}
	p.heap.push(qr)
	atomic.AddInt64(&p.counters.queued, 1)
	p.mu.Unlock()

	select {
	case p.wakeCh <- struct{}{}:
	default:
	}

	select {
	case res := <-qr.resultCh:
		return res, nil
	case <-ctx.Done():
		p.cancelQueued(qr)
		return <-qr.resultCh, nil
	}
}

// cancelQueued marks qr canceled and, if it has already started running,
// cancels its execution context immediately.
func (p *Pool) cancelQueued(qr *queuedRequest) {
	qr.mu.Lock()
	qr.canceled = true
	cancel := qr.cancelFn
	qr.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Dispose cancels every active request, drains the queue delivering a
// Canceled result to everything still waiting, and refuses new work.
func (p *Pool) Dispose() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, e := range p.active {
		e.cancel()
	}
	for {
		qr, ok := p.heap.pop()
		if !ok {
			break
		}
		atomic.AddInt64(&p.counters.queued, -1)
		qr.resultCh <- &ProcessResult{ID: qr.req.ID, Canceled: true}
	}
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
	close(p.monitorStop)
}

func (p *Pool) workerLoop() {
	defer p.wg.Done()
	for {
		qr := p.waitAndDequeue()
		if qr == nil {
			return
		}
		p.runRequest(qr)
	}
}

func (p *Pool) waitAndDequeue() *queuedRequest {
	for {
		p.mu.Lock()
		if qr, ok := p.heap.pop(); ok {
			atomic.AddInt64(&p.counters.queued, -1)
			p.mu.Unlock()
			return qr
		}
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return nil
		}
		select {
		case <-p.wakeCh:
		case <-p.stopCh:
		}
	}
}

func (p *Pool) runRequest(qr *queuedRequest) {
	qr.mu.Lock()
	alreadyCanceled := qr.canceled
	qr.mu.Unlock()
	if alreadyCanceled {
		qr.resultCh <- &ProcessResult{ID: qr.req.ID, Canceled: true}
		return
	}

	if err := p.sem.Acquire(context.Background(), 1); err != nil {
		qr.resultCh <- &ProcessResult{ID: qr.req.ID, Err: err}
		return
	}
	defer p.sem.Release(1)

	atomic.AddInt64(&p.counters.active, 1)
	defer atomic.AddInt64(&p.counters.active, -1)

	timeout := p.effectiveTimeout(qr.req.Timeout)
	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	qr.mu.Lock()
	if qr.canceled {
		qr.mu.Unlock()
		cancel()
		qr.resultCh <- &ProcessResult{ID: qr.req.ID, Canceled: true}
		return
	}
	qr.cancelFn = cancel
	qr.mu.Unlock()

	p.mu.Lock()
	p.active[qr.req.ID] = activeEntry{ctx: ctx, cancel: cancel}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.active, qr.req.ID)
		p.mu.Unlock()
	}()

	start := time.Now()
	result, err := p.runner.Run(ctx, qr.req.Proc)
	p.durations.add(time.Since(start))

	pr := &ProcessResult{ID: qr.req.ID, Result: result, Err: err}
	if result != nil && result.State == procrunner.Canceled {
		pr.Canceled = true
	}
	if err != nil || (result != nil && !result.Success && !pr.Canceled) {
		atomic.AddInt64(&p.counters.failed, 1)
	}
	atomic.AddInt64(&p.counters.total, 1)
	qr.resultCh <- pr
}

// effectiveTimeout applies spec's min(request-timeout, pool-default)
// rule; a zero value is treated as "unset", not "zero duration".
func (p *Pool) effectiveTimeout(requested time.Duration) time.Duration {
	switch {
	case requested <= 0:
		return p.defaultTimeout
	case p.defaultTimeout <= 0:
		return requested
	case requested < p.defaultTimeout:
		return requested
	default:
		return p.defaultTimeout
	}
}

// Stats returns a point-in-time snapshot of pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Total:              atomic.LoadInt64(&p.counters.total),
		Active:             atomic.LoadInt64(&p.counters.active),
		Queued:             atomic.LoadInt64(&p.counters.queued),
		Failed:             atomic.LoadInt64(&p.counters.failed),
		MeanDurationMS:     float64(p.durations.mean().Microseconds()) / 1000.0,
		SampledMemoryBytes: atomic.LoadUint64(&p.counters.sampledMemory),
	}
}

// monitorLoop samples allocated memory and prunes fired cancel handles
// from active every 5s, per spec's resource monitor.
func (p *Pool) monitorLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.monitorStop:
			return
		case <-ticker.C:
			p.pruneActive()
			p.sampleMemory()
		}
	}
}

func (p *Pool) pruneActive() {
	p.mu.Lock()
	for id, e := range p.active {
		if e.ctx.Err() != nil {
			delete(p.active, id)
		}
	}
	p.mu.Unlock()
}

func (p *Pool) sampleMemory() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	atomic.StoreUint64(&p.counters.sampledMemory, m.Alloc)
	if m.Alloc > 1<<30 {
		p.logger.Debug("allocated memory exceeds 1GB, hinting GC", "alloc", m.Alloc)
		debug.FreeOSMemory()
	}
}
