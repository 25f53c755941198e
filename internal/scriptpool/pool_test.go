package scriptpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/hoardpm/hoard/internal/procrunner"
)

func newTestPool(workers, maxQueue int) *Pool {
	return New(workers, maxQueue, procrunner.New(nil), 2*time.Second, nil)
}

func TestExecuteRunsAndReturnsSuccess(t *testing.T) {
	p := newTestPool(2, 10)
	defer p.Dispose()

	res, err := p.Execute(context.Background(), Request{
		ID: "a", Priority: 0,
		Proc: procrunner.Request{Command: "true"},
	})
	assert.NilError(t, err)
	assert.Assert(t, res.Result.Success)
}

func TestExecuteQueueFullRejectsImmediately(t *testing.T) {
	p := New(1, 1, procrunner.New(nil), time.Second, nil)
	defer p.Dispose()

	// occupy the single worker with a slow request, then fill the 1-slot queue.
	go p.Execute(context.Background(), Request{ID: "slow", Proc: procrunner.Request{Command: "sleep", Args: []string{"1"}}}) //nolint:errcheck
	time.Sleep(20 * time.Millisecond)

	doneCh := make(chan struct{})
	go func() {
		p.Execute(context.Background(), Request{ID: "queued", Proc: procrunner.Request{Command: "true"}}) //nolint:errcheck
		close(doneCh)
	}()
	time.Sleep(20 * time.Millisecond)

	_, err := p.Execute(context.Background(), Request{ID: "overflow", Proc: procrunner.Request{Command: "true"}})
	assert.ErrorIs(t, err, ErrQueueFull)
	<-doneCh
}

func TestExecuteHigherPriorityRunsFirst(t *testing.T) {
	p := New(1, 10, procrunner.New(nil), time.Second, nil)
	defer p.Dispose()

	// Hold the single worker busy so both low/high priority requests queue up.
	go p.Execute(context.Background(), Request{ID: "hold", Proc: procrunner.Request{Command: "sleep", Args: []string{"1"}}}) //nolint:errcheck
	time.Sleep(20 * time.Millisecond)

	var orderMu sync.Mutex
	var order []string
	lowDone := make(chan struct{})
	highDone := make(chan struct{})
	go func() {
		p.Execute(context.Background(), Request{ID: "low", Priority: 0, Proc: procrunner.Request{Command: "true"}}) //nolint:errcheck
		orderMu.Lock()
		order = append(order, "low")
		orderMu.Unlock()
		close(lowDone)
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		p.Execute(context.Background(), Request{ID: "high", Priority: 10, Proc: procrunner.Request{Command: "true"}}) //nolint:errcheck
		orderMu.Lock()
		order = append(order, "high")
		orderMu.Unlock()
		close(highDone)
	}()

	<-lowDone
	<-highDone
	assert.Equal(t, order[0], "high")
}

func TestDisposeCancelsQueuedAndActive(t *testing.T) {
	p := New(1, 10, procrunner.New(nil), 0, nil)

	resCh := make(chan *ProcessResult, 1)
	go func() {
		res, _ := p.Execute(context.Background(), Request{ID: "long", Proc: procrunner.Request{Command: "sleep", Args: []string{"5"}}})
		resCh <- res
	}()
	time.Sleep(20 * time.Millisecond)

	// With the single worker busy, this request waits in the queue.
	queuedCh := make(chan *ProcessResult, 1)
	go func() {
		res, _ := p.Execute(context.Background(), Request{ID: "queued", Proc: procrunner.Request{Command: "true"}})
		queuedCh <- res
	}()
	time.Sleep(20 * time.Millisecond)

	p.Dispose()

	res := <-resCh
	assert.Assert(t, res.Canceled)
	queued := <-queuedCh
	assert.Assert(t, queued.Canceled)
}

func TestStatsReflectsCompletedExecutions(t *testing.T) {
	p := newTestPool(1, 10)
	defer p.Dispose()

	_, err := p.Execute(context.Background(), Request{ID: "s1", Proc: procrunner.Request{Command: "true"}})
	assert.NilError(t, err)

	stats := p.Stats()
	assert.Equal(t, stats.Total, int64(1))
}
