// Package queue provides the in-process queue/worker abstraction the
// Migration Orchestrator fans work out over (spec §5): three logical
// priority queues (high, default, low), each a Queue backed either by
// a gammazero/workerpool worker pool or, for tests and the
// concurrency=false toggle (spec §6), a synchronous single-worker
// implementation.
//
// internal/queue keeps the interface abstract rather than binding to
// a real broker: the broker/result-backend runtime is explicitly out
// of scope (spec §1), so a later binding is a drop-in Queue
// implementation.
package queue

import (
	"context"

	"github.com/gammazero/workerpool"
)

// Priority names the three logical queues (spec §4.6/§5).
type Priority string

const (
	High    Priority = "high"
	Default Priority = "default"
	Low     Priority = "low"
)

// Queue submits work for eventual, at-least-once execution. A
// WorkerPool's Submit returns without waiting for the task; a
// Synchronous queue runs it inline before returning. StopWait drains
// pending work before returning, for clean shutdown.
type Queue interface {
	Submit(task func())
	StopWait()
}

// WorkerPool is a Queue backed by gammazero/workerpool: one goroutine
// per pool slot, tasks are plain blocking Go functions ("single-
// threaded within a worker, parallel across workers" — spec §5).
type WorkerPool struct {
	pool *workerpool.WorkerPool
}

// NewWorkerPool returns a Queue with size concurrent workers.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{pool: workerpool.New(size)}
}

func (q *WorkerPool) Submit(task func()) { q.pool.Submit(task) }
func (q *WorkerPool) StopWait()          { q.pool.StopWait() }

// Synchronous is a Queue that runs every task inline on the calling
// goroutine — the concurrency=false configuration toggle (spec §6)
// and the shape tests drive against to keep assertions deterministic.
type Synchronous struct{}

// NewSynchronous returns a Queue with no concurrency.
func NewSynchronous() *Synchronous { return &Synchronous{} }

func (Synchronous) Submit(task func()) { task() }
func (Synchronous) StopWait()          {}

// Set bundles the three logical queues the Orchestrator draws workers
// from.
type Set struct {
	High    Queue
	Default Queue
	Low     Queue
}

// NewWorkerPoolSet builds a Set of worker-pool-backed queues sized
// from sizes (one entry per Priority; zero/negative falls back to 1).
func NewWorkerPoolSet(highSize, defaultSize, lowSize int) Set {
	return Set{
		High:    NewWorkerPool(highSize),
		Default: NewWorkerPool(defaultSize),
		Low:     NewWorkerPool(lowSize),
	}
}

// NewSynchronousSet builds a Set with no concurrency, for tests and
// the concurrency=false toggle.
func NewSynchronousSet() Set {
	return Set{High: NewSynchronous(), Default: NewSynchronous(), Low: NewSynchronous()}
}

// StopWait drains every queue in the set.
func (s Set) StopWait() {
	s.High.StopWait()
	s.Default.StopWait()
	s.Low.StopWait()
}

// For returns the Queue for the named priority, defaulting to Default
// for an unrecognized value.
func (s Set) For(p Priority) Queue {
	switch p {
	case High:
		return s.High
	case Low:
		return s.Low
	default:
		return s.Default
	}
}

// SubmitAndWait runs task on q and blocks until it completes, using a
// done channel — the pattern PingStage and tests use to observe a
// worker-pool round trip without reaching into the pool's internals.
func SubmitAndWait(ctx context.Context, q Queue, task func()) error {
	done := make(chan struct{})
	q.Submit(func() {
		defer close(done)
		task()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
