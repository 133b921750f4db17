// Package queue runs question requests on a bounded worker pool so the
// RPC accept loop never blocks on the pipeline. Requests are
// independent; there is no cross-request ordering guarantee.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jjgarcianorway/anna/pkg/orchestrator"
)

// ErrQueueFull is returned when the submission queue cannot take
// another request.
var ErrQueueFull = errors.New("request queue is full")

// ErrShuttingDown is returned for submissions after Stop began.
var ErrShuttingDown = errors.New("worker pool is shutting down")

// Result pairs an answer with the error from the pipeline.
type Result struct {
	Answer *orchestrator.Answer
	Err    error
}

type job struct {
	ctx   context.Context
	req   orchestrator.Request
	reply chan Result
}

// WorkerPool manages the request workers and the per-request cancel
// registry.
type WorkerPool struct {
	orch    *orchestrator.Orchestrator
	workers int
	jobs    chan job

	mu       sync.Mutex
	active   map[string]context.CancelFunc
	started  bool
	stopped  bool
	wg       sync.WaitGroup
}

// NewWorkerPool creates a pool with the given worker count and queue
// depth.
func NewWorkerPool(orch *orchestrator.Orchestrator, workers, depth int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}
	return &WorkerPool{
		orch:    orch,
		workers: workers,
		jobs:    make(chan job, depth),
		active:  make(map[string]context.CancelFunc),
	}
}

// Start spawns the worker goroutines. Safe to call once; subsequent
// calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call")
		return
	}
	p.started = true

	slog.Info("Starting worker pool", "worker_count", p.workers)
	for i := 0; i < p.workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runWorker(ctx, workerID)
		}()
	}
}

// Stop drains the queue: workers finish their current requests and
// exit. Blocks until all workers returned.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	slog.Info("Stopping worker pool gracefully")
	close(p.jobs)
	p.wg.Wait()
	slog.Info("Worker pool stopped")
}

// Submit enqueues a request and returns the channel its result will
// arrive on.
func (p *WorkerPool) Submit(ctx context.Context, req orchestrator.Request) (<-chan Result, error) {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return nil, ErrShuttingDown
	}

	reply := make(chan Result, 1)
	select {
	case p.jobs <- job{ctx: ctx, req: req, reply: reply}:
		return reply, nil
	default:
		return nil, ErrQueueFull
	}
}

// Cancel aborts an in-flight request by id. Returns true when the
// request was found.
func (p *WorkerPool) Cancel(requestID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, ok := p.active[requestID]; ok {
		cancel()
		return true
	}
	return false
}

// Health is a point-in-time snapshot of the pool.
type Health struct {
	Workers    int `json:"workers"`
	Active     int `json:"active_requests"`
	QueueDepth int `json:"queue_depth"`
}

// Snapshot returns the pool health.
func (p *WorkerPool) Snapshot() Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Health{
		Workers:    p.workers,
		Active:     len(p.active),
		QueueDepth: len(p.jobs),
	}
}

func (p *WorkerPool) runWorker(ctx context.Context, workerID string) {
	for j := range p.jobs {
		reqCtx, cancel := context.WithCancel(j.ctx)
		p.register(j.req.ID, cancel)

		slog.Debug("Worker picked up request", "worker_id", workerID, "request_id", j.req.ID)
		answer, err := p.orch.Handle(reqCtx, j.req)

		p.unregister(j.req.ID)
		cancel()
		j.reply <- Result{Answer: answer, Err: err}

		if ctx.Err() != nil {
			return
		}
	}
}

func (p *WorkerPool) register(id string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[id] = cancel
}

func (p *WorkerPool) unregister(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, id)
}
