package ingestion

import (
	"context"
	"errors"
	"sync"
	"time"

	"mailpulse/internal/logger"
	"mailpulse/pkg/metrics"
)

var (
	ErrQueueFull  = errors.New("work queue is full")
	ErrPoolClosed = errors.New("work pool is closed")
)

type job struct {
	enqueuedAt time.Time
	run        func(ctx context.Context)
}

// Pool is a fixed set of workers reading from a bounded queue. Submit never
// blocks the webhook request.
type Pool struct {
	workers      int
	drainTimeout time.Duration
	queue        chan job
	logger       logger.Logger

	mu     sync.RWMutex
	closed bool
}

func NewPool(workers, queueSize int, drainTimeout time.Duration, log logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Pool{
		workers:      workers,
		drainTimeout: drainTimeout,
		queue:        make(chan job, queueSize),
		logger:       log,
	}
}

func (p *Pool) Submit(fn func(ctx context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- job{enqueuedAt: time.Now(), run: fn}:
		metrics.SetWorkerQueueSize(len(p.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

// Run processes jobs until ctx is cancelled, then stops accepting work and
// drains the queue. Jobs still running after the drain timeout see their
// context cancelled.
func (p *Pool) Run(ctx context.Context) error {
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(workCtx)
		}()
	}
	p.logger.Infow("Worker pool started", "workers", p.workers, "queue_size", cap(p.queue))

	<-ctx.Done()

	p.mu.Lock()
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.drainTimeout)
	defer timer.Stop()

	select {
	case <-done:
		p.logger.Info("Worker pool drained")
	case <-timer.C:
		p.logger.Warnw("Drain timeout reached, cancelling in-flight work",
			"drain_timeout", p.drainTimeout,
			"remaining", len(p.queue),
		)
		cancelWork()
		<-done
	}
	return nil
}

func (p *Pool) worker(ctx context.Context) {
	for j := range p.queue {
		metrics.SetWorkerQueueSize(len(p.queue))
		metrics.ObserveWorkerQueueWait(time.Since(j.enqueuedAt))
		j.run(ctx)
	}
}

// Len reports queued jobs not yet picked up by a worker.
func (p *Pool) Len() int {
	return len(p.queue)
}
