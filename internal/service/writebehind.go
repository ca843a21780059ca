package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/set-night/mindcanvas/internal/config"
)

type persistFunc func(ctx context.Context) error

type persistJob struct {
	op    string
	run   persistFunc
	flush chan struct{}
}

// writeBehind mirrors in-memory mutations to storage on a single goroutine.
// Jobs run in enqueue order, so storage never sees an older state after a newer one.
// Failures are logged and dropped.
type writeBehind struct {
	name string
	jobs chan persistJob
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newWriteBehind(name string) *writeBehind {
	w := &writeBehind{
		name: name,
		jobs: make(chan persistJob, config.PersistQueueSize),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *writeBehind) loop() {
	defer close(w.done)
	for job := range w.jobs {
		if job.flush != nil {
			close(job.flush)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), config.PersistTimeout)
		if err := job.run(ctx); err != nil {
			slog.Warn("failed to persist", "store", w.name, "op", job.op, "error", err)
		}
		cancel()
	}
}

// enqueue schedules fn. Callers hold their store lock so the queue order
// matches the mutation order.
func (w *writeBehind) enqueue(op string, fn persistFunc) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		slog.Debug("persist queue closed, dropping write", "store", w.name, "op", op)
		return
	}
	w.jobs <- persistJob{op: op, run: fn}
}

// Flush waits until every job enqueued before the call has run.
func (w *writeBehind) Flush(ctx context.Context) error {
	marker := make(chan struct{})
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return nil
	}
	w.jobs <- persistJob{flush: marker}
	w.mu.RUnlock()

	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains pending jobs and stops the worker.
func (w *writeBehind) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()
	<-w.done
}
