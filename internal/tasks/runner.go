// Package tasks runs fire-and-forget background work on a bounded queue.
// Task failures are logged, never surfaced to the code that scheduled
// them, and a submitting request is never tied to task completion.
package tasks

import (
	"context"
	"log/slog"
	"sync"
)

type task struct {
	name string
	fn   func(context.Context) error
}

// Runner executes submitted tasks sequentially on one worker goroutine.
type Runner struct {
	queue  chan task
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts a runner whose queue holds up to size pending tasks.
func New(parent context.Context, size int, log *slog.Logger) *Runner {
	ctx, cancel := context.WithCancel(parent)
	r := &Runner{
		queue:  make(chan task, size),
		log:    log.With(slog.String("component", "task-runner")),
		ctx:    ctx,
		cancel: cancel,
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *Runner) loop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case t := <-r.queue:
			r.run(t)
		}
	}
}

func (r *Runner) run(t task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("background task panicked",
				slog.String("task", t.name), slog.Any("panic", rec))
		}
	}()
	if err := t.fn(r.ctx); err != nil {
		r.log.Warn("background task failed",
			slog.String("task", t.name), slog.String("error", err.Error()))
		return
	}
	r.log.Debug("background task completed", slog.String("task", t.name))
}

// Submit enqueues a task without blocking. When the queue is full the
// task is dropped and logged; callers treat submission as best-effort.
func (r *Runner) Submit(name string, fn func(context.Context) error) bool {
	select {
	case <-r.ctx.Done():
		return false
	case r.queue <- task{name: name, fn: fn}:
		return true
	default:
		r.log.Warn("background task dropped, queue full", slog.String("task", name))
		return false
	}
}

// Close stops the worker. Pending tasks are abandoned; the in-flight
// task observes context cancellation.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}
