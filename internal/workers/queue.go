// Package workers provides a small bounded task queue used by the
// Scheduler's FLATTENING-phase concurrent position-close fan-out. Adapted
// down from the teacher's internal/workers/pool.go, which sized itself for
// a 1M+ ticks/second crypto tick feed (100K-entry queues, 4x-CPU worker
// counts); this control loop closes at most a handful of open positions at
// end of day, so the pool is sized in the single digits and tasks run to
// completion rather than through an unbounded queue. The per-cycle
// per-symbol pipeline fan-out is a distinct concern, handled in
// internal/scheduler on top of sourcegraph/conc/pool.
package workers

import (
	"context"
	"sync"
)

// Task is a unit of work submitted to a Queue.
type Task func(ctx context.Context) error

// Queue runs submitted tasks across a bounded number of goroutines,
// collecting the first error from each task without cancelling siblings.
type Queue struct {
	size int
}

// NewQueue constructs a Queue bounded to size concurrent tasks. size is
// clamped to at least 1.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{size: size}
}

// Run executes every task in tasks with at most Queue.size running
// concurrently, and returns the results in the same order as tasks.
func (q *Queue) Run(ctx context.Context, tasks []Task) []error {
	results := make([]error, len(tasks))
	sem := make(chan struct{}, q.size)
	var wg sync.WaitGroup

	for i, t := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, t Task) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = t(ctx)
		}(i, t)
	}
	wg.Wait()
	return results
}

// First runs tasks concurrently and returns the first successful result's
// index, or -1 if every task failed. The tasks' context is cancelled as
// soon as one succeeds, but First returns only after every task returns.
func First(ctx context.Context, tasks []Task) (int, []error) {
	errs := make([]error, len(tasks))
	type outcome struct {
		idx int
		err error
	}
	results := make(chan outcome, len(tasks))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i, t := range tasks {
		go func(i int, t Task) {
			results <- outcome{idx: i, err: t(runCtx)}
		}(i, t)
	}

	remaining := len(tasks)
	winner := -1
	for remaining > 0 {
		o := <-results
		errs[o.idx] = o.err
		remaining--
		if o.err == nil && winner == -1 {
			winner = o.idx
			cancel()
		}
	}
	return winner, errs
}
