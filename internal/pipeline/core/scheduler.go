package core

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Scheduler runs row work on a fixed pool of workers.
//
// Rows enter through Submit, which blocks while the bounded queue is full so
// a dispatcher cannot run ahead of the pool. Continuations produced by
// fan-out enter through Requeue, which never blocks: a worker that blocked on
// its own queue would deadlock the pool. Workers drain continuations before
// taking new rows, which keeps the continuation backlog bounded by the
// fan-out of rows already admitted.
type Scheduler struct {
	workers int
	tasks   chan func()
	wake    chan struct{}
	quit    chan struct{}

	mu      sync.Mutex
	pending []func()

	group    *errgroup.Group
	stopOnce sync.Once
}

// NewScheduler creates a pool of workers with room for buffer queued rows
func NewScheduler(workers, buffer int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	return &Scheduler{
		workers: workers,
		tasks:   make(chan func(), buffer),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		group:   &errgroup.Group{},
	}
}

// Workers returns the pool size
func (s *Scheduler) Workers() int { return s.workers }

// Start launches the workers
func (s *Scheduler) Start() {
	for i := 0; i < s.workers; i++ {
		s.group.Go(s.work)
	}
}

// Submit queues a row task, waiting for room. It returns ctx's error when
// ctx ends first; the task is then not run.
func (s *Scheduler) Submit(ctx context.Context, task func()) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case s.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Requeue queues a continuation without blocking
func (s *Scheduler) Requeue(task func()) {
	s.mu.Lock()
	s.pending = append(s.pending, task)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop ends the workers once they are idle. Callers must have waited for
// their own tasks first.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		_ = s.group.Wait()
	})
}

func (s *Scheduler) work() error {
	for {
		if task, ok := s.popContinuation(); ok {
			task()
			continue
		}

		select {
		case task := <-s.tasks:
			task()
		case <-s.wake:
		case <-s.quit:
			return nil
		}
	}
}

func (s *Scheduler) popContinuation() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil, false
	}
	task := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	return task, true
}
