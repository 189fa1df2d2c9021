package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"analysis-engine/internal/pipeline/errors"
)

// Status of an execution
type Status string

const (
	StatusRunning    Status = "running"
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// RejectSummary tells how many rows a capture-and-continue node rejected and
// where they were written
type RejectSummary struct {
	NodeID   string `json:"node_id"`
	Count    int64  `json:"count"`
	Location string `json:"location"`
}

// Execution is the handle of a running or finished job execution. Results
// are recorded as analyzers finish and stay readable after failures.
type Execution struct {
	id     string
	job    *Job
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.RWMutex
	status     Status
	results    map[string]Result
	errs       []error
	rejects    map[string]*RejectSummary
	startedAt  time.Time
	finishedAt time.Time
	cancelled  bool
	// dispatched is set once every table has finalized its analyzers
	dispatched bool
}

func newExecution(id string, job *Job, cancel context.CancelFunc) *Execution {
	return &Execution{
		id:        id,
		job:       job,
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    StatusRunning,
		results:   make(map[string]Result),
		rejects:   make(map[string]*RejectSummary),
		startedAt: time.Now(),
	}
}

// ID returns the execution ID
func (e *Execution) ID() string { return e.id }

// Job returns the executed job
func (e *Execution) Job() *Job { return e.job }

// Done is closed when the execution has finished
func (e *Execution) Done() <-chan struct{} { return e.done }

// IsDone reports whether the execution has finished
func (e *Execution) IsDone() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Await blocks until the execution finishes or ctx ends
func (e *Execution) Await(ctx context.Context) error {
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks for at most timeout and reports whether the execution
// finished. Timing out does not cancel the execution.
func (e *Execution) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.done:
		return true
	case <-timer.C:
		return false
	}
}

// Cancel stops dispatching new rows. Rows already handed to workers drain,
// and results computed so far stay available. A cancel that arrives after
// every table has finished is ignored.
func (e *Execution) Cancel() {
	e.mu.Lock()
	if e.dispatched || e.status != StatusRunning {
		e.mu.Unlock()
		return
	}
	e.cancelled = true
	e.mu.Unlock()
	e.cancel()
}

// IsSuccessful waits for the execution and reports whether no error was
// recorded
func (e *Execution) IsSuccessful() bool {
	<-e.done
	return e.Status() == StatusSuccessful
}

// Status returns the current status
func (e *Execution) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Results returns the analyzer results recorded so far, by node ID
func (e *Execution) Results() map[string]Result {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]Result, len(e.results))
	for id, r := range e.results {
		out[id] = r
	}
	return out
}

// Result returns one analyzer's result
func (e *Execution) Result(nodeID string) (Result, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.results[nodeID]
	return r, ok
}

// Errors returns the errors recorded so far in detection order
func (e *Execution) Errors() []error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]error(nil), e.errs...)
}

// Rejects returns the reject summaries of capture-and-continue nodes that
// rejected at least one row, sorted by node ID
func (e *Execution) Rejects() []RejectSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]RejectSummary, 0, len(e.rejects))
	for _, r := range e.rejects {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// RejectCount returns the number of rows rejected by all nodes
func (e *Execution) RejectCount() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var total int64
	for _, r := range e.rejects {
		total += r.Count
	}
	return total
}

// StartedAt returns when the execution started
func (e *Execution) StartedAt() time.Time { return e.startedAt }

// Duration returns the running time so far, or the total once finished
func (e *Execution) Duration() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.finishedAt.IsZero() {
		return time.Since(e.startedAt)
	}
	return e.finishedAt.Sub(e.startedAt)
}

// markInterrupted flags an execution whose context ended without any
// recorded error, so it does not settle as successful
func (e *Execution) markInterrupted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) == 0 {
		e.cancelled = true
	}
}

// markDispatched records that all rows went through and every analyzer
// has its result
func (e *Execution) markDispatched() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatched = true
}

func (e *Execution) recordResult(nodeID string, r Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[nodeID] = r
}

func (e *Execution) recordError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

func (e *Execution) recordReject(nodeID, location string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.rejects[nodeID]
	if !ok {
		r = &RejectSummary{NodeID: nodeID, Location: location}
		e.rejects[nodeID] = r
	}
	r.Count++
}

// settle freezes the status once all work is over
func (e *Execution) settle() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.cancelled:
		e.status = StatusCancelled
		e.errs = append(e.errs, errors.ErrExecutionCancelled)
	case len(e.errs) > 0:
		e.status = StatusFailed
	default:
		e.status = StatusSuccessful
	}
	e.finishedAt = time.Now()
	return e.status
}

// release wakes everything waiting on the execution
func (e *Execution) release() {
	close(e.done)
}
