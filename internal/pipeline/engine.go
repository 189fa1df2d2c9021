// Package pipeline runs analysis jobs submitted as JSON definitions and
// keeps track of their executions
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	apperrors "analysis-engine/internal/common/errors"
	"analysis-engine/internal/common/logging"
	"analysis-engine/internal/pipeline/components"
	"analysis-engine/internal/pipeline/core"
)

// DefaultRetainedExecutions is how many finished executions an engine
// keeps for inspection
const DefaultRetainedExecutions = 100

// ErrNotStarted is returned by Submit before Start or after Stop
var ErrNotStarted = errors.New("engine is not started")

// Engine builds jobs from definitions and runs them against one data
// source. Executions outlive the request that submitted them; they stop
// when cancelled or when the engine stops.
type Engine struct {
	env       *core.Environment
	registry  *components.Registry
	executor  *core.Executor
	source    core.DataSource
	listeners []core.Listener
	logger    logging.Logger

	// Retain bounds the finished executions kept; 0 uses the default
	Retain int

	mu         sync.RWMutex
	started    bool
	ctx        context.Context
	cancel     context.CancelFunc
	executions map[string]*core.Execution
	wg         sync.WaitGroup
}

// NewEngine creates an engine for env reading from source
func NewEngine(env *core.Environment, source core.DataSource, listeners ...core.Listener) *Engine {
	if env == nil {
		env = core.NewEnvironment()
	}
	executor := core.NewExecutor(env)
	return &Engine{
		env:        env,
		registry:   components.NewRegistry(env),
		executor:   executor,
		source:     source,
		listeners:  listeners,
		logger:     env.Logger.WithFields(logging.String("component", "engine")),
		executions: make(map[string]*core.Execution),
	}
}

// Registry returns the component registry jobs are built with
func (e *Engine) Registry() *components.Registry { return e.registry }

// Environment returns the environment jobs run in
func (e *Engine) Environment() *core.Environment { return e.env }

// Started reports whether the engine accepts jobs
func (e *Engine) Started() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.started
}

// Start makes the engine accept jobs. Executions are bound to ctx.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}
	if e.source == nil {
		return apperrors.ConfigError("engine has no data source")
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.started = true
	e.logger.Info("Engine started",
		logging.String("source", e.source.Name()),
		logging.Int("workers", e.env.Settings.Workers))
	return nil
}

// Stop cancels running executions and waits for them to wind down or for
// ctx to end
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	e.cancel()
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("Engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for executions to stop: %w", ctx.Err())
	}
}

// Submit builds def and starts executing it. ctx bounds job construction
// only; the execution runs until done, cancelled or the engine stops.
func (e *Engine) Submit(ctx context.Context, def *JobDefinition) (*core.Execution, error) {
	e.mu.RLock()
	started, runCtx := e.started, e.ctx
	e.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}

	if err := def.Validate(e.env.Validator); err != nil {
		return nil, err
	}
	job, err := def.Build(ctx, e.registry, e.source)
	if err != nil {
		return nil, err
	}

	exec, err := e.executor.Execute(runCtx, job, e.listeners...)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.executions[exec.ID()] = exec
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		<-exec.Done()

		e.mu.Lock()
		e.evict()
		e.mu.Unlock()
	}()

	e.logger.Info("Job submitted",
		logging.String("job_id", def.ID),
		logging.String("execution_id", exec.ID()))
	return exec, nil
}

// SubmitJSON parses a JSON job definition and submits it
func (e *Engine) SubmitJSON(ctx context.Context, data []byte) (*core.Execution, error) {
	def, err := ParseJobDefinition(data, e.env.Validator)
	if err != nil {
		return nil, err
	}
	return e.Submit(ctx, def)
}

// Get returns an execution by ID
func (e *Engine) Get(id string) (*core.Execution, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	exec, ok := e.executions[id]
	return exec, ok
}

// Cancel requests an execution to stop
func (e *Engine) Cancel(id string) error {
	exec, ok := e.Get(id)
	if !ok {
		return apperrors.NotFoundError(fmt.Sprintf("execution %s", id))
	}
	exec.Cancel()
	return nil
}

// List returns the known executions, most recent first
func (e *Engine) List() []*core.Execution {
	e.mu.RLock()
	out := make([]*core.Execution, 0, len(e.executions))
	for _, exec := range e.executions {
		out = append(out, exec)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt().After(out[j].StartedAt())
	})
	return out
}

// evict drops the oldest finished executions beyond the retention limit.
// Running executions are never dropped. It runs each time an execution
// finishes; callers hold e.mu.
func (e *Engine) evict() {
	limit := e.Retain
	if limit <= 0 {
		limit = DefaultRetainedExecutions
	}

	var finished []*core.Execution
	for _, exec := range e.executions {
		if exec.IsDone() {
			finished = append(finished, exec)
		}
	}
	if len(finished) <= limit {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].StartedAt().Before(finished[j].StartedAt())
	})
	for _, exec := range finished[:len(finished)-limit] {
		delete(e.executions, exec.ID())
	}
}
