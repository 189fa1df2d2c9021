package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"analysis-engine/internal/common/logging"
	"analysis-engine/internal/pipeline/errors"
)

// Executor runs jobs on the worker pool described by its environment
type Executor struct {
	env *Environment
}

// NewExecutor creates an executor; missing environment settings get defaults
func NewExecutor(env *Environment) *Executor {
	if env == nil {
		env = NewEnvironment()
	}
	env.normalize()
	return &Executor{env: env}
}

// Environment returns the executor's environment
func (x *Executor) Environment() *Environment { return x.env }

// Execute starts job in the background and returns its handle. ctx bounds
// the whole execution; cancelling it has the same effect as Cancel on the
// handle. A job can be executed only once.
func (x *Executor) Execute(ctx context.Context, job *Job, listeners ...Listener) (*Execution, error) {
	if job == nil {
		return nil, fmt.Errorf("job is nil")
	}
	if !job.started.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("job '%s' has already been executed", job.id)
	}

	runCtx, cancel := context.WithCancel(ctx)
	exec := newExecution(uuid.NewString(), job, cancel)

	r := &run{
		env:       x.env,
		job:       job,
		exec:      exec,
		ctx:       logging.ContextWithExecution(runCtx, job.id, exec.id),
		cancel:    cancel,
		listener:  NewMultiListener(x.env.Logger, listeners...),
		scheduler: NewScheduler(x.env.Settings.Workers, x.env.Settings.BufferSize),
	}
	r.logger = x.env.Logger.WithContext(r.ctx)
	r.tablesLeft.Store(int32(len(job.tables)))

	go r.execute()
	return exec, nil
}

// ExecuteAndWait runs job and blocks until it finishes
func (x *Executor) ExecuteAndWait(ctx context.Context, job *Job, listeners ...Listener) (*Execution, error) {
	exec, err := x.Execute(ctx, job, listeners...)
	if err != nil {
		return nil, err
	}
	<-exec.Done()
	return exec, nil
}

// run is the state of one execution
type run struct {
	env       *Environment
	job       *Job
	exec      *Execution
	ctx       context.Context
	cancel    context.CancelFunc
	listener  Listener
	scheduler *Scheduler
	logger    logging.Logger
	// tablesLeft counts tables that have not finalized yet
	tablesLeft atomic.Int32
}

func (r *run) execute() {
	defer r.cancel()
	start := time.Now()

	r.logger.Info("Job execution started",
		logging.Int("nodes", len(r.job.nodes)),
		logging.Int("tables", len(r.job.tables)),
		logging.Int("workers", r.scheduler.Workers()))
	r.listener.JobBegin(r.exec)

	if r.validate() && r.initialize() {
		r.scheduler.Start()

		// One independent dispatch per source table
		var g errgroup.Group
		for _, plan := range r.job.tables {
			plan := plan
			g.Go(func() error {
				r.runTable(plan)
				return nil
			})
		}
		_ = g.Wait()

		r.scheduler.Stop()
	}
	r.closeAll()

	status := r.exec.settle()
	errs := r.exec.Errors()
	if status == StatusSuccessful {
		r.logger.Info("Job execution succeeded",
			logging.Duration("duration", time.Since(start)),
			logging.Int64("rejected_rows", r.exec.RejectCount()))
		r.listener.JobSuccess(r.exec)
	} else {
		r.logger.Warn("Job execution did not succeed",
			logging.String("status", string(status)),
			logging.Int("errors", len(errs)),
			logging.Duration("duration", time.Since(start)))
		r.listener.JobFailed(r.exec, errs)
	}
	r.exec.release()
}

// validate runs every component's configuration check and reports all
// failures before any row is read
func (r *run) validate() bool {
	ok := true
	for _, n := range r.job.nodes {
		err := guard(n.component.Validate)
		if err == nil {
			continue
		}
		ok = false

		cfgErr, isCfg := asConfigurationError(err)
		if !isCfg {
			cfgErr = errors.NewConfigurationError(n.id, n.component.Type(), "invalid configuration", err)
		}
		r.exec.recordError(cfgErr)
		r.listener.NodeError(r.exec, n, nil, cfgErr)
	}
	return ok
}

func (r *run) initialize() bool {
	for _, n := range r.job.nodes {
		if err := n.lifecycle.Initialize(r.ctx); err != nil {
			cfgErr := errors.NewConfigurationError(n.id, n.component.Type(), "initialization failed", err)
			r.exec.recordError(cfgErr)
			r.listener.NodeError(r.exec, n, nil, cfgErr)
			return false
		}
	}
	return true
}

// runTable dispatches one table, waits for its rows to drain, then
// computes the results of its analyzers and closes its nodes
func (r *run) runTable(plan *TablePlan) {
	t := &tableRun{plan: plan}

	err := r.dispatch(t)
	// The one barrier: analyzer results wait for every row of the table
	t.inflight.Wait()

	if err != nil {
		r.unknownError(err)
	}

	if err == nil && r.ctx.Err() != nil {
		r.exec.markInterrupted()
	}

	if err == nil && r.ctx.Err() == nil {
		r.listener.RowProcessingSuccess(r.exec, plan.Name, t.processed.Load())
		r.logger.Info("Table processed",
			logging.String("table", plan.Name),
			logging.Int64("rows", t.processed.Load()))
		r.finalize(plan)
		if r.tablesLeft.Add(-1) == 0 {
			r.exec.markDispatched()
		}
	}

	for i := len(plan.Nodes) - 1; i >= 0; i-- {
		r.closeNode(plan.Nodes[i])
	}
}

// finalize records the terminal result of each analyzer of plan
func (r *run) finalize(plan *TablePlan) {
	for _, n := range plan.Nodes {
		if n.kind != KindAnalyzer {
			r.listener.NodeSuccess(r.exec, n, nil)
			continue
		}

		var result Result
		err := guard(func() error {
			var err error
			result, err = n.analyzer.Result()
			return err
		})
		if err != nil {
			err = fmt.Errorf("analyzer '%s' failed to compute its result: %w", n.id, err)
			r.exec.recordError(err)
			r.listener.NodeError(r.exec, n, nil, err)
			continue
		}

		r.exec.recordResult(n.id, result)
		r.listener.NodeSuccess(r.exec, n, result)
	}
}

func (r *run) closeNode(n *Node) {
	if err := n.lifecycle.Close(); err != nil {
		err = fmt.Errorf("closing node '%s': %w", n.id, err)
		r.logger.Error("Failed to close node", err, logging.String("node_id", n.id))
		r.exec.recordError(err)
		r.listener.NodeError(r.exec, n, nil, err)
	}
}

func (r *run) closeAll() {
	for i := len(r.job.nodes) - 1; i >= 0; i-- {
		r.closeNode(r.job.nodes[i])
	}
}

// unknownError records a failure outside any node and stops the job
func (r *run) unknownError(err error) {
	var unknown *errors.UnknownError
	if !asError(err, &unknown) {
		unknown = errors.NewUnknownError("execution failed", err)
	}
	r.logger.Error("Job execution failed", unknown)
	r.exec.recordError(unknown)
	r.listener.ErrorUnknown(r.exec, unknown)
	r.cancel()
}

// tableRun tracks the in-flight work of one table
type tableRun struct {
	plan     *TablePlan
	inflight sync.WaitGroup
	// processed counts source rows that went through the plan
	processed atomic.Int64
}
