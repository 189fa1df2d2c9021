package core

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"analysis-engine/internal/common/logging"
	"analysis-engine/internal/pipeline/errors"
)

// dispatch streams the rows of one table into the scheduler. It returns an
// *errors.UnknownError when the data source fails; cancellation is not an
// error.
func (r *run) dispatch(t *tableRun) error {
	plan := t.plan
	source := r.job.source

	expected, err := source.ExpectedRows(r.ctx, plan.Name)
	if err != nil {
		r.logger.Warn("Could not determine expected row count",
			logging.String("table", plan.Name), logging.Err(err))
		expected = UnknownRowCount
	}
	r.listener.RowProcessingBegin(r.exec, plan.Name, expected)

	it, err := source.Open(r.ctx, plan.Name, plan.Columns)
	if err != nil {
		return errors.NewUnknownError(fmt.Sprintf("opening table '%s' of data source '%s'", plan.Name, source.Name()), err)
	}
	defer it.Close()

	keys := make([]string, len(plan.Columns))
	for i, c := range plan.Columns {
		keys[i] = QualifiedColumn(plan.Name, c)
	}

	// Progress goes out every ProgressEvery processed rows or
	// ProgressInterval, whichever comes first
	progress := &rate.Sometimes{
		Every:    r.env.Settings.ProgressEvery,
		Interval: r.env.Settings.ProgressInterval,
	}
	size := len(r.job.nodes)

	var rowID int64
	for it.Next(r.ctx) {
		values := it.Values()
		data := make(map[string]interface{}, len(keys))
		for i, k := range keys {
			if i < len(values) {
				data[k] = values[i]
			}
		}
		rowID++
		tr := newTraversal(NewRow(plan.Name, rowID, data), plan.Nodes, size)

		t.inflight.Add(1)
		err := r.scheduler.Submit(r.ctx, func() {
			defer t.inflight.Done()
			if !r.process(t, tr) {
				return
			}
			n := t.processed.Add(1)
			progress.Do(func() {
				r.listener.RowProcessingProgress(r.exec, plan.Name, n)
			})
		})
		if err != nil {
			t.inflight.Done()
			return nil
		}
	}

	if err := it.Err(); err != nil && r.ctx.Err() == nil {
		return errors.NewUnknownError(fmt.Sprintf("reading table '%s' of data source '%s'", plan.Name, source.Name()), err)
	}
	return nil
}

type fanOutEmission struct {
	node      *Node
	emissions [][]interface{}
}

// process walks one row through its plan. It is the only place where
// components see rows. It reports false when the row was dropped unseen.
func (r *run) process(t *tableRun, tr *traversal) bool {
	// Rows queued before a cancel are dropped, not processed
	if r.ctx.Err() != nil {
		return false
	}

	var fanned []fanOutEmission
	for _, n := range tr.plan {
		if tr.status[n.index] != statusPending {
			continue
		}
		if !tr.eligible(n) {
			tr.status[n.index] = statusSkipped
			continue
		}
		n.lifecycle.MarkRunning()

		in := Input{Row: tr.row, Columns: n.inputs, Values: tr.row.Select(n.inputs)}

		switch n.kind {
		case KindFilter:
			category, err := r.categorize(n, in)
			if err != nil {
				tr.status[n.index] = statusSkipped
				if !r.rowFailed(t, n, tr.row, err) {
					return true
				}
				continue
			}
			tr.recordOutcome(n, category)

		case KindTransformer:
			emissions, err := r.transform(n, in)
			if err != nil {
				tr.status[n.index] = statusSkipped
				if !r.rowFailed(t, n, tr.row, err) {
					return true
				}
				continue
			}
			tr.status[n.index] = statusExecuted
			if n.IsFanOut() {
				tr.deferDescendants(n)
				fanned = append(fanned, fanOutEmission{node: n, emissions: emissions})
				continue
			}
			tr.row = tr.row.Derive(zipColumns(n.outputs, emissions[0]))

		case KindAnalyzer:
			err := guard(func() error { return n.analyzer.Run(r.ctx, in, tr.row.Count()) })
			if err != nil {
				tr.status[n.index] = statusSkipped
				if !r.rowFailed(t, n, tr.row, err) {
					return true
				}
				continue
			}
			tr.status[n.index] = statusExecuted
		}
	}

	// Each derived row continues as new work on the pool
	for _, f := range fanned {
		for _, values := range f.emissions {
			child := tr.continuation(f.node, tr.row.Derive(zipColumns(f.node.outputs, values)))
			t.inflight.Add(1)
			r.scheduler.Requeue(func() {
				defer t.inflight.Done()
				r.process(t, child)
			})
		}
	}
	return true
}

func (r *run) categorize(n *Node, in Input) (string, error) {
	var category string
	err := guard(func() error {
		var err error
		category, err = n.filter.Categorize(r.ctx, in)
		return err
	})
	if err != nil {
		return "", err
	}
	for _, c := range n.filter.Categories() {
		if c == category {
			return category, nil
		}
	}
	return "", fmt.Errorf("filter returned undeclared category '%s'", category)
}

func (r *run) transform(n *Node, in Input) ([][]interface{}, error) {
	var emissions [][]interface{}
	width := len(n.outputs)

	err := guard(func() error {
		return n.transformer.Transform(r.ctx, in, func(values ...interface{}) {
			emissions = append(emissions, append([]interface{}(nil), values...))
		})
	})
	if err != nil {
		return nil, err
	}

	if !n.IsFanOut() && len(emissions) != 1 {
		return nil, fmt.Errorf("transformer emitted %d value sets, expected exactly 1", len(emissions))
	}
	for _, values := range emissions {
		if len(values) != width {
			return nil, fmt.Errorf("transformer emitted %d values for %d output columns", len(values), width)
		}
	}
	return emissions, nil
}

// rowFailed applies n's error policy to a failed per-row call and reports
// whether processing of the row may go on
func (r *run) rowFailed(t *tableRun, n *Node, row *Row, cause error) bool {
	rowErr := errors.NewRowError(n.id, t.plan.Name, row.ID(), row.Snapshot(), cause)
	r.listener.NodeError(r.exec, n, row, rowErr)

	if n.policy == PolicyCapture {
		rejected := RejectedRow{
			ExecutionID: r.exec.id,
			NodeID:      n.id,
			Table:       t.plan.Name,
			RowID:       row.ID(),
			Values:      rowErr.Values,
			Error:       cause.Error(),
			RejectedAt:  time.Now(),
		}
		// Captures still land while the job drains after a cancel
		err := r.env.Rejects.Capture(context.WithoutCancel(r.ctx), rejected)
		if err == nil {
			r.exec.recordReject(n.id, r.env.Rejects.Location())
			return true
		}
		r.logger.Error("Failed to capture rejected row", err,
			logging.String("node_id", n.id), logging.Int64("row_id", row.ID()))
		rowErr = errors.NewRowError(n.id, t.plan.Name, row.ID(), rowErr.Values,
			fmt.Errorf("%w (capturing the row failed: %v)", cause, err))
	}

	r.logger.Error("Row processing failed, aborting job", rowErr, logging.String("node_id", n.id))
	r.exec.recordError(rowErr)
	r.cancel()
	return false
}

func zipColumns(columns []string, values []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(columns))
	for i, c := range columns {
		if i < len(values) {
			out[c] = values[i]
		}
	}
	return out
}

// guard turns a panic inside a component into an error
func guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("component panicked: %v", p)
		}
	}()
	return fn()
}

func asConfigurationError(err error) (*errors.ConfigurationError, bool) {
	var cfgErr *errors.ConfigurationError
	ok := stderrors.As(err, &cfgErr)
	return cfgErr, ok
}

func asError(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
