// Package listeners provides execution observers: structured logging and
// Prometheus metrics
package listeners

import (
	"sync"

	"analysis-engine/internal/common/logging"
	"analysis-engine/internal/pipeline/core"
)

// Logging writes execution events to a logger
type Logging struct {
	core.NopListener
	logger logging.Logger

	// expected rows per execution and table, for progress percentages
	expected sync.Map
}

// NewLogging creates a logging listener
func NewLogging(logger logging.Logger) *Logging {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Logging{logger: logger}
}

func (l *Logging) with(exec *core.Execution) logging.Logger {
	return l.logger.WithFields(
		logging.String("job_id", exec.Job().ID()),
		logging.String("execution_id", exec.ID()))
}

func (l *Logging) JobBegin(exec *core.Execution) {
	l.with(exec).Info("Job started",
		logging.String("job_name", exec.Job().Name()),
		logging.Int("tables", len(exec.Job().Tables())),
		logging.Int("nodes", len(exec.Job().Nodes())))
}

func (l *Logging) JobSuccess(exec *core.Execution) {
	l.with(exec).Info("Job finished",
		logging.Duration("duration", exec.Duration()),
		logging.Int64("rejected_rows", exec.RejectCount()))
	l.forget(exec)
}

func (l *Logging) JobFailed(exec *core.Execution, errs []error) {
	var first error
	if len(errs) > 0 {
		first = errs[0]
	}
	l.with(exec).Error("Job failed", first,
		logging.String("status", string(exec.Status())),
		logging.Int("errors", len(errs)),
		logging.Duration("duration", exec.Duration()))
	l.forget(exec)
}

func (l *Logging) RowProcessingBegin(exec *core.Execution, table string, expectedRows int64) {
	l.expected.Store(exec.ID()+"\x00"+table, expectedRows)
	fields := []logging.Field{logging.String("table", table)}
	if expectedRows != core.UnknownRowCount {
		fields = append(fields, logging.Int64("expected_rows", expectedRows))
	}
	l.with(exec).Info("Processing table", fields...)
}

func (l *Logging) RowProcessingProgress(exec *core.Execution, table string, processedRows int64) {
	fields := []logging.Field{
		logging.String("table", table),
		logging.Int64("processed_rows", processedRows),
	}
	if v, ok := l.expected.Load(exec.ID() + "\x00" + table); ok {
		if expected := v.(int64); expected > 0 {
			fields = append(fields, logging.Int64("percent", processedRows*100/expected))
		}
	}
	l.with(exec).Info("Table progress", fields...)
}

func (l *Logging) RowProcessingSuccess(exec *core.Execution, table string, processedRows int64) {
	l.with(exec).Info("Table processed",
		logging.String("table", table),
		logging.Int64("processed_rows", processedRows))
}

func (l *Logging) NodeSuccess(exec *core.Execution, node *core.Node, _ core.Result) {
	l.with(exec).Debug("Node finished",
		logging.String("node_id", node.ID()),
		logging.String("component", node.Component().Type()))
}

func (l *Logging) NodeError(exec *core.Execution, node *core.Node, row *core.Row, err error) {
	fields := []logging.Field{
		logging.String("node_id", node.ID()),
		logging.String("component", node.Component().Type()),
		logging.String("policy", string(node.Policy())),
	}
	if row != nil {
		fields = append(fields, logging.String("table", row.Table()), logging.Int64("row_id", row.ID()))
	}
	if node.Policy() == core.PolicyCapture {
		l.with(exec).Warn("Row rejected", append(fields, logging.Err(err))...)
		return
	}
	l.with(exec).Error("Node failed", err, fields...)
}

func (l *Logging) ErrorUnknown(exec *core.Execution, err error) {
	l.with(exec).Error("Execution error", err)
}

func (l *Logging) forget(exec *core.Execution) {
	prefix := exec.ID() + "\x00"
	l.expected.Range(func(k, _ interface{}) bool {
		if key := k.(string); len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			l.expected.Delete(k)
		}
		return true
	})
}
