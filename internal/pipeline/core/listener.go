package core

import (
	"fmt"

	"analysis-engine/internal/common/logging"
)

// Listener observes an execution. Calls are made synchronously from the
// goroutine that detects the event, possibly from several workers at once.
type Listener interface {
	JobBegin(exec *Execution)
	JobSuccess(exec *Execution)
	JobFailed(exec *Execution, errs []error)

	RowProcessingBegin(exec *Execution, table string, expectedRows int64)
	RowProcessingProgress(exec *Execution, table string, processedRows int64)
	RowProcessingSuccess(exec *Execution, table string, processedRows int64)

	NodeSuccess(exec *Execution, node *Node, result Result)
	// NodeError reports a node failure. row is nil when the failure is not
	// tied to a row.
	NodeError(exec *Execution, node *Node, row *Row, err error)

	// ErrorUnknown reports a failure outside any node
	ErrorUnknown(exec *Execution, err error)
}

// NopListener implements Listener with no-ops; embed it to override only
// some callbacks
type NopListener struct{}

func (NopListener) JobBegin(*Execution)                             {}
func (NopListener) JobSuccess(*Execution)                           {}
func (NopListener) JobFailed(*Execution, []error)                   {}
func (NopListener) RowProcessingBegin(*Execution, string, int64)    {}
func (NopListener) RowProcessingProgress(*Execution, string, int64) {}
func (NopListener) RowProcessingSuccess(*Execution, string, int64)  {}
func (NopListener) NodeSuccess(*Execution, *Node, Result)           {}
func (NopListener) NodeError(*Execution, *Node, *Row, error)        {}
func (NopListener) ErrorUnknown(*Execution, error)                  {}

// MultiListener fans callbacks out to several listeners. A panicking
// listener is logged and ignored so observers never affect the execution.
type MultiListener struct {
	listeners []Listener
	logger    logging.Logger
}

// NewMultiListener combines listeners, skipping nil ones
func NewMultiListener(logger logging.Logger, listeners ...Listener) *MultiListener {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	m := &MultiListener{logger: logger}
	for _, l := range listeners {
		if l != nil {
			m.listeners = append(m.listeners, l)
		}
	}
	return m
}

func (m *MultiListener) each(callback string, fn func(Listener)) {
	for _, l := range m.listeners {
		m.safely(callback, l, fn)
	}
}

func (m *MultiListener) safely(callback string, l Listener, fn func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("listener panicked", fmt.Errorf("%v", r),
				logging.String("callback", callback),
				logging.String("listener", fmt.Sprintf("%T", l)))
		}
	}()
	fn(l)
}

func (m *MultiListener) JobBegin(exec *Execution) {
	m.each("JobBegin", func(l Listener) { l.JobBegin(exec) })
}

func (m *MultiListener) JobSuccess(exec *Execution) {
	m.each("JobSuccess", func(l Listener) { l.JobSuccess(exec) })
}

func (m *MultiListener) JobFailed(exec *Execution, errs []error) {
	m.each("JobFailed", func(l Listener) { l.JobFailed(exec, errs) })
}

func (m *MultiListener) RowProcessingBegin(exec *Execution, table string, expectedRows int64) {
	m.each("RowProcessingBegin", func(l Listener) { l.RowProcessingBegin(exec, table, expectedRows) })
}

func (m *MultiListener) RowProcessingProgress(exec *Execution, table string, processedRows int64) {
	m.each("RowProcessingProgress", func(l Listener) { l.RowProcessingProgress(exec, table, processedRows) })
}

func (m *MultiListener) RowProcessingSuccess(exec *Execution, table string, processedRows int64) {
	m.each("RowProcessingSuccess", func(l Listener) { l.RowProcessingSuccess(exec, table, processedRows) })
}

func (m *MultiListener) NodeSuccess(exec *Execution, node *Node, result Result) {
	m.each("NodeSuccess", func(l Listener) { l.NodeSuccess(exec, node, result) })
}

func (m *MultiListener) NodeError(exec *Execution, node *Node, row *Row, err error) {
	m.each("NodeError", func(l Listener) { l.NodeError(exec, node, row, err) })
}

func (m *MultiListener) ErrorUnknown(exec *Execution, err error) {
	m.each("ErrorUnknown", func(l Listener) { l.ErrorUnknown(exec, err) })
}
