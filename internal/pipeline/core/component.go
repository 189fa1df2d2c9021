package core

import (
	"context"
)

// Kind is the variant of a component node
type Kind int

const (
	KindFilter Kind = iota
	KindTransformer
	KindAnalyzer
)

func (k Kind) String() string {
	switch k {
	case KindFilter:
		return "filter"
	case KindTransformer:
		return "transformer"
	case KindAnalyzer:
		return "analyzer"
	default:
		return "unknown"
	}
}

// Component is the contract shared by every node of a job.
//
// Validate is called once before any row is read and may return a
// configuration problem. Initialize is called exactly once before the first
// per-row call and Close exactly once after the last one; neither has to be
// safe for concurrent use. Per-row calls may run concurrently.
type Component interface {
	Type() string
	Validate() error
	Initialize(ctx context.Context) error
	Close() error
}

// Input is what a node sees of a row: the values of its configured input
// columns in declaration order, and the row they were read from.
type Input struct {
	Row     *Row
	Columns []string
	Values  []interface{}
}

// Value returns the i-th input value, or nil when out of range
func (in Input) Value(i int) interface{} {
	if i < 0 || i >= len(in.Values) {
		return nil
	}
	return in.Values[i]
}

// Filter categorizes each row into one of its declared categories
type Filter interface {
	Component
	Categories() []string
	Categorize(ctx context.Context, in Input) (string, error)
}

// Emitter receives one set of output values, aligned with OutputColumns
type Emitter func(values ...interface{})

// Transformer derives output columns from its inputs.
//
// When FanOut is false Transform must emit exactly one value set. When it is
// true every emission becomes a separate derived row that continues through
// the transformer's dependents on its own; emitting nothing drops the row for
// those dependents.
type Transformer interface {
	Component
	OutputColumns() []string
	FanOut() bool
	Transform(ctx context.Context, in Input, emit Emitter) error
}

// Result is the terminal value computed by an analyzer
type Result interface{}

// Analyzer accumulates state across rows and produces one result.
// count is the number of identical rows represented by the input.
type Analyzer interface {
	Component
	Run(ctx context.Context, in Input, count int) error
	Result() (Result, error)
}

// ErrorPolicy decides what a failing per-row call does to the job
type ErrorPolicy string

const (
	// PolicyAbort fails the whole execution
	PolicyAbort ErrorPolicy = "abort"
	// PolicyCapture records the row and its error to the reject sink and
	// keeps processing
	PolicyCapture ErrorPolicy = "capture"
)

// ErrorPolicyProvider is implemented by components that do not want the
// default abort policy
type ErrorPolicyProvider interface {
	ErrorPolicy() ErrorPolicy
}

// PolicyOf returns the error policy declared by c
func PolicyOf(c Component) ErrorPolicy {
	if p, ok := c.(ErrorPolicyProvider); ok && p.ErrorPolicy() == PolicyCapture {
		return PolicyCapture
	}
	return PolicyAbort
}

// KindOf returns the node variant implemented by c and false when c
// implements none or more than one of Filter, Transformer and Analyzer.
func KindOf(c Component) (Kind, bool) {
	_, isFilter := c.(Filter)
	_, isTransformer := c.(Transformer)
	_, isAnalyzer := c.(Analyzer)

	switch {
	case isFilter && !isTransformer && !isAnalyzer:
		return KindFilter, true
	case isTransformer && !isFilter && !isAnalyzer:
		return KindTransformer, true
	case isAnalyzer && !isFilter && !isTransformer:
		return KindAnalyzer, true
	default:
		return 0, false
	}
}
