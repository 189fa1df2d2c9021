package core

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Outcome is a filter's category for a row
type Outcome struct {
	FilterID string `json:"filter"`
	Category string `json:"category"`
}

func (o Outcome) String() string {
	return fmt.Sprintf("%s=%s", o.FilterID, o.Category)
}

// Requirement gates a node: it passes when any of its outcomes matches the
// row. An empty requirement always passes.
type Requirement []Outcome

func (r Requirement) String() string {
	parts := make([]string, len(r))
	for i, o := range r {
		parts[i] = o.String()
	}
	return strings.Join(parts, " OR ")
}

// Require builds a single-outcome requirement
func Require(filterID, category string) Requirement {
	return Requirement{{FilterID: filterID, Category: category}}
}

// NodeDefinition declares one node of a job.
//
// Inputs reference source columns as "table.column", transformer outputs by
// name, and a filter's outcome by the filter ID.
type NodeDefinition struct {
	ID          string
	Component   Component
	Inputs      []string
	Requirement Requirement
}

// JobSpec is the input of BuildJob
type JobSpec struct {
	ID    string
	Name  string
	Nodes []NodeDefinition
}

type requiredOutcome struct {
	filter   *Node
	category string
}

// Node is a validated component node. Nodes are created by BuildJob and
// never change afterwards, apart from their lifecycle state.
type Node struct {
	index       int
	id          string
	kind        Kind
	component   Component
	filter      Filter
	transformer Transformer
	analyzer    Analyzer

	inputs      []string
	outputs     []string
	requirement Requirement
	requires    []requiredOutcome
	producers   []*Node
	table       string
	policy      ErrorPolicy

	// outcomeColumn is set on filters whose category is read as a column
	outcomeColumn bool
	// fanOut holds, for fan-out transformers, which node indexes descend
	// from this node
	fanOut []bool

	lifecycle *Lifecycle
}

func (n *Node) ID() string               { return n.id }
func (n *Node) Kind() Kind               { return n.kind }
func (n *Node) Component() Component     { return n.component }
func (n *Node) Inputs() []string         { return n.inputs }
func (n *Node) Outputs() []string        { return n.outputs }
func (n *Node) Requirement() Requirement { return n.requirement }
func (n *Node) Table() string            { return n.table }
func (n *Node) Policy() ErrorPolicy      { return n.policy }
func (n *Node) State() State             { return n.lifecycle.State() }
func (n *Node) IsFanOut() bool           { return n.fanOut != nil }

func (n *Node) String() string {
	return fmt.Sprintf("%s '%s' (%s)", n.kind, n.id, n.component.Type())
}

// TablePlan is the part of a job fed by one source table
type TablePlan struct {
	Name string
	// Columns are the physical source columns read from the table
	Columns []string
	// Nodes in topological order
	Nodes []*Node
}

// Analyzers returns the analyzer nodes of the plan
func (p *TablePlan) Analyzers() []*Node {
	var out []*Node
	for _, n := range p.Nodes {
		if n.kind == KindAnalyzer {
			out = append(out, n)
		}
	}
	return out
}

// Job is an immutable validated graph of nodes bound to a data source
type Job struct {
	id     string
	name   string
	source DataSource
	nodes  []*Node
	byID   map[string]*Node
	tables []*TablePlan

	// components hold per-run state, so a job runs once
	started atomic.Bool
}

func (j *Job) ID() string           { return j.id }
func (j *Job) Name() string         { return j.name }
func (j *Job) Source() DataSource   { return j.source }
func (j *Job) Tables() []*TablePlan { return j.tables }

// Nodes returns all nodes in topological order
func (j *Job) Nodes() []*Node { return j.nodes }

// Node returns a node by ID
func (j *Job) Node(id string) (*Node, bool) {
	n, ok := j.byID[id]
	return n, ok
}
