package core

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/heimdalr/dag"
	"github.com/samber/lo"

	"analysis-engine/internal/pipeline/errors"
)

// graphBuilder collects faults while turning node definitions into a Job
type graphBuilder struct {
	ctx    context.Context
	source DataSource
	faults *errors.GraphError

	nodes     []*Node // definition order
	byID      map[string]*Node
	producers map[string]*Node // column -> producing node

	sourceColumns map[string]map[string]bool // table -> column set
	sourceErrors  map[string]error
	sourceInputs  map[*Node]map[string][]string // node -> table -> columns

	graph   *dag.DAG
	parents map[string][]string // accepted edges, child -> parents
	adj     map[string][]string // accepted edges, parent -> children
}

// BuildJob validates the node definitions against source and returns an
// immutable Job. Graph problems are reported together in one
// *errors.GraphError; definitions that are unusable on their own (missing
// ID or component) yield a *errors.ConfigurationError.
func BuildJob(ctx context.Context, source DataSource, spec JobSpec) (*Job, error) {
	if source == nil {
		return nil, errors.NewConfigurationError("", "", "job has no data source", nil)
	}
	if len(spec.Nodes) == 0 {
		return nil, errors.NewConfigurationError("", "", "job has no components", nil)
	}

	b := &graphBuilder{
		ctx:           ctx,
		source:        source,
		faults:        &errors.GraphError{},
		byID:          make(map[string]*Node),
		producers:     make(map[string]*Node),
		sourceColumns: make(map[string]map[string]bool),
		sourceErrors:  make(map[string]error),
		sourceInputs:  make(map[*Node]map[string][]string),
		graph:         dag.NewDAG(),
		parents:       make(map[string][]string),
		adj:           make(map[string][]string),
	}

	if err := b.addNodes(spec.Nodes); err != nil {
		return nil, err
	}
	b.registerOutputs()
	b.resolveInputs()
	b.resolveRequirements()
	b.addEdges()

	order := b.topologicalOrder()
	for i, n := range order {
		n.index = i
	}

	tables := b.assignTables(order)
	b.markFanOut(order)

	if err := b.faults.OrNil(); err != nil {
		return nil, err
	}

	job := &Job{
		id:     spec.ID,
		name:   spec.Name,
		source: source,
		nodes:  order,
		byID:   b.byID,
		tables: b.tablePlans(order, tables),
	}
	if job.name == "" {
		job.name = job.id
	}
	return job, nil
}

func (b *graphBuilder) addNodes(defs []NodeDefinition) error {
	for i, def := range defs {
		if strings.TrimSpace(def.ID) == "" {
			return errors.NewConfigurationError("", "", fmt.Sprintf("node #%d has no id", i), nil)
		}
		if def.Component == nil {
			return errors.NewConfigurationError(def.ID, "", "node has no component", nil)
		}
		kind, ok := KindOf(def.Component)
		if !ok {
			return errors.NewConfigurationError(def.ID, def.Component.Type(),
				"component must be exactly one of filter, transformer or analyzer", nil)
		}
		if _, exists := b.byID[def.ID]; exists {
			b.faults.Add(errors.GraphFault{
				Kind:    errors.FaultDuplicateNode,
				NodeID:  def.ID,
				Message: "node id is declared more than once",
			})
			continue
		}

		n := &Node{
			id:          def.ID,
			kind:        kind,
			component:   def.Component,
			inputs:      append([]string(nil), def.Inputs...),
			requirement: append(Requirement(nil), def.Requirement...),
			policy:      PolicyOf(def.Component),
			lifecycle:   NewLifecycle(def.Component),
		}
		switch kind {
		case KindFilter:
			n.filter = def.Component.(Filter)
		case KindTransformer:
			n.transformer = def.Component.(Transformer)
			n.outputs = append([]string(nil), n.transformer.OutputColumns()...)
		case KindAnalyzer:
			n.analyzer = def.Component.(Analyzer)
		}

		b.nodes = append(b.nodes, n)
		b.byID[n.id] = n
	}
	return nil
}

// registerOutputs records which node produces each derived column. A filter
// produces a column named after itself holding its category.
func (b *graphBuilder) registerOutputs() {
	claim := func(column string, n *Node) {
		if other, taken := b.producers[column]; taken {
			b.faults.Add(errors.GraphFault{
				Kind:    errors.FaultDuplicateColumn,
				NodeID:  n.id,
				Column:  column,
				Message: fmt.Sprintf("column '%s' is already produced by node '%s'", column, other.id),
			})
			return
		}
		b.producers[column] = n
	}

	for _, n := range b.nodes {
		switch n.kind {
		case KindFilter:
			claim(n.id, n)
		case KindTransformer:
			if len(n.outputs) == 0 {
				b.faults.Add(errors.GraphFault{
					Kind:    errors.FaultDuplicateColumn,
					NodeID:  n.id,
					Message: "transformer declares no output columns",
				})
			}
			for _, col := range n.outputs {
				if strings.Contains(col, ".") || strings.TrimSpace(col) == "" {
					b.faults.Add(errors.GraphFault{
						Kind:    errors.FaultDuplicateColumn,
						NodeID:  n.id,
						Column:  col,
						Message: fmt.Sprintf("output column '%s' must be a non-empty name without '.'", col),
					})
					continue
				}
				claim(col, n)
			}
		}
	}
}

func (b *graphBuilder) hasSourceColumn(table, column string) (bool, error) {
	if err, failed := b.sourceErrors[table]; failed {
		return false, err
	}
	cols, loaded := b.sourceColumns[table]
	if !loaded {
		names, err := b.source.Columns(b.ctx, table)
		if err != nil {
			b.sourceErrors[table] = err
			return false, err
		}
		cols = make(map[string]bool, len(names))
		for _, name := range names {
			cols[name] = true
		}
		b.sourceColumns[table] = cols
	}
	return cols[column], nil
}

func (b *graphBuilder) resolveInputs() {
	for _, n := range b.nodes {
		for _, input := range n.inputs {
			if p, ok := b.producers[input]; ok {
				if p == n {
					b.faults.Add(errors.GraphFault{
						Kind:    errors.FaultCycle,
						NodeID:  n.id,
						Column:  input,
						Path:    []string{n.id, n.id},
						Message: fmt.Sprintf("node consumes its own output '%s'", input),
					})
					continue
				}
				if p.kind == KindFilter {
					p.outcomeColumn = true
				}
				if !lo.Contains(n.producers, p) {
					n.producers = append(n.producers, p)
				}
				continue
			}

			table, column, ok := SourceColumn(input)
			if ok {
				found, err := b.hasSourceColumn(table, column)
				if found {
					if b.sourceInputs[n] == nil {
						b.sourceInputs[n] = make(map[string][]string)
					}
					b.sourceInputs[n][table] = append(b.sourceInputs[n][table], column)
					continue
				}
				if err != nil {
					b.faults.Add(errors.GraphFault{
						Kind:    errors.FaultUnresolvedColumn,
						NodeID:  n.id,
						Column:  input,
						Message: fmt.Sprintf("column '%s' cannot be resolved: %v", input, err),
					})
					continue
				}
			}

			b.faults.Add(errors.GraphFault{
				Kind:    errors.FaultUnresolvedColumn,
				NodeID:  n.id,
				Column:  input,
				Message: fmt.Sprintf("column '%s' is not produced by the source or by any node", input),
			})
		}
	}
}

func (b *graphBuilder) resolveRequirements() {
	for _, n := range b.nodes {
		for _, o := range n.requirement {
			f, ok := b.byID[o.FilterID]
			switch {
			case !ok:
				b.invalidRequirement(n, o, fmt.Sprintf("requirement references unknown node '%s'", o.FilterID))
			case f.kind != KindFilter:
				b.invalidRequirement(n, o, fmt.Sprintf("requirement references '%s' which is a %s, not a filter", f.id, f.kind))
			case f == n:
				b.invalidRequirement(n, o, "node cannot require its own outcome")
			case !lo.Contains(f.filter.Categories(), o.Category):
				b.invalidRequirement(n, o, fmt.Sprintf("filter '%s' has no category '%s' (categories: %s)",
					f.id, o.Category, strings.Join(f.filter.Categories(), ", ")))
			default:
				n.requires = append(n.requires, requiredOutcome{filter: f, category: o.Category})
			}
		}
	}
}

func (b *graphBuilder) invalidRequirement(n *Node, o Outcome, msg string) {
	b.faults.Add(errors.GraphFault{
		Kind:    errors.FaultInvalidRequirement,
		NodeID:  n.id,
		Message: fmt.Sprintf("%s: %s", o, msg),
	})
}

// addEdges loads every dependency into the DAG. heimdalr/dag refuses edges
// that would close a loop; each refusal is reported with the loop's path.
func (b *graphBuilder) addEdges() {
	for _, n := range b.nodes {
		_ = b.graph.AddVertexByID(n.id, n.id)
	}

	for _, n := range b.nodes {
		var deps []string
		for _, p := range n.producers {
			deps = append(deps, p.id)
		}
		for _, r := range n.requires {
			deps = append(deps, r.filter.id)
		}

		for _, dep := range lo.Uniq(deps) {
			err := b.graph.AddEdge(dep, n.id)
			if err == nil {
				b.adj[dep] = append(b.adj[dep], n.id)
				b.parents[n.id] = append(b.parents[n.id], dep)
				continue
			}

			var loop dag.EdgeLoopError
			if !stderrors.As(err, &loop) {
				b.faults.Add(errors.GraphFault{
					Kind:    errors.FaultCycle,
					NodeID:  n.id,
					Message: fmt.Sprintf("edge '%s' -> '%s' rejected: %v", dep, n.id, err),
				})
				continue
			}

			path := append([]string{dep}, b.pathBetween(n.id, dep)...)
			b.faults.Add(errors.GraphFault{
				Kind:    errors.FaultCycle,
				NodeID:  n.id,
				Path:    path,
				Message: fmt.Sprintf("dependency cycle %s", strings.Join(path, " -> ")),
			})
		}
	}
}

// pathBetween returns the node IDs of a path from -> ... -> to over the
// accepted edges
func (b *graphBuilder) pathBetween(from, to string) []string {
	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			var path []string
			for at := to; at != ""; at = prev[at] {
				path = append([]string{at}, path...)
			}
			return path
		}
		for _, next := range b.adj[cur] {
			if _, seen := prev[next]; !seen {
				prev[next] = cur
				queue = append(queue, next)
			}
		}
	}
	return []string{from, to}
}

// topologicalOrder sorts the nodes over the accepted edges, keeping
// definition order between independent nodes
func (b *graphBuilder) topologicalOrder() []*Node {
	indegree := make(map[string]int, len(b.nodes))
	for _, n := range b.nodes {
		indegree[n.id] = len(b.parents[n.id])
	}

	order := make([]*Node, 0, len(b.nodes))
	done := make(map[string]bool, len(b.nodes))
	for len(order) < len(b.nodes) {
		progressed := false
		for _, n := range b.nodes {
			if done[n.id] || indegree[n.id] > 0 {
				continue
			}
			done[n.id] = true
			order = append(order, n)
			for _, child := range b.adj[n.id] {
				indegree[child]--
			}
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return order
}

// assignTables gives every node the single source table its data comes
// from and returns the tables in first-use order
func (b *graphBuilder) assignTables(order []*Node) []string {
	var used []string
	for _, n := range order {
		for table := range b.sourceInputs[n] {
			if !lo.Contains(used, table) {
				used = append(used, table)
			}
		}
	}
	sort.Strings(used)

	if len(used) == 0 {
		b.faults.Add(errors.GraphFault{
			Kind:    errors.FaultNoSourceTable,
			Message: "no node reads a source column",
		})
		return nil
	}

	for _, n := range order {
		var tables []string
		for table := range b.sourceInputs[n] {
			tables = append(tables, table)
		}
		for _, parent := range b.parents[n.id] {
			if t := b.byID[parent].table; t != "" {
				tables = append(tables, t)
			}
		}
		tables = lo.Uniq(tables)
		sort.Strings(tables)

		switch {
		case len(tables) == 1:
			n.table = tables[0]
		case len(tables) > 1:
			b.faults.Add(errors.GraphFault{
				Kind:    errors.FaultMixedTables,
				NodeID:  n.id,
				Tables:  tables,
				Message: fmt.Sprintf("inputs originate from more than one table: %s", strings.Join(tables, ", ")),
			})
			n.table = tables[0]
		case len(used) == 1:
			n.table = used[0]
		default:
			b.faults.Add(errors.GraphFault{
				Kind:    errors.FaultNoSourceTable,
				NodeID:  n.id,
				Message: fmt.Sprintf("node reads no column, cannot choose between tables %s", strings.Join(used, ", ")),
			})
		}
	}
	return used
}

// markFanOut records the descendants of fan-out transformers and rejects
// nodes fed by two fan-outs that do not descend from one another
func (b *graphBuilder) markFanOut(order []*Node) {
	var fanOuts []*Node
	for _, n := range order {
		if n.kind != KindTransformer || !n.transformer.FanOut() {
			continue
		}
		descendants, err := b.graph.GetDescendants(n.id)
		if err != nil {
			continue
		}
		n.fanOut = make([]bool, len(order))
		for id := range descendants {
			if d, ok := b.byID[id]; ok {
				n.fanOut[d.index] = true
			}
		}
		fanOuts = append(fanOuts, n)
	}

	for _, n := range order {
		var feeding []*Node
		for _, f := range fanOuts {
			if f.fanOut[n.index] {
				feeding = append(feeding, f)
			}
		}
		for i := 0; i < len(feeding); i++ {
			for j := i + 1; j < len(feeding); j++ {
				x, y := feeding[i], feeding[j]
				if x.fanOut[y.index] || y.fanOut[x.index] {
					continue
				}
				b.faults.Add(errors.GraphFault{
					Kind:    errors.FaultAmbiguousFanOut,
					NodeID:  n.id,
					Message: fmt.Sprintf("node descends from unrelated fan-out transformers '%s' and '%s'", x.id, y.id),
				})
			}
		}
	}
}

func (b *graphBuilder) tablePlans(order []*Node, tables []string) []*TablePlan {
	plans := make([]*TablePlan, 0, len(tables))
	for _, table := range tables {
		plan := &TablePlan{Name: table}
		for _, n := range order {
			if n.table != table {
				continue
			}
			plan.Nodes = append(plan.Nodes, n)
			for _, col := range b.sourceInputs[n][table] {
				if !lo.Contains(plan.Columns, col) {
					plan.Columns = append(plan.Columns, col)
				}
			}
		}
		sort.Strings(plan.Columns)
		plans = append(plans, plan)
	}
	return plans
}
