package core

// nodeStatus is what happened to a node during one row's traversal
type nodeStatus uint8

const (
	statusPending nodeStatus = iota
	statusExecuted
	statusSkipped
	// statusDeferred marks descendants of a fan-out; they run in the
	// continuations instead
	statusDeferred
)

// traversal is the per-row state of the requirement evaluator. It is owned
// by the single task walking the row, and copied when a fan-out spawns
// continuations.
type traversal struct {
	row      *Row
	plan     []*Node
	status   []nodeStatus
	outcomes []string
}

func newTraversal(row *Row, plan []*Node, size int) *traversal {
	return &traversal{
		row:      row,
		plan:     plan,
		status:   make([]nodeStatus, size),
		outcomes: make([]string, size),
	}
}

// eligible reports whether n runs for this row: every node producing one of
// its inputs must have run, and its requirement must match an outcome
// already computed for this row
func (t *traversal) eligible(n *Node) bool {
	for _, p := range n.producers {
		if t.status[p.index] != statusExecuted {
			return false
		}
	}
	if len(n.requires) == 0 {
		return true
	}
	for _, r := range n.requires {
		if t.status[r.filter.index] == statusExecuted && t.outcomes[r.filter.index] == r.category {
			return true
		}
	}
	return false
}

// recordOutcome caches the category of filter n for the rest of the row
func (t *traversal) recordOutcome(n *Node, category string) {
	t.status[n.index] = statusExecuted
	t.outcomes[n.index] = category
	if n.outcomeColumn {
		t.row = t.row.Derive(map[string]interface{}{n.id: category})
	}
}

// deferDescendants marks the descendants of fan-out node n still ahead in the plan
func (t *traversal) deferDescendants(n *Node) {
	for _, d := range t.plan {
		if n.fanOut[d.index] && t.status[d.index] == statusPending {
			t.status[d.index] = statusDeferred
		}
	}
}

// continuation builds the traversal of one derived row emitted by fan-out
// node n: only n's descendants remain to run, on top of everything already
// computed for the parent row
func (t *traversal) continuation(n *Node, row *Row) *traversal {
	c := &traversal{
		row:      row,
		status:   append([]nodeStatus(nil), t.status...),
		outcomes: append([]string(nil), t.outcomes...),
	}
	for _, d := range t.plan {
		if n.fanOut[d.index] {
			c.plan = append(c.plan, d)
			c.status[d.index] = statusPending
			c.outcomes[d.index] = ""
		}
	}
	return c
}
