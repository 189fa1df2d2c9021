package core

// Row is an immutable view of one source row plus the values appended by
// transformers along the way. Appending creates a child view that points at
// its parent, so concurrent branches never share a mutable map.
type Row struct {
	id     int64
	table  string
	count  int
	parent *Row
	values map[string]interface{}
}

// NewRow creates a root row read from table
func NewRow(table string, id int64, values map[string]interface{}) *Row {
	if values == nil {
		values = map[string]interface{}{}
	}
	return &Row{id: id, table: table, count: 1, values: values}
}

// ID returns the source row number
func (r *Row) ID() int64 { return r.id }

// Table returns the source table the row was read from
func (r *Row) Table() string { return r.table }

// Count returns how many identical source rows this row stands for
func (r *Row) Count() int { return r.count }

// WithCount returns a copy of the view standing for n identical rows
func (r *Row) WithCount(n int) *Row {
	cp := *r
	cp.count = n
	return &cp
}

// Derive returns a child view adding values on top of r
func (r *Row) Derive(values map[string]interface{}) *Row {
	return &Row{
		id:     r.id,
		table:  r.table,
		count:  r.count,
		parent: r,
		values: values,
	}
}

// Get looks a column up, walking towards the root view
func (r *Row) Get(column string) (interface{}, bool) {
	for v := r; v != nil; v = v.parent {
		if val, ok := v.values[column]; ok {
			return val, true
		}
	}
	return nil, false
}

// Value returns the column value or nil
func (r *Row) Value(column string) interface{} {
	val, _ := r.Get(column)
	return val
}

// Select returns the values of columns in order
func (r *Row) Select(columns []string) []interface{} {
	out := make([]interface{}, len(columns))
	for i, c := range columns {
		out[i] = r.Value(c)
	}
	return out
}

// Snapshot flattens the view into a new map; values closer to the leaf win
func (r *Row) Snapshot() map[string]interface{} {
	var chain []*Row
	for v := r; v != nil; v = v.parent {
		chain = append(chain, v)
	}

	out := make(map[string]interface{})
	for i := len(chain) - 1; i >= 0; i-- {
		for k, val := range chain[i].values {
			out[k] = val
		}
	}
	return out
}
