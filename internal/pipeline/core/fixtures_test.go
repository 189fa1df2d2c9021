package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// memorySource serves fixed tables
type memorySource struct {
	tables  map[string][]string
	rows    map[string][][]interface{}
	failAt  int
	openErr error
}

func newMemorySource() *memorySource {
	return &memorySource{
		tables: make(map[string][]string),
		rows:   make(map[string][][]interface{}),
		failAt: -1,
	}
}

func (s *memorySource) addTable(name string, columns []string, rows ...[]interface{}) *memorySource {
	s.tables[name] = columns
	s.rows[name] = rows
	return s
}

func (s *memorySource) Name() string { return "memory" }

func (s *memorySource) Columns(_ context.Context, table string) ([]string, error) {
	cols, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("no table '%s'", table)
	}
	return cols, nil
}

func (s *memorySource) ExpectedRows(_ context.Context, table string) (int64, error) {
	return int64(len(s.rows[table])), nil
}

func (s *memorySource) Open(_ context.Context, table string, columns []string) (RowIterator, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = -1
		for j, name := range s.tables[table] {
			if name == c {
				idx[i] = j
			}
		}
	}
	return &memoryIterator{rows: s.rows[table], idx: idx, pos: -1, failAt: s.failAt}, nil
}

type memoryIterator struct {
	rows   [][]interface{}
	idx    []int
	pos    int
	failAt int
	err    error
	cur    []interface{}
}

func (it *memoryIterator) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	it.pos++
	if it.failAt >= 0 && it.pos == it.failAt {
		it.err = errors.New("connection lost")
		return false
	}
	if it.pos >= len(it.rows) {
		return false
	}
	row := it.rows[it.pos]
	it.cur = make([]interface{}, len(it.idx))
	for i, j := range it.idx {
		if j >= 0 {
			it.cur[i] = row[j]
		}
	}
	return true
}

func (it *memoryIterator) Values() []interface{} { return it.cur }
func (it *memoryIterator) Err() error            { return it.err }
func (it *memoryIterator) Close() error          { return nil }

// lifecycleCounts counts hook invocations of a test component
type lifecycleCounts struct {
	inits  atomic.Int32
	closes atomic.Int32
}

func (l *lifecycleCounts) Validate() error                  { return nil }
func (l *lifecycleCounts) Initialize(context.Context) error { l.inits.Add(1); return nil }
func (l *lifecycleCounts) Close() error                     { l.closes.Add(1); return nil }

// nullFilter categorizes NULL when its first input is nil
type nullFilter struct {
	lifecycleCounts
	calls atomic.Int64
}

func (f *nullFilter) Type() string         { return "test_null" }
func (f *nullFilter) Categories() []string { return []string{"NULL", "NOT_NULL"} }
func (f *nullFilter) Categorize(_ context.Context, in Input) (string, error) {
	f.calls.Add(1)
	if in.Value(0) == nil {
		return "NULL", nil
	}
	return "NOT_NULL", nil
}

// upperTransformer uppercases its first input
type upperTransformer struct {
	lifecycleCounts
	output string
	calls  atomic.Int64
}

func (u *upperTransformer) Type() string            { return "test_upper" }
func (u *upperTransformer) OutputColumns() []string { return []string{u.output} }
func (u *upperTransformer) FanOut() bool            { return false }
func (u *upperTransformer) Transform(_ context.Context, in Input, emit Emitter) error {
	u.calls.Add(1)
	s, ok := in.Value(0).(string)
	if !ok {
		return fmt.Errorf("not a string: %v", in.Value(0))
	}
	emit(strings.ToUpper(s))
	return nil
}

// splitTransformer splits on spaces, as rows or as columns
type splitTransformer struct {
	lifecycleCounts
	rows    bool
	outputs []string
}

func (s *splitTransformer) Type() string            { return "test_split" }
func (s *splitTransformer) OutputColumns() []string { return s.outputs }
func (s *splitTransformer) FanOut() bool            { return s.rows }
func (s *splitTransformer) Transform(_ context.Context, in Input, emit Emitter) error {
	str, _ := in.Value(0).(string)
	tokens := strings.Fields(str)
	if s.rows {
		for _, tok := range tokens {
			emit(tok)
		}
		return nil
	}
	values := make([]interface{}, len(s.outputs))
	for i := range values {
		if i < len(tokens) {
			values[i] = tokens[i]
		}
	}
	emit(values...)
	return nil
}

// groupCounter counts rows per distinct first input, creating one
// accumulator per key with LoadOrStore
type groupCounter struct {
	lifecycleCounts
	groups  sync.Map
	created atomic.Int64
	rows    atomic.Int64
	failOn  interface{}
	policy  ErrorPolicy
}

type groupAccumulator struct {
	count atomic.Int64
}

func (g *groupCounter) Type() string { return "test_group_counter" }

func (g *groupCounter) ErrorPolicy() ErrorPolicy {
	if g.policy == "" {
		return PolicyAbort
	}
	return g.policy
}

func (g *groupCounter) Run(_ context.Context, in Input, count int) error {
	key := fmt.Sprint(in.Value(0))
	if g.failOn != nil && in.Value(0) == g.failOn {
		return fmt.Errorf("cannot store value %v", in.Value(0))
	}
	acc, ok := g.groups.Load(key)
	if !ok {
		fresh := &groupAccumulator{}
		var loaded bool
		acc, loaded = g.groups.LoadOrStore(key, fresh)
		if !loaded {
			g.created.Add(1)
		}
	}
	acc.(*groupAccumulator).count.Add(int64(count))
	g.rows.Add(int64(count))
	return nil
}

func (g *groupCounter) Result() (Result, error) {
	out := map[string]int64{}
	g.groups.Range(func(k, v interface{}) bool {
		out[k.(string)] = v.(*groupAccumulator).count.Load()
		return true
	})
	return out, nil
}

// panicListener panics on every callback
type panicListener struct{ NopListener }

func (panicListener) JobBegin(*Execution)                   { panic("listener down") }
func (panicListener) NodeSuccess(*Execution, *Node, Result) { panic("listener down") }
func (panicListener) JobSuccess(*Execution)                 { panic("listener down") }

// recordingListener keeps the events it receives
type recordingListener struct {
	NopListener
	mu         sync.Mutex
	nodeErrors []error
	unknown    []error
	progress   []int64
	began      []int64
	succeeded  bool
	failed     bool
}

func (l *recordingListener) NodeError(_ *Execution, _ *Node, _ *Row, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nodeErrors = append(l.nodeErrors, err)
}

func (l *recordingListener) ErrorUnknown(_ *Execution, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unknown = append(l.unknown, err)
}

func (l *recordingListener) RowProcessingBegin(_ *Execution, _ string, expected int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.began = append(l.began, expected)
}

func (l *recordingListener) RowProcessingProgress(_ *Execution, _ string, n int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progress = append(l.progress, n)
}

func (l *recordingListener) JobSuccess(*Execution) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.succeeded = true
}

func (l *recordingListener) JobFailed(*Execution, []error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = true
}

func testEnvironment(workers int) *Environment {
	env := NewEnvironment()
	env.Settings.Workers = workers
	env.Settings.BufferSize = 2
	env.Settings.ProgressEvery = 3
	env.Settings.ProgressInterval = 0
	return env
}

func column(values ...interface{}) [][]interface{} {
	rows := make([][]interface{}, len(values))
	for i, v := range values {
		rows[i] = []interface{}{v}
	}
	return rows
}
