package components

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"analysis-engine/internal/datastore"
	"analysis-engine/internal/pipeline/core"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	env := core.NewEnvironment()
	env.Settings.Workers = 2
	env.Settings.BufferSize = 8
	return NewRegistry(env)
}

// build creates a component and runs its pre-execution check and
// initialization, closing it when the test ends
func build(t *testing.T, r *Registry, typ, id string, inputs []string, config string) core.Component {
	t.Helper()
	c, err := r.Create(Definition{ID: id, Type: typ, Inputs: inputs, Config: json.RawMessage(config)})
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	require.NoError(t, c.Initialize(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func input(columns []string, values ...interface{}) core.Input {
	data := make(map[string]interface{}, len(columns))
	for i, c := range columns {
		data[c] = values[i]
	}
	return core.Input{Row: core.NewRow("t", 1, data), Columns: columns, Values: values}
}

func categorize(t *testing.T, c core.Component, in core.Input) string {
	t.Helper()
	category, err := c.(core.Filter).Categorize(context.Background(), in)
	require.NoError(t, err)
	return category
}

func runTransform(t *testing.T, c core.Component, in core.Input) [][]interface{} {
	t.Helper()
	var out [][]interface{}
	err := c.(core.Transformer).Transform(context.Background(), in, func(values ...interface{}) {
		out = append(out, values)
	})
	require.NoError(t, err)
	return out
}

type stage struct {
	id       string
	typ      string
	inputs   []string
	config   string
	requires core.Requirement
}

// execute runs stages over source through the executor and waits for the
// outcome
func execute(t *testing.T, r *Registry, source core.DataSource, stages ...stage) *core.Execution {
	t.Helper()
	nodes := make([]core.NodeDefinition, len(stages))
	for i, s := range stages {
		c, err := r.Create(Definition{ID: s.id, Type: s.typ, Inputs: s.inputs, Config: json.RawMessage(s.config)})
		require.NoError(t, err)
		nodes[i] = core.NodeDefinition{ID: s.id, Component: c, Inputs: s.inputs, Requirement: s.requires}
	}

	job, err := core.BuildJob(context.Background(), source, core.JobSpec{ID: t.Name(), Nodes: nodes})
	require.NoError(t, err)

	exec, err := core.NewExecutor(r.Environment()).Execute(context.Background(), job)
	require.NoError(t, err)
	require.True(t, exec.Wait(10*time.Second), "execution did not finish")
	return exec
}

func memorySource(t *testing.T, table string, columns []string, rows ...[]interface{}) *datastore.Memory {
	t.Helper()
	src := datastore.NewMemory("test")
	require.NoError(t, src.AddTable(table, columns, rows))
	return src
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
