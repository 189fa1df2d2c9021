package listeners

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analysis-engine/internal/common/logging"
	"analysis-engine/internal/datastore"
	"analysis-engine/internal/pipeline/components"
	"analysis-engine/internal/pipeline/core"
)

// run executes a row count over three rows, optionally behind a script that
// throws on the second row
func run(t *testing.T, failing bool, listeners ...core.Listener) *core.Execution {
	t.Helper()
	env := core.NewEnvironment()
	env.Settings.Workers = 1
	env.Settings.ProgressEvery = 1
	reg := components.NewRegistry(env)

	src := datastore.NewMemory("test")
	require.NoError(t, src.AddTable("t", []string{"v"}, [][]interface{}{{"a"}, {"b"}, {"c"}}))

	input := "t.v"
	var nodes []core.NodeDefinition
	if failing {
		js, err := reg.Create(components.Definition{ID: "js", Type: components.TypeJavaScript, Inputs: []string{"t.v"},
			Config: []byte(`{"script": "if (v === 'b') throw new Error('bad b'); return v", "outputs": ["out"]}`)})
		require.NoError(t, err)
		nodes = append(nodes, core.NodeDefinition{ID: "js", Component: js, Inputs: []string{"t.v"}})
		input = "out"
	}
	count, err := reg.Create(components.Definition{ID: "count", Type: components.TypeRowCount, Inputs: []string{input}})
	require.NoError(t, err)
	nodes = append(nodes, core.NodeDefinition{ID: "count", Component: count, Inputs: []string{input}})

	job, err := core.BuildJob(context.Background(), src, core.JobSpec{ID: "job-1", Name: "listeners", Nodes: nodes})
	require.NoError(t, err)
	exec, err := core.NewExecutor(env).Execute(context.Background(), job, listeners...)
	require.NoError(t, err)
	require.True(t, exec.Wait(10*time.Second))
	return exec
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) entries(t *testing.T) []map[string]interface{} {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]interface{}
	sc := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for sc.Scan() {
		var e map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, e)
	}
	return out
}

func messages(entries []map[string]interface{}) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e["msg"].(string))
	}
	return out
}

func jsonLogger(t *testing.T) (logging.Logger, *syncBuffer) {
	t.Helper()
	buf := &syncBuffer{}
	logger, err := logging.NewZapLogger(logging.LogConfig{Level: logging.DebugLevel, Format: logging.FormatJSON, Output: buf})
	require.NoError(t, err)
	return logger, buf
}

func TestLogging_Success(t *testing.T) {
	logger, buf := jsonLogger(t)
	exec := run(t, false, NewLogging(logger))
	require.True(t, exec.IsSuccessful())

	entries := buf.entries(t)
	assert.Equal(t, []string{
		"Job started",
		"Processing table",
		"Table progress", "Table progress", "Table progress",
		"Table processed",
		"Node finished",
		"Job finished",
	}, messages(entries))

	for _, e := range entries {
		assert.Equal(t, "job-1", e["job_id"])
		assert.Equal(t, exec.ID(), e["execution_id"])
	}
	assert.EqualValues(t, 3, entries[1]["expected_rows"])
	assert.EqualValues(t, 100, entries[4]["percent"])
}

func TestLogging_Failure(t *testing.T) {
	logger, buf := jsonLogger(t)
	exec := run(t, true, NewLogging(logger))
	require.False(t, exec.IsSuccessful())

	entries := buf.entries(t)
	var nodeFailed, jobFailed map[string]interface{}
	for _, e := range entries {
		switch e["msg"] {
		case "Node failed":
			nodeFailed = e
		case "Job failed":
			jobFailed = e
		}
	}
	require.NotNil(t, nodeFailed)
	assert.Equal(t, "js", nodeFailed["node_id"])
	assert.Equal(t, "abort", nodeFailed["policy"])
	assert.EqualValues(t, 2, nodeFailed["row_id"])
	assert.Contains(t, nodeFailed["error"], "bad b")

	require.NotNil(t, jobFailed)
	assert.Equal(t, "failed", jobFailed["status"])
	assert.Equal(t, "ERROR", jobFailed["level"])
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	run(t, false, m)
	run(t, true, m)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("successful")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.running))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.nodeErrors.WithLabelValues(components.TypeJavaScript, "abort")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.rows.WithLabelValues("t")), 5.0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "collectors register once per registry")
}
