package components

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analysis-engine/internal/pipeline/core"
	"analysis-engine/internal/pipeline/errors"
)

func TestJavaScript(t *testing.T) {
	r := testRegistry(t)
	cols := []string{"t.first", "t.last"}

	t.Run("body", func(t *testing.T) {
		c := build(t, r, TypeJavaScript, "js", cols, `{"script": "return values['t.first'].toUpperCase()", "outputs": ["up"]}`)
		assert.Equal(t, [][]interface{}{{"ADA"}}, runTransform(t, c, input(cols, "ada", "lovelace")))
	})

	t.Run("transform function with several outputs", func(t *testing.T) {
		script := quote("function transform(values) { return [first + ' ' + last, last.length]; }")
		c := build(t, r, TypeJavaScript, "js", cols, `{"script": `+script+`, "outputs": ["full", "len"]}`)
		out := runTransform(t, c, input(cols, "ada", "lovelace"))
		require.Len(t, out, 1)
		assert.Equal(t, "ada lovelace", out[0][0])
		assert.EqualValues(t, 8, out[0][1])
	})

	t.Run("null result", func(t *testing.T) {
		c := build(t, r, TypeJavaScript, "js", cols, `{"script": "return first === null ? null : first", "outputs": ["o"]}`)
		assert.Equal(t, [][]interface{}{{nil}}, runTransform(t, c, input(cols, nil, "x")))
	})

	t.Run("fan out", func(t *testing.T) {
		c := build(t, r, TypeJavaScript, "js", cols, `{"script": "return last.split('a')", "outputs": ["part"], "fan_out": true}`)
		assert.True(t, c.(core.Transformer).FanOut())
		assert.Equal(t, [][]interface{}{{""}, {"d"}}, runTransform(t, c, input(cols, "x", "ad")))
	})

	t.Run("unknown columns are undefined", func(t *testing.T) {
		c := build(t, r, TypeJavaScript, "js", []string{"t.first"},
			`{"script": "return typeof last", "outputs": ["o"]}`)
		assert.Equal(t, [][]interface{}{{"undefined"}}, runTransform(t, c, input([]string{"t.first"}, "a")))
	})
}

func TestJavaScript_Failures(t *testing.T) {
	r := testRegistry(t)
	cols := []string{"t.a"}

	run := func(t *testing.T, config string) error {
		c := build(t, r, TypeJavaScript, "js", cols, config)
		return c.(core.Transformer).Transform(context.Background(), input(cols, "x"), func(...interface{}) {})
	}

	t.Run("timeout", func(t *testing.T) {
		err := run(t, `{"script": "while (true) {}", "outputs": ["o"], "timeout": "50ms"}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "script timeout")
	})

	t.Run("eval is disabled", func(t *testing.T) {
		assert.Error(t, run(t, `{"script": "return eval('1')", "outputs": ["o"]}`))
	})

	t.Run("thrown error", func(t *testing.T) {
		err := run(t, `{"script": "throw new Error('bad row')", "outputs": ["o"]}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad row")
	})

	t.Run("wrong arity", func(t *testing.T) {
		err := run(t, `{"script": "return [1, 2, 3]", "outputs": ["a", "b"]}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "3 values for 2 outputs")
	})

	t.Run("fan out needs an array", func(t *testing.T) {
		err := run(t, `{"script": "return 1", "outputs": ["a"], "fan_out": true}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must return an array")
	})
}

func TestJavaScript_CompileErrorIsConfigurationError(t *testing.T) {
	c, err := testRegistry(t).Create(Definition{
		ID: "js", Type: TypeJavaScript, Inputs: []string{"t.a"},
		Config: []byte(`{"script": "return (", "outputs": ["o"]}`),
	})
	require.NoError(t, err)
	assert.True(t, errors.IsConfigurationError(c.Validate()))
}
