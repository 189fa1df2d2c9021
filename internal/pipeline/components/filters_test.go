package components

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analysis-engine/internal/pipeline/core"
	"analysis-engine/internal/pipeline/errors"
)

func TestNullCheck(t *testing.T) {
	r := testRegistry(t)
	cols := []string{"t.a", "t.b"}

	plain := build(t, r, TypeNullCheck, "nc", cols, "")
	assert.Equal(t, []string{CategoryNull, CategoryNotNull}, plain.(core.Filter).Categories())
	assert.Equal(t, CategoryNotNull, categorize(t, plain, input(cols, "x", " ")))
	assert.Equal(t, CategoryNull, categorize(t, plain, input(cols, "x", nil)))

	blank := build(t, r, TypeNullCheck, "nc", cols, `{"empty_as_null": true}`)
	assert.Equal(t, CategoryNull, categorize(t, blank, input(cols, "x", " ")))
}

func TestNullCheck_NeedsInput(t *testing.T) {
	c, err := testRegistry(t).Create(Definition{ID: "nc", Type: TypeNullCheck})
	require.NoError(t, err)
	err = c.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestExpressionFilter(t *testing.T) {
	r := testRegistry(t)
	cols := []string{"orders.total", "orders.status"}

	tests := []struct {
		expression string
		values     []interface{}
		want       string
	}{
		{`total > 100`, []interface{}{150.0, "open"}, CategoryValid},
		{`total > 100`, []interface{}{50.0, "open"}, CategoryInvalid},
		{`orders_status == "open" && between(total, 10, 20)`, []interface{}{15, "open"}, CategoryValid},
		{`values["orders.status"] in ["closed", "void"]`, []interface{}{1, "void"}, CategoryValid},
		{`isNull(status)`, []interface{}{1, nil}, CategoryValid},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			c := build(t, r, TypeExpression, "expr", cols, `{"expression": `+quote(tt.expression)+`}`)
			assert.Equal(t, tt.want, categorize(t, c, input(cols, tt.values...)))
		})
	}
}

func TestExpressionFilter_InvalidExpression(t *testing.T) {
	c, err := testRegistry(t).Create(Definition{
		ID: "expr", Type: TypeExpression, Inputs: []string{"t.a"},
		Config: []byte(`{"expression": "a >"}`),
	})
	require.NoError(t, err)
	err = c.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestNumberRange(t *testing.T) {
	r := testRegistry(t)
	cols := []string{"t.n"}
	c := build(t, r, TypeNumberRange, "range", cols, `{"min": 0, "max": 10}`)

	assert.Equal(t, CategoryValid, categorize(t, c, input(cols, 0)))
	assert.Equal(t, CategoryValid, categorize(t, c, input(cols, "10")))
	assert.Equal(t, CategoryInvalid, categorize(t, c, input(cols, 10.5)))
	assert.Equal(t, CategoryInvalid, categorize(t, c, input(cols, "ten")))
	assert.Equal(t, CategoryNull, categorize(t, c, input(cols, nil)))
}

func TestNumberRange_Validate(t *testing.T) {
	r := testRegistry(t)
	for name, config := range map[string]string{
		"no bounds":    `{}`,
		"inverted":     `{"min": 5, "max": 1}`,
		"zero columns": `{"min": 1}`,
	} {
		t.Run(name, func(t *testing.T) {
			inputs := []string{"t.n"}
			if name == "zero columns" {
				inputs = nil
			}
			c, err := r.Create(Definition{ID: "range", Type: TypeNumberRange, Inputs: inputs, Config: []byte(config)})
			require.NoError(t, err)
			assert.True(t, errors.IsConfigurationError(c.Validate()))
		})
	}
}
