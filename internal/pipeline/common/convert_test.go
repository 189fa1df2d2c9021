package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analysis-engine/internal/common/logging"
	"analysis-engine/internal/pipeline/errors"
)

func TestToFloat64(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    float64
		wantErr bool
	}{
		{"float", 1.5, 1.5, false},
		{"int", 3, 3, false},
		{"uint8", uint8(7), 7, false},
		{"string", " 2.25 ", 2.25, false},
		{"bytes", []byte("10"), 10, false},
		{"not a number", "abc", 0, true},
		{"nil", nil, 0, true},
		{"bool", true, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToFloat64(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToInt64(t *testing.T) {
	v, err := ToInt64("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = ToInt64(3.0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	_, err = ToInt64(3.5)
	assert.Error(t, err)

	v, err = ToInt64(true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestToBool(t *testing.T) {
	b, err := ToBool("true")
	require.NoError(t, err)
	assert.True(t, b)

	b, err = ToBool(0)
	require.NoError(t, err)
	assert.False(t, b)

	_, err = ToBool("maybe")
	assert.Error(t, err)
}

func TestTupleKey(t *testing.T) {
	assert.NotEqual(t, TupleKey([]interface{}{nil}), TupleKey([]interface{}{""}))
	assert.NotEqual(t, TupleKey([]interface{}{nil}), TupleKey([]interface{}{"<nil>"}))
	assert.NotEqual(t, TupleKey([]interface{}{"a", "b"}), TupleKey([]interface{}{"a\x1fb"}))
	assert.Equal(t, TupleKey([]interface{}{"1", 2}), TupleKey([]interface{}{1, "2"}))

	t.Run("separator bytes inside values", func(t *testing.T) {
		assert.NotEqual(t,
			TupleKey([]interface{}{"a\x1f\x01b", "c"}),
			TupleKey([]interface{}{"a", "b\x1f\x01c"}))
		assert.NotEqual(t, TupleKey([]interface{}{"a", "bc"}), TupleKey([]interface{}{"ab", "c"}))
		assert.NotEqual(t, TupleKey([]interface{}{nil, "-"}), TupleKey([]interface{}{"-", nil}))
		assert.NotEqual(t, TupleKey([]interface{}{"1:a"}), TupleKey([]interface{}{"1", "a"}))
	})
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(nil))
	assert.True(t, IsBlank("  \t"))
	assert.False(t, IsBlank("x"))
	assert.False(t, IsBlank(0))
}

func TestBase(t *testing.T) {
	b := NewBase("tok", "tokenizer", []string{"t.a"}, logging.NewNopLogger())

	assert.Equal(t, []string{"tok"}, b.OutputNames(nil, 1))
	assert.Equal(t, []string{"tok_1", "tok_2"}, b.OutputNames(nil, 2))
	assert.Equal(t, []string{"x"}, b.OutputNames([]string{"x"}, 1))

	assert.NoError(t, b.RequireInputs(1, 1))
	err := b.RequireInputs(2, -1)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "at least 2")
}
