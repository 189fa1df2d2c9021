package components

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analysis-engine/internal/pipeline/core"
)

func runRows(t *testing.T, c core.Component, columns []string, rows ...[]interface{}) core.Result {
	t.Helper()
	a := c.(core.Analyzer)
	for i, values := range rows {
		data := make(map[string]interface{}, len(columns))
		for j, col := range columns {
			data[col] = values[j]
		}
		in := core.Input{Row: core.NewRow("t", int64(i+1), data), Columns: columns, Values: values}
		require.NoError(t, a.Run(context.Background(), in, 1))
	}
	res, err := a.Result()
	require.NoError(t, err)
	return res
}

func TestValueDistribution(t *testing.T) {
	r := testRegistry(t)
	cols := []string{"t.country"}
	c := build(t, r, TypeValueDistribution, "dist", cols, `{"sample_size": 2}`)

	res := runRows(t, c, cols,
		[]interface{}{"NL"}, []interface{}{"BE"}, []interface{}{"NL"},
		[]interface{}{nil}, []interface{}{"NL"}, []interface{}{"BE"},
	).(*ValueDistributionResult)

	assert.Equal(t, cols, res.Columns)
	assert.Equal(t, int64(6), res.Total)
	assert.Equal(t, 3, res.Distinct)
	require.Len(t, res.Groups, 3)
	assert.Equal(t, GroupCount{Values: []interface{}{"NL"}, Count: 3, SampleRowIDs: []int64{1, 3}}, res.Groups[0])
	assert.Equal(t, GroupCount{Values: []interface{}{"BE"}, Count: 2, SampleRowIDs: []int64{2, 6}}, res.Groups[1])
	assert.Equal(t, []interface{}{nil}, res.Groups[2].Values)
}

func TestValueDistribution_Top(t *testing.T) {
	r := testRegistry(t)
	cols := []string{"t.a", "t.b"}
	c := build(t, r, TypeValueDistribution, "dist", cols, `{"top": 1, "sample_size": 0}`)

	res := runRows(t, c, cols,
		[]interface{}{"x", 1}, []interface{}{"x", 1}, []interface{}{"x", 2},
	).(*ValueDistributionResult)

	assert.Equal(t, 2, res.Distinct)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, []interface{}{"x", 1}, res.Groups[0].Values)
	assert.Empty(t, res.Groups[0].SampleRowIDs)
}

// Many workers racing on the same few keys must end up with one
// accumulator per key and no lost updates
func TestValueDistribution_ConcurrentGroups(t *testing.T) {
	r := testRegistry(t)
	cols := []string{"t.k"}
	c := build(t, r, TypeValueDistribution, "dist", cols, "")
	a := c.(core.Analyzer)

	const workers, perWorker = 16, 500
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("k%d", i%2)
				in := core.Input{Row: core.NewRow("t", int64(w*perWorker+i), nil), Columns: cols, Values: []interface{}{key}}
				assert.NoError(t, a.Run(context.Background(), in, 1))
			}
		}(w)
	}
	wg.Wait()

	res, err := a.Result()
	require.NoError(t, err)
	dist := res.(*ValueDistributionResult)
	assert.Equal(t, 2, dist.Distinct)
	assert.Equal(t, int64(workers*perWorker), dist.Total)
	for _, g := range dist.Groups {
		assert.Equal(t, int64(workers*perWorker/2), g.Count)
		assert.Len(t, g.SampleRowIDs, 5)
	}
}

func TestFillPattern(t *testing.T) {
	r := testRegistry(t)
	cols := []string{"t.name", "t.email"}
	c := build(t, r, TypeFillPattern, "fill", cols, "")

	res := runRows(t, c, cols,
		[]interface{}{"ann", "a@x"},
		[]interface{}{"bob", ""},
		[]interface{}{"cy", "c@x"},
		[]interface{}{nil, " "},
	).(*FillPatternResult)

	assert.Equal(t, int64(4), res.Total)
	require.Len(t, res.Patterns, 3)
	assert.Equal(t, []interface{}{Filled, Filled}, res.Patterns[0].Values)
	assert.Equal(t, int64(2), res.Patterns[0].Count)
	assert.ElementsMatch(t, []interface{}{
		[]interface{}{Filled, Blank},
		[]interface{}{Null, Blank},
	}, []interface{}{res.Patterns[1].Values, res.Patterns[2].Values})
}

func TestUniqueness(t *testing.T) {
	r := testRegistry(t)
	cols := []string{"t.id"}
	c := build(t, r, TypeUniqueness, "uniq", cols, "")

	res := runRows(t, c, cols,
		[]interface{}{"a"}, []interface{}{"a"}, []interface{}{"b"},
		[]interface{}{nil}, []interface{}{""}, []interface{}{"a"},
	).(*UniquenessResult)

	assert.Equal(t, &UniquenessResult{Total: 6, Distinct: 4, Unique: 3, Repeated: 1, RepeatedRows: 3}, res)
}

func TestGroupingAnalyzers_ResultResetsAccumulators(t *testing.T) {
	r := testRegistry(t)
	cols := []string{"t.v"}
	rows := [][]interface{}{{"a"}, {"b"}, {"a"}}

	t.Run("value distribution", func(t *testing.T) {
		c := build(t, r, TypeValueDistribution, "dist", cols, "")
		first := runRows(t, c, cols, rows...).(*ValueDistributionResult)
		assert.Equal(t, int64(3), first.Total)
		assert.Equal(t, 2, first.Distinct)

		second := runRows(t, c, cols).(*ValueDistributionResult)
		assert.Zero(t, second.Total)
		assert.Zero(t, second.Distinct)
		assert.Empty(t, second.Groups)

		third := runRows(t, c, cols, []interface{}{"c"}).(*ValueDistributionResult)
		assert.Equal(t, int64(1), third.Total)
		require.Len(t, third.Groups, 1)
		assert.Equal(t, []interface{}{"c"}, third.Groups[0].Values)
	})

	t.Run("fill pattern", func(t *testing.T) {
		c := build(t, r, TypeFillPattern, "fill", cols, "")
		first := runRows(t, c, cols, rows...).(*FillPatternResult)
		assert.Equal(t, int64(3), first.Total)

		second := runRows(t, c, cols).(*FillPatternResult)
		assert.Zero(t, second.Total)
		assert.Empty(t, second.Patterns)
	})

	t.Run("uniqueness", func(t *testing.T) {
		c := build(t, r, TypeUniqueness, "uniq", cols, "")
		first := runRows(t, c, cols, rows...).(*UniquenessResult)
		assert.Equal(t, &UniquenessResult{Total: 3, Distinct: 2, Unique: 1, Repeated: 1, RepeatedRows: 2}, first)

		second := runRows(t, c, cols).(*UniquenessResult)
		assert.Equal(t, &UniquenessResult{}, second)

		third := runRows(t, c, cols, []interface{}{"a"}).(*UniquenessResult)
		assert.Equal(t, &UniquenessResult{Total: 1, Distinct: 1, Unique: 1}, third)
	})
}

func TestStringStats(t *testing.T) {
	r := testRegistry(t)
	cols := []string{"t.s"}
	c := build(t, r, TypeStringStats, "ss", cols, "")

	res := runRows(t, c, cols,
		[]interface{}{"Hello World"}, []interface{}{nil}, []interface{}{"  "}, []interface{}{"a1"},
	).(map[string]StringStats)

	s := res["t.s"]
	assert.Equal(t, int64(4), s.Count)
	assert.Equal(t, int64(1), s.Nulls)
	assert.Equal(t, int64(1), s.Blanks)
	assert.Equal(t, 2, s.MinLength)
	assert.Equal(t, 11, s.MaxLength)
	assert.InDelta(t, 5.0, s.AvgLength, 0.001)
	assert.Equal(t, int64(2), s.Uppercase)
	assert.Equal(t, int64(9), s.Lowercase)
	assert.Equal(t, int64(1), s.Digits)
	assert.Equal(t, int64(3), s.Words)
}

func TestNumberStats(t *testing.T) {
	r := testRegistry(t)
	cols := []string{"t.n"}
	c := build(t, r, TypeNumberStats, "ns", cols, "")

	res := runRows(t, c, cols,
		[]interface{}{4}, []interface{}{"2.5"}, []interface{}{nil}, []interface{}{"n/a"}, []interface{}{-1.5},
	).(map[string]NumberStats)

	s := res["t.n"]
	assert.Equal(t, int64(5), s.Count)
	assert.Equal(t, int64(1), s.Nulls)
	assert.Equal(t, int64(1), s.NonNumeric)
	require.NotNil(t, s.Min)
	require.NotNil(t, s.Max)
	require.NotNil(t, s.Mean)
	assert.Equal(t, -1.5, *s.Min)
	assert.Equal(t, 4.0, *s.Max)
	assert.Equal(t, 5.0, s.Sum)
	assert.InDelta(t, 5.0/3, *s.Mean, 1e-9)
}

func TestNumberStats_NoNumbers(t *testing.T) {
	r := testRegistry(t)
	cols := []string{"t.n"}
	c := build(t, r, TypeNumberStats, "ns", cols, "")

	s := runRows(t, c, cols, []interface{}{nil}).(map[string]NumberStats)["t.n"]
	assert.Nil(t, s.Min)
	assert.Nil(t, s.Mean)
}

func TestRowCount_CountsRepresentedRows(t *testing.T) {
	r := testRegistry(t)
	cols := []string{"t.a"}
	c := build(t, r, TypeRowCount, "rows", cols, "")
	a := c.(core.Analyzer)

	require.NoError(t, a.Run(context.Background(), input(cols, 1), 3))
	require.NoError(t, a.Run(context.Background(), input(cols, 2), 1))
	res, err := a.Result()
	require.NoError(t, err)
	assert.Equal(t, int64(4), res)
}

// A null check gating an upper-casing transformer, with a distribution of
// the filter outcome, over 10 rows of which 3 are null
func TestNullBranchesEndToEnd(t *testing.T) {
	values := []interface{}{"a", nil, "b", "c", nil, "d", "e", nil, "f", "g"}
	rows := make([][]interface{}, len(values))
	for i, v := range values {
		rows[i] = []interface{}{v}
	}

	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			r := testRegistry(t)
			r.Environment().Settings.Workers = workers
			src := memorySource(t, "people", []string{"x"}, rows...)

			exec := execute(t, r, src,
				stage{id: "x_null", typ: TypeNullCheck, inputs: []string{"people.x"}},
				stage{id: "upper", typ: TypeCase, inputs: []string{"people.x"}, config: `{"mode": "upper", "outputs": ["x_upper"]}`,
					requires: core.Require("x_null", CategoryNotNull)},
				stage{id: "branches", typ: TypeValueDistribution, inputs: []string{"x_null"}},
				stage{id: "uppers", typ: TypeRowCount, inputs: []string{"x_upper"}},
			)
			require.True(t, exec.IsSuccessful(), "%v", exec.Errors())

			res, ok := exec.Result("branches")
			require.True(t, ok)
			dist := res.(*ValueDistributionResult)
			require.Len(t, dist.Groups, 2)
			assert.Equal(t, []interface{}{CategoryNotNull}, dist.Groups[0].Values)
			assert.Equal(t, int64(7), dist.Groups[0].Count)
			assert.Equal(t, []interface{}{CategoryNull}, dist.Groups[1].Values)
			assert.Equal(t, int64(3), dist.Groups[1].Count)

			uppers, _ := exec.Result("uppers")
			assert.Equal(t, int64(7), uppers)
		})
	}
}
