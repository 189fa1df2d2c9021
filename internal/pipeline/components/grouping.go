package components

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"analysis-engine/internal/pipeline/common"
	"analysis-engine/internal/pipeline/core"
)

const (
	TypeValueDistribution = "value_distribution"
	TypeFillPattern       = "fill_pattern"
)

// Fill pattern classes
const (
	Filled = "FILLED"
	Blank  = "BLANK"
	Null   = "NULL"
)

// group accumulates the rows sharing one value tuple
type group struct {
	values []interface{}
	count  atomic.Int64

	mu      sync.Mutex
	samples []int64
}

// groups is a concurrent map of value tuples to their accumulators. Each
// accumulator is created exactly once, even when two workers see a new
// tuple at the same time.
type groups struct {
	m          sync.Map
	sampleSize int
}

func (g *groups) add(values []interface{}, row *core.Row, count int) {
	key := common.TupleKey(values)

	acc, ok := g.m.Load(key)
	if !ok {
		acc, _ = g.m.LoadOrStore(key, &group{values: append([]interface{}(nil), values...)})
	}
	grp := acc.(*group)
	grp.count.Add(int64(count))

	if g.sampleSize > 0 && row != nil {
		grp.mu.Lock()
		if len(grp.samples) < g.sampleSize {
			grp.samples = append(grp.samples, row.ID())
		}
		grp.mu.Unlock()
	}
}

// GroupCount is one distinct value tuple of a grouping result
type GroupCount struct {
	Values []interface{} `json:"values"`
	Count  int64         `json:"count"`
	// SampleRowIDs annotates the group with some of the rows it holds
	SampleRowIDs []int64 `json:"sample_row_ids,omitempty"`
}

// drain returns the groups sorted by count, most frequent first, then by
// values for a stable order. The accumulators are removed as they are read.
func (g *groups) drain() ([]GroupCount, int64) {
	var out []GroupCount
	var total int64
	g.m.Range(func(k, v interface{}) bool {
		g.m.Delete(k)
		grp := v.(*group)
		grp.mu.Lock()
		samples := append([]int64(nil), grp.samples...)
		grp.mu.Unlock()
		sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

		n := grp.count.Load()
		total += n
		out = append(out, GroupCount{Values: grp.values, Count: n, SampleRowIDs: samples})
		return true
	})

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return common.TupleKey(out[i].Values) < common.TupleKey(out[j].Values)
	})
	return out, total
}

type valueDistributionConfig struct {
	Top        int `json:"top" validate:"min=0"`
	SampleSize int `json:"sample_size" validate:"min=0,max=1000"`
}

// ValueDistributionResult lists the distinct value tuples of the inputs
type ValueDistributionResult struct {
	Columns  []string     `json:"columns"`
	Total    int64        `json:"total"`
	Distinct int          `json:"distinct"`
	Groups   []GroupCount `json:"groups"`
}

// ValueDistribution counts rows per distinct combination of input values
type ValueDistribution struct {
	common.Base
	config valueDistributionConfig
	groups *groups
}

func newValueDistribution(r *Registry, def Definition) (core.Component, error) {
	cfg := valueDistributionConfig{SampleSize: 5}
	if err := r.decode(def, &cfg); err != nil {
		return nil, err
	}
	return &ValueDistribution{
		Base:   r.base(def),
		config: cfg,
		groups: &groups{sampleSize: cfg.SampleSize},
	}, nil
}

func (a *ValueDistribution) Validate() error { return a.RequireInputs(1, -1) }

func (a *ValueDistribution) Run(_ context.Context, in core.Input, count int) error {
	a.groups.add(in.Values, in.Row, count)
	return nil
}

func (a *ValueDistribution) Result() (core.Result, error) {
	groups, total := a.groups.drain()
	res := &ValueDistributionResult{
		Columns:  a.Inputs(),
		Total:    total,
		Distinct: len(groups),
		Groups:   groups,
	}
	if a.config.Top > 0 && len(res.Groups) > a.config.Top {
		res.Groups = res.Groups[:a.config.Top]
	}
	return res, nil
}

type fillPatternConfig struct {
	SampleSize int `json:"sample_size" validate:"min=0,max=1000"`
}

// FillPatternResult groups rows by which inputs are filled
type FillPatternResult struct {
	Columns  []string     `json:"columns"`
	Total    int64        `json:"total"`
	Patterns []GroupCount `json:"patterns"`
}

// FillPattern classifies every input as FILLED, BLANK or NULL and counts
// rows per resulting pattern
type FillPattern struct {
	common.Base
	groups *groups
}

func newFillPattern(r *Registry, def Definition) (core.Component, error) {
	cfg := fillPatternConfig{SampleSize: 5}
	if err := r.decode(def, &cfg); err != nil {
		return nil, err
	}
	return &FillPattern{Base: r.base(def), groups: &groups{sampleSize: cfg.SampleSize}}, nil
}

func (a *FillPattern) Validate() error { return a.RequireInputs(1, -1) }

func (a *FillPattern) Run(_ context.Context, in core.Input, count int) error {
	pattern := make([]interface{}, len(in.Values))
	for i, v := range in.Values {
		switch {
		case v == nil:
			pattern[i] = Null
		case common.IsBlank(v):
			pattern[i] = Blank
		default:
			pattern[i] = Filled
		}
	}
	a.groups.add(pattern, in.Row, count)
	return nil
}

func (a *FillPattern) Result() (core.Result, error) {
	patterns, total := a.groups.drain()
	return &FillPatternResult{Columns: a.Inputs(), Total: total, Patterns: patterns}, nil
}
