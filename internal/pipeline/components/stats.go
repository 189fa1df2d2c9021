package components

import (
	"context"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"analysis-engine/internal/pipeline/common"
	"analysis-engine/internal/pipeline/core"
)

const (
	TypeStringStats = "string_stats"
	TypeNumberStats = "number_stats"
	TypeRowCount    = "row_count"
)

// StringStats describes the text of one column
type StringStats struct {
	Count     int64   `json:"count"`
	Nulls     int64   `json:"nulls"`
	Blanks    int64   `json:"blanks"`
	MinLength int     `json:"min_length"`
	MaxLength int     `json:"max_length"`
	AvgLength float64 `json:"avg_length"`
	Uppercase int64   `json:"uppercase_chars"`
	Lowercase int64   `json:"lowercase_chars"`
	Digits    int64   `json:"digit_chars"`
	Words     int64   `json:"words"`

	totalLength int64
}

func (s *StringStats) add(v interface{}, count int64) {
	s.Count += count
	if v == nil {
		s.Nulls += count
		return
	}
	str := common.ToString(v)
	if strings.TrimSpace(str) == "" {
		s.Blanks += count
	}

	length := utf8.RuneCountInString(str)
	if s.Count == s.Nulls+count || length < s.MinLength {
		s.MinLength = length
	}
	if length > s.MaxLength {
		s.MaxLength = length
	}
	s.totalLength += int64(length) * count

	for _, r := range str {
		switch {
		case unicode.IsUpper(r):
			s.Uppercase += count
		case unicode.IsLower(r):
			s.Lowercase += count
		case unicode.IsDigit(r):
			s.Digits += count
		}
	}
	s.Words += int64(len(strings.Fields(str))) * count
}

// StringStatsAnalyzer profiles the text of each input column
type StringStatsAnalyzer struct {
	common.Base
	mu    sync.Mutex
	stats []StringStats
}

func newStringStats(r *Registry, def Definition) (core.Component, error) {
	var cfg struct{}
	if err := r.decode(def, &cfg); err != nil {
		return nil, err
	}
	return &StringStatsAnalyzer{Base: r.base(def), stats: make([]StringStats, len(def.Inputs))}, nil
}

func (a *StringStatsAnalyzer) Validate() error { return a.RequireInputs(1, -1) }

func (a *StringStatsAnalyzer) Run(_ context.Context, in core.Input, count int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.stats {
		a.stats[i].add(in.Value(i), int64(count))
	}
	return nil
}

// Result maps each input column to its stats
func (a *StringStatsAnalyzer) Result() (core.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]StringStats, len(a.stats))
	for i, s := range a.stats {
		if filled := s.Count - s.Nulls; filled > 0 {
			s.AvgLength = float64(s.totalLength) / float64(filled)
		}
		out[a.Inputs()[i]] = s
	}
	return out, nil
}

// NumberStats describes the numbers of one column
type NumberStats struct {
	Count      int64    `json:"count"`
	Nulls      int64    `json:"nulls"`
	NonNumeric int64    `json:"non_numeric"`
	Min        *float64 `json:"min"`
	Max        *float64 `json:"max"`
	Sum        float64  `json:"sum"`
	Mean       *float64 `json:"mean"`

	numeric int64
}

func (s *NumberStats) add(v interface{}, count int64) {
	s.Count += count
	if v == nil {
		s.Nulls += count
		return
	}
	n, err := common.ToFloat64(v)
	if err != nil || math.IsNaN(n) {
		s.NonNumeric += count
		return
	}
	if s.Min == nil || n < *s.Min {
		s.Min = &n
	}
	if s.Max == nil || n > *s.Max {
		max := n
		s.Max = &max
	}
	s.Sum += n * float64(count)
	s.numeric += count
}

// NumberStatsAnalyzer profiles the numbers of each input column. Values
// that do not parse as numbers are counted, not failed on.
type NumberStatsAnalyzer struct {
	common.Base
	mu    sync.Mutex
	stats []NumberStats
}

func newNumberStats(r *Registry, def Definition) (core.Component, error) {
	var cfg struct{}
	if err := r.decode(def, &cfg); err != nil {
		return nil, err
	}
	return &NumberStatsAnalyzer{Base: r.base(def), stats: make([]NumberStats, len(def.Inputs))}, nil
}

func (a *NumberStatsAnalyzer) Validate() error { return a.RequireInputs(1, -1) }

func (a *NumberStatsAnalyzer) Run(_ context.Context, in core.Input, count int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.stats {
		a.stats[i].add(in.Value(i), int64(count))
	}
	return nil
}

// Result maps each input column to its stats
func (a *NumberStatsAnalyzer) Result() (core.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]NumberStats, len(a.stats))
	for i, s := range a.stats {
		if s.numeric > 0 {
			mean := s.Sum / float64(s.numeric)
			s.Mean = &mean
		}
		out[a.Inputs()[i]] = s
	}
	return out, nil
}

// RowCount counts the rows reaching it; put it behind a requirement to
// count a category
type RowCount struct {
	common.Base
	rows atomic.Int64
}

func newRowCount(r *Registry, def Definition) (core.Component, error) {
	var cfg struct{}
	if err := r.decode(def, &cfg); err != nil {
		return nil, err
	}
	return &RowCount{Base: r.base(def)}, nil
}

// Validate needs one input to tie the node to a table
func (a *RowCount) Validate() error { return a.RequireInputs(1, -1) }

func (a *RowCount) Run(_ context.Context, _ core.Input, count int) error {
	a.rows.Add(int64(count))
	return nil
}

func (a *RowCount) Result() (core.Result, error) {
	return a.rows.Load(), nil
}
