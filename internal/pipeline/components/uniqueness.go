package components

import (
	"context"
	"sync"

	"github.com/zeebo/xxh3"

	"analysis-engine/internal/pipeline/common"
	"analysis-engine/internal/pipeline/core"
)

const TypeUniqueness = "uniqueness"

const uniquenessShards = 32

// UniquenessResult tells how many value tuples occur once and how many
// repeat
type UniquenessResult struct {
	Total        int64 `json:"total"`
	Distinct     int64 `json:"distinct"`
	Unique       int64 `json:"unique"`
	Repeated     int64 `json:"repeated"`
	RepeatedRows int64 `json:"repeated_rows"`
}

type uniquenessShard struct {
	mu     sync.Mutex
	counts map[uint64]int64
}

// Uniqueness counts value tuples by their xxh3 hash in sharded maps
type Uniqueness struct {
	common.Base
	shards [uniquenessShards]uniquenessShard
}

func newUniqueness(r *Registry, def Definition) (core.Component, error) {
	var cfg struct{}
	if err := r.decode(def, &cfg); err != nil {
		return nil, err
	}
	a := &Uniqueness{Base: r.base(def)}
	for i := range a.shards {
		a.shards[i].counts = make(map[uint64]int64)
	}
	return a, nil
}

func (a *Uniqueness) Validate() error { return a.RequireInputs(1, -1) }

func (a *Uniqueness) Run(_ context.Context, in core.Input, count int) error {
	h := xxh3.HashString(common.TupleKey(in.Values))
	s := &a.shards[h%uniquenessShards]
	s.mu.Lock()
	s.counts[h] += int64(count)
	s.mu.Unlock()
	return nil
}

// Result reports the counts and resets the shards
func (a *Uniqueness) Result() (core.Result, error) {
	res := &UniquenessResult{}
	for i := range a.shards {
		s := &a.shards[i]
		s.mu.Lock()
		counts := s.counts
		s.counts = make(map[uint64]int64)
		s.mu.Unlock()

		for _, n := range counts {
			res.Total += n
			res.Distinct++
			if n == 1 {
				res.Unique++
			} else {
				res.Repeated++
				res.RepeatedRows += n
			}
		}
	}
	return res, nil
}
