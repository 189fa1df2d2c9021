package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingListener struct {
	NopListener
	begins int
}

func (c *countingListener) JobBegin(*Execution) { c.begins++ }

func TestMultiListener_IsolatesPanics(t *testing.T) {
	before := &countingListener{}
	after := &countingListener{}
	m := NewMultiListener(nil, before, panicListener{}, nil, after)

	assert.NotPanics(t, func() { m.JobBegin(nil) })
	assert.Equal(t, 1, before.begins)
	assert.Equal(t, 1, after.begins, "listeners after a panicking one still run")
}
