package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of a node
type State int32

const (
	StateCreated State = iota
	StateInitialized
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Lifecycle guards a component's Initialize and Close hooks so each runs at
// most once, whatever the number of callers. Close on a component that was
// never initialized only moves the state to closed.
type Lifecycle struct {
	component Component
	state     atomic.Int32

	initOnce  sync.Once
	initErr   error
	closeOnce sync.Once
	closeErr  error
}

// NewLifecycle wraps c in the created state
func NewLifecycle(c Component) *Lifecycle {
	return &Lifecycle{component: c}
}

// State returns the current state
func (l *Lifecycle) State() State {
	return State(l.state.Load())
}

// Initialize calls the component's Initialize the first time and returns
// that call's error on every call
func (l *Lifecycle) Initialize(ctx context.Context) error {
	l.initOnce.Do(func() {
		if l.State() != StateCreated {
			l.initErr = fmt.Errorf("cannot initialize a %s component", l.State())
			return
		}
		if err := l.component.Initialize(ctx); err != nil {
			l.initErr = err
			return
		}
		l.state.CompareAndSwap(int32(StateCreated), int32(StateInitialized))
	})
	return l.initErr
}

// MarkRunning moves an initialized component to running
func (l *Lifecycle) MarkRunning() bool {
	return l.state.CompareAndSwap(int32(StateInitialized), int32(StateRunning))
}

// Close calls the component's Close once, and only if Initialize succeeded
func (l *Lifecycle) Close() error {
	l.closeOnce.Do(func() {
		prev := State(l.state.Swap(int32(StateClosed)))
		if prev == StateInitialized || prev == StateRunning {
			l.closeErr = l.component.Close()
		}
	})
	return l.closeErr
}
