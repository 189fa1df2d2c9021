// Package common provides shared building blocks for pipeline components
package common

import (
	"context"
	"fmt"

	"analysis-engine/internal/common/logging"
	"analysis-engine/internal/pipeline/errors"
)

// Base carries the identity of a component instance and no-op lifecycle
// hooks. Concrete components embed it and override what they need.
type Base struct {
	id            string
	componentType string
	inputs        []string

	// Logger is scoped to the component
	Logger logging.Logger
}

// NewBase creates a Base for the node id of the given component type
func NewBase(id, componentType string, inputs []string, logger logging.Logger) Base {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return Base{
		id:            id,
		componentType: componentType,
		inputs:        append([]string(nil), inputs...),
		Logger: logger.WithFields(
			logging.String("node_id", id),
			logging.String("component", componentType)),
	}
}

// ID returns the node ID the component was built for
func (b *Base) ID() string { return b.id }

// Type returns the component type
func (b *Base) Type() string { return b.componentType }

// Inputs returns the input columns the component was built for
func (b *Base) Inputs() []string { return b.inputs }

func (b *Base) Validate() error                  { return nil }
func (b *Base) Initialize(context.Context) error { return nil }
func (b *Base) Close() error                     { return nil }

// ConfigError builds a configuration error for this component
func (b *Base) ConfigError(format string, args ...interface{}) error {
	return errors.NewConfigurationError(b.id, b.componentType, fmt.Sprintf(format, args...), nil)
}

// RequireInputs checks the number of inputs against [min, max]; max < 0
// means unbounded
func (b *Base) RequireInputs(min, max int) error {
	n := len(b.inputs)
	switch {
	case n < min:
		return b.ConfigError("needs at least %d input column(s), got %d", min, n)
	case max >= 0 && n > max:
		return b.ConfigError("accepts at most %d input column(s), got %d", max, n)
	}
	return nil
}

// OutputNames returns configured when it is set, or default names derived
// from the node ID: the ID itself for a single output, ID_1..ID_n otherwise.
func (b *Base) OutputNames(configured []string, n int) []string {
	if len(configured) > 0 {
		return configured
	}
	if n == 1 {
		return []string{b.id}
	}
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s_%d", b.id, i+1)
	}
	return out
}
