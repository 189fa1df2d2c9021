// Package components holds the filters, transformers and analyzers a job
// definition can name, and the registry that builds them.
package components

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"analysis-engine/internal/circuitbreaker"
	"analysis-engine/internal/common/validation"
	"analysis-engine/internal/pipeline/common"
	"analysis-engine/internal/pipeline/core"
	"analysis-engine/internal/pipeline/errors"
	"analysis-engine/internal/pipeline/expression"
)

// Definition is what a factory receives to build one node's component
type Definition struct {
	ID     string
	Type   string
	Inputs []string
	Config json.RawMessage
}

// Factory builds a component from its definition
type Factory func(r *Registry, def Definition) (core.Component, error)

// Registry maps component types to factories. It is bound to one
// environment; components built through it share the environment's
// databases, cache and logger plus the registry's expression programs and
// circuit breakers.
type Registry struct {
	env       *core.Environment
	validator *validation.CentralizedValidator
	evaluator *expression.Evaluator
	breakers  *circuitbreaker.Manager

	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry with every built-in component type
func NewRegistry(env *core.Environment) *Registry {
	if env == nil {
		env = core.NewEnvironment()
	}
	v := env.Validator
	if v == nil {
		v = validation.NewCentralizedValidator()
	}

	r := &Registry{
		env:       env,
		validator: v,
		evaluator: expression.NewEvaluator(30 * time.Minute),
		breakers:  circuitbreaker.NewManager(circuitbreaker.DefaultConfig(), env.Logger),
		factories: make(map[string]Factory),
	}
	for typ, f := range builtins() {
		r.factories[typ] = f
	}
	return r
}

func builtins() map[string]Factory {
	return map[string]Factory{
		TypeNullCheck:         newNullCheck,
		TypeExpression:        newExpressionFilter,
		TypeNumberRange:       newNumberRange,
		TypeCase:              newCaseTransformer,
		TypeConcatenate:       newConcatenate,
		TypeTokenizer:         newTokenizer,
		TypeNormalize:         newNormalize,
		TypeHTMLStrip:         newHTMLStrip,
		TypeJavaScript:        newJavaScript,
		TypeLookup:            newLookup,
		TypeValueDistribution: newValueDistribution,
		TypeFillPattern:       newFillPattern,
		TypeUniqueness:        newUniqueness,
		TypeStringStats:       newStringStats,
		TypeNumberStats:       newNumberStats,
		TypeRowCount:          newRowCount,
		TypeInsertIntoTable:   newInsertIntoTable,
	}
}

// Register adds a component type. Registering a taken type is an error.
func (r *Registry) Register(typ string, f Factory) error {
	if typ == "" || f == nil {
		return fmt.Errorf("component type and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[typ]; exists {
		return fmt.Errorf("component type already registered: %s", typ)
	}
	r.factories[typ] = f
	return nil
}

// Create builds the component of def. Unknown types and invalid configs
// come back as *errors.ConfigurationError.
func (r *Registry) Create(def Definition) (core.Component, error) {
	r.mu.RLock()
	f, ok := r.factories[def.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.NewConfigurationError(def.ID, def.Type, "unknown component type", nil)
	}

	c, err := f(r, def)
	if err != nil {
		if _, isCfg := err.(*errors.ConfigurationError); isCfg {
			return nil, err
		}
		return nil, errors.NewConfigurationError(def.ID, def.Type, "cannot create component", err)
	}
	return c, nil
}

// Types returns the registered component types, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Environment returns the environment components are built for
func (r *Registry) Environment() *core.Environment { return r.env }

// Evaluator returns the shared expression evaluator
func (r *Registry) Evaluator() *expression.Evaluator { return r.evaluator }

// Breakers returns the circuit breakers of the databases components query
func (r *Registry) Breakers() *circuitbreaker.Manager { return r.breakers }

// base builds the embedded Base of a component for def
func (r *Registry) base(def Definition) common.Base {
	return common.NewBase(def.ID, def.Type, def.Inputs, r.env.Logger)
}

// decode fills cfg from def's JSON config, rejecting unknown fields, and
// validates it. cfg should hold its defaults already.
func (r *Registry) decode(def Definition, cfg interface{}) error {
	raw := bytes.TrimSpace(def.Config)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return errors.NewConfigurationError(def.ID, def.Type, "invalid configuration", err)
		}
	}
	if err := r.validator.ValidateStruct(cfg); err != nil {
		return errors.NewConfigurationError(def.ID, def.Type, "invalid configuration", err)
	}
	return nil
}

// parseDuration reads an optional duration already checked by the
// `duration` validation tag
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
