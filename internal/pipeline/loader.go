package pipeline

import (
	"bytes"
	"context"
	"encoding/json"

	"analysis-engine/internal/common/validation"
	"analysis-engine/internal/pipeline/components"
	"analysis-engine/internal/pipeline/core"
	"analysis-engine/internal/pipeline/errors"
)

// JobDefinition is the JSON form of a job
type JobDefinition struct {
	ID         string                `json:"id" validate:"required,identifier"`
	Name       string                `json:"name"`
	Components []ComponentDefinition `json:"components" validate:"required,min=1,dive"`
}

// ComponentDefinition declares one node of a job definition
type ComponentDefinition struct {
	ID       string          `json:"id" validate:"required,identifier"`
	Type     string          `json:"type" validate:"required"`
	Inputs   []string        `json:"inputs"`
	Requires []Requirement   `json:"requires,omitempty" validate:"dive"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// Requirement names a filter outcome a component needs; a component with
// several runs when any of them holds
type Requirement struct {
	Filter   string `json:"filter" validate:"required"`
	Category string `json:"category" validate:"required"`
}

// ParseJobDefinition decodes and validates a JSON job definition
func ParseJobDefinition(data []byte, v *validation.CentralizedValidator) (*JobDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.NewConfigurationError("", "", "job definition is empty", nil)
	}

	var def JobDefinition
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&def); err != nil {
		return nil, errors.NewConfigurationError("", "", "invalid job definition", err)
	}
	if err := def.Validate(v); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the shape of the definition; the graph itself is
// checked when the job is built
func (d *JobDefinition) Validate(v *validation.CentralizedValidator) error {
	if v == nil {
		v = validation.NewCentralizedValidator()
	}
	if err := v.ValidateStruct(d); err != nil {
		return errors.NewConfigurationError("", "", "invalid job definition", err)
	}
	return nil
}

// Build creates the components of the definition through registry and
// validates the resulting graph against source
func (d *JobDefinition) Build(ctx context.Context, registry *components.Registry, source core.DataSource) (*core.Job, error) {
	nodes := make([]core.NodeDefinition, 0, len(d.Components))
	for _, c := range d.Components {
		component, err := registry.Create(components.Definition{
			ID:     c.ID,
			Type:   c.Type,
			Inputs: c.Inputs,
			Config: c.Config,
		})
		if err != nil {
			return nil, err
		}

		var req core.Requirement
		for _, r := range c.Requires {
			req = append(req, core.Outcome{FilterID: r.Filter, Category: r.Category})
		}
		nodes = append(nodes, core.NodeDefinition{
			ID:          c.ID,
			Component:   component,
			Inputs:      c.Inputs,
			Requirement: req,
		})
	}

	return core.BuildJob(ctx, source, core.JobSpec{ID: d.ID, Name: d.Name, Nodes: nodes})
}
