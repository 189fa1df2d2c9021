// Package errors holds the error taxonomy of job construction and execution.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrExecutionCancelled is recorded on an execution stopped through Cancel
var ErrExecutionCancelled = errors.New("execution cancelled")

// FaultKind names a class of graph fault
type FaultKind string

const (
	FaultUnresolvedColumn   FaultKind = "unresolved_column"
	FaultCycle              FaultKind = "cycle"
	FaultMixedTables        FaultKind = "mixed_tables"
	FaultDuplicateNode      FaultKind = "duplicate_node"
	FaultDuplicateColumn    FaultKind = "duplicate_column"
	FaultInvalidRequirement FaultKind = "invalid_requirement"
	FaultAmbiguousFanOut    FaultKind = "ambiguous_fan_out"
	FaultNoSourceTable      FaultKind = "no_source_table"
)

// GraphFault is one problem found while building a job graph
type GraphFault struct {
	Kind    FaultKind `json:"kind"`
	NodeID  string    `json:"node_id,omitempty"`
	Column  string    `json:"column,omitempty"`
	Tables  []string  `json:"tables,omitempty"`
	Path    []string  `json:"path,omitempty"`
	Message string    `json:"message"`
}

func (f GraphFault) String() string {
	if f.NodeID == "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("%s: node '%s': %s", f.Kind, f.NodeID, f.Message)
}

// GraphError lists every fault found in a job graph. It is returned only
// when at least one fault exists.
type GraphError struct {
	Faults []GraphFault `json:"faults"`
}

func (e *GraphError) Error() string {
	parts := make([]string, len(e.Faults))
	for i, f := range e.Faults {
		parts[i] = f.String()
	}
	return fmt.Sprintf("invalid job graph (%d fault(s)): %s", len(e.Faults), strings.Join(parts, "; "))
}

// Add appends a fault
func (e *GraphError) Add(f GraphFault) {
	e.Faults = append(e.Faults, f)
}

// Has reports whether a fault of kind was recorded
func (e *GraphError) Has(kind FaultKind) bool {
	for _, f := range e.Faults {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// OrNil returns e when it holds faults and nil otherwise
func (e *GraphError) OrNil() error {
	if e == nil || len(e.Faults) == 0 {
		return nil
	}
	sort.SliceStable(e.Faults, func(i, j int) bool {
		if e.Faults[i].Kind != e.Faults[j].Kind {
			return e.Faults[i].Kind < e.Faults[j].Kind
		}
		return e.Faults[i].NodeID < e.Faults[j].NodeID
	})
	return e
}

// ConfigurationError is raised by a component's pre-execution check and
// stops the job before any row is read.
type ConfigurationError struct {
	NodeID  string
	Type    string
	Message string
	Inner   error
}

func (e *ConfigurationError) Error() string {
	msg := e.Message
	if e.Inner != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Inner)
	}
	if e.NodeID == "" {
		return fmt.Sprintf("configuration error: %s", msg)
	}
	return fmt.Sprintf("configuration error in node '%s' (%s): %s", e.NodeID, e.Type, msg)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Inner
}

// NewConfigurationError creates a ConfigurationError for a node
func NewConfigurationError(nodeID, componentType, message string, inner error) *ConfigurationError {
	return &ConfigurationError{NodeID: nodeID, Type: componentType, Message: message, Inner: inner}
}

// RowError is a failure of one node on one row. Values holds the row as the
// node saw it so the row can be reconstructed.
type RowError struct {
	NodeID string
	Table  string
	RowID  int64
	Values map[string]interface{}
	Inner  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("node '%s' failed on row %d of table '%s': %v", e.NodeID, e.RowID, e.Table, e.Inner)
}

func (e *RowError) Unwrap() error {
	return e.Inner
}

// NewRowError creates a RowError
func NewRowError(nodeID, table string, rowID int64, values map[string]interface{}, inner error) *RowError {
	return &RowError{NodeID: nodeID, Table: table, RowID: rowID, Values: values, Inner: inner}
}

// UnknownError is a failure outside any node, such as a lost data source
type UnknownError struct {
	Message string
	Inner   error
}

func (e *UnknownError) Error() string {
	if e.Inner == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Inner)
}

func (e *UnknownError) Unwrap() error {
	return e.Inner
}

// NewUnknownError creates an UnknownError
func NewUnknownError(message string, inner error) *UnknownError {
	return &UnknownError{Message: message, Inner: inner}
}

// IsGraphError reports whether err wraps a *GraphError
func IsGraphError(err error) bool {
	var ge *GraphError
	return errors.As(err, &ge)
}

// IsConfigurationError reports whether err wraps a *ConfigurationError
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsRowError reports whether err wraps a *RowError
func IsRowError(err error) bool {
	var re *RowError
	return errors.As(err, &re)
}

// IsUnknownError reports whether err wraps an *UnknownError
func IsUnknownError(err error) bool {
	var ue *UnknownError
	return errors.As(err, &ue)
}
