// Package errors defines the application level error type shared by the
// config, storage, datastore and HTTP layers.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType classifies an AppError
type ErrorType string

const (
	ErrTypeConfig     ErrorType = "config"
	ErrTypeValidation ErrorType = "validation"
	ErrTypeNotFound   ErrorType = "not_found"
	ErrTypeConflict   ErrorType = "conflict"
	ErrTypeDataSource ErrorType = "datasource"
	ErrTypeStorage    ErrorType = "storage"
	ErrTypeInternal   ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		kv := make([]string, 0, len(keys))
		for _, k := range keys {
			kv = append(kv, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(kv, ", ")))
	}
	return strings.Join(parts, ": ")
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds a key to the error context and returns the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// ConfigError creates a configuration error
func ConfigError(msg string) *AppError {
	return &AppError{Type: ErrTypeConfig, Message: msg}
}

// ValidationError creates a validation error
func ValidationError(msg string) *AppError {
	return &AppError{Type: ErrTypeValidation, Message: msg}
}

// NotFoundError creates a not found error for resource
func NotFoundError(resource string) *AppError {
	return &AppError{Type: ErrTypeNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// ConflictError creates a conflict error
func ConflictError(msg string) *AppError {
	return &AppError{Type: ErrTypeConflict, Message: msg}
}

// DataSourceError wraps a failure reading from a data source
func DataSourceError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeDataSource, Message: msg, Cause: cause}
}

// StorageError wraps a failure writing to a storage backend
func StorageError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeStorage, Message: msg, Cause: cause}
}

// InternalError creates an internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeInternal, Message: msg, Cause: cause}
}

// IsType reports whether any AppError in err's chain has the given type
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == errType
}

// GetType returns the type of the first AppError in err's chain, or
// ErrTypeInternal when there is none
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrTypeInternal
}
