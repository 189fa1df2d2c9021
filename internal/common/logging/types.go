// Package logging provides structured logging types and interfaces
package logging

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string to a LogLevel, defaulting to InfoLevel
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return DebugLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Format selects the zap encoder
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// Logger defines the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
	WithFields(fields ...Field) Logger
	WithContext(ctx context.Context) Logger
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level      LogLevel
	Format     Format
	Output     io.Writer
	TimeFormat string
	Name       string
}

// DefaultLogConfig returns the configuration used when nothing is set
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      InfoLevel,
		Format:     FormatConsole,
		TimeFormat: time.RFC3339,
	}
}

type contextKey string

const (
	executionIDKey contextKey = "execution_id"
	jobIDKey       contextKey = "job_id"
)

// ContextWithExecution tags ctx so WithContext adds the job and execution IDs.
func ContextWithExecution(ctx context.Context, jobID, executionID string) context.Context {
	ctx = context.WithValue(ctx, jobIDKey, jobID)
	return context.WithValue(ctx, executionIDKey, executionID)
}

func fieldsFromContext(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}
	var fields []Field
	if id, ok := ctx.Value(jobIDKey).(string); ok && id != "" {
		fields = append(fields, String("job_id", id))
	}
	if id, ok := ctx.Value(executionIDKey).(string); ok && id != "" {
		fields = append(fields, String("execution_id", id))
	}
	return fields
}

var (
	globalLogger Logger
	globalMu     sync.RWMutex
)

// SetGlobalLogger replaces the process logger returned by GetGlobalLogger
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the process logger, or a nop logger if none was set
func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return NewNopLogger()
	}
	return globalLogger
}
