package logging

import (
	"context"
	"fmt"
	"time"
)

// NewDefaultLogger creates a console logger at info level writing to stdout
func NewDefaultLogger() Logger {
	logger, err := NewZapLogger(DefaultLogConfig())
	if err != nil {
		panic(fmt.Sprintf("failed to initialize default zap logger: %v", err))
	}
	return logger
}

// MustSync flushes buffered entries of a zap backed logger
func MustSync(logger Logger) {
	if zl, ok := logger.(*ZapAdapter); ok {
		_ = zl.Sync()
	}
}

type nopLogger struct{}

// NewNopLogger returns a Logger that discards everything
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...Field)               {}
func (nopLogger) Info(string, ...Field)                {}
func (nopLogger) Warn(string, ...Field)                {}
func (nopLogger) Error(string, error, ...Field)        {}
func (n nopLogger) WithFields(...Field) Logger         { return n }
func (n nopLogger) WithContext(context.Context) Logger { return n }

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Strings creates a string slice field
func Strings(key string, values []string) Field {
	return Field{Key: key, Value: values}
}

// Int creates an int field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field with key "error"
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}
