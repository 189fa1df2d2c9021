package core

import (
	"fmt"
	"runtime"
	"time"

	"analysis-engine/internal/common/logging"
	"analysis-engine/internal/common/validation"
)

// Settings tune the execution of jobs
type Settings struct {
	// Workers is the size of the worker pool; 1 gives a deterministic
	// single-threaded run
	Workers int
	// BufferSize bounds the rows waiting for a worker
	BufferSize int
	// ProgressEvery reports progress every N processed rows
	ProgressEvery int
	// ProgressInterval also reports progress when this much time passed
	// since the last report
	ProgressInterval time.Duration
}

// DefaultSettings uses all available CPUs
func DefaultSettings() Settings {
	workers := runtime.NumCPU()
	return Settings{
		Workers:          workers,
		BufferSize:       workers * 4,
		ProgressEvery:    1000,
		ProgressInterval: 5 * time.Second,
	}
}

// Environment is the context shared by job construction and execution in
// one process. It replaces package level state: everything a component or
// the executor needs from the outside comes through here.
type Environment struct {
	Settings  Settings
	Logger    logging.Logger
	Validator *validation.CentralizedValidator
	Rejects   RejectSink
	Cache     Cache
	Databases map[string]*Database
}

// NewEnvironment returns an environment with default settings, a nop
// logger and an in-memory reject sink
func NewEnvironment() *Environment {
	return &Environment{
		Settings:  DefaultSettings(),
		Logger:    logging.NewNopLogger(),
		Validator: validation.NewCentralizedValidator(),
		Rejects:   NewMemoryRejectSink(),
		Databases: make(map[string]*Database),
	}
}

// Database returns the named database
func (e *Environment) Database(name string) (*Database, error) {
	db, ok := e.Databases[name]
	if !ok || db == nil || db.DB == nil {
		return nil, fmt.Errorf("database '%s' is not configured", name)
	}
	return db, nil
}

func (e *Environment) normalize() {
	if e.Settings.Workers <= 0 {
		e.Settings.Workers = runtime.NumCPU()
	}
	if e.Settings.BufferSize <= 0 {
		e.Settings.BufferSize = e.Settings.Workers * 4
	}
	if e.Settings.ProgressEvery <= 0 {
		e.Settings.ProgressEvery = 1000
	}
	if e.Logger == nil {
		e.Logger = logging.NewNopLogger()
	}
	if e.Validator == nil {
		e.Validator = validation.NewCentralizedValidator()
	}
	if e.Rejects == nil {
		e.Rejects = NewMemoryRejectSink()
	}
}
