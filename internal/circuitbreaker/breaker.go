// Package circuitbreaker guards calls to external databases with Sony's
// gobreaker
package circuitbreaker

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"analysis-engine/internal/common/errors"
	"analysis-engine/internal/common/logging"
)

// Config holds the configuration for a circuit breaker
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures int
	// Timeout is how long the circuit stays open before going half-open
	Timeout time.Duration
	// MaxConcurrentRequests is the number of requests allowed while half-open
	MaxConcurrentRequests int
}

// DefaultConfig is tuned for lookup queries against a database
func DefaultConfig() Config {
	return Config{
		MaxFailures:           5,
		Timeout:               30 * time.Second,
		MaxConcurrentRequests: 1,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.MaxFailures <= 0 {
		return fmt.Errorf("MaxFailures must be positive, got %d", c.MaxFailures)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("Timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("MaxConcurrentRequests must be positive, got %d", c.MaxConcurrentRequests)
	}
	return nil
}

// State represents the current state of the circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of a breaker. Failures and Successes count the
// current generation only; gobreaker resets them on every state change.
type Stats struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Failures  int    `json:"failures"`
	Successes int    `json:"successes"`
	Trips     int64  `json:"trips"`
}

// Breaker wraps a gobreaker circuit breaker
type Breaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker
	trips   atomic.Int64
}

// New creates a breaker; an invalid config falls back to DefaultConfig
func New(name string, config Config, logger logging.Logger) *Breaker {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if err := config.Validate(); err != nil {
		logger.Warn("Invalid circuit breaker config, using defaults",
			logging.String("name", name), logging.Err(err))
		config = DefaultConfig()
	}

	b := &Breaker{name: name}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(config.MaxConcurrentRequests),
		Interval:    time.Minute,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.MaxFailures)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				b.trips.Add(1)
			}
			logger.Info("Circuit breaker state changed",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Bad input is the caller's problem, not the database's
			switch errors.GetType(err) {
			case errors.ErrTypeValidation, errors.ErrTypeNotFound:
				return true
			}
			return stderrors.Is(err, context.Canceled)
		},
	}

	b.breaker = gobreaker.NewCircuitBreaker(settings)
	return b
}

// Execute runs fn unless the circuit is open
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.breaker.Execute(fn)

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, errors.DataSourceError(fmt.Sprintf("circuit breaker '%s' is open", b.name), err)
	}
	return result, err
}

// Name returns the breaker name
func (b *Breaker) Name() string { return b.name }

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	switch b.breaker.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Stats returns current statistics
func (b *Breaker) Stats() Stats {
	counts := b.breaker.Counts()
	return Stats{
		Name:      b.name,
		State:     b.State().String(),
		Failures:  int(counts.TotalFailures),
		Successes: int(counts.TotalSuccesses),
		Trips:     b.trips.Load(),
	}
}

// Manager hands out one breaker per name, so every node querying the same
// database trips the same circuit
type Manager struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	config   Config
	logger   logging.Logger
}

// NewManager creates a manager building breakers from config
func NewManager(config Config, logger logging.Logger) *Manager {
	return &Manager{
		breakers: make(map[string]*Breaker),
		config:   config,
		logger:   logger,
	}
}

// Get returns the breaker called name, creating it on first use
func (m *Manager) Get(name string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[name]; ok {
		return b
	}
	b := New(name, m.config, m.logger)
	m.breakers[name] = b
	return b
}

// AllStats returns the statistics of every breaker
func (m *Manager) AllStats() []Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make([]Stats, 0, len(m.breakers))
	for _, b := range m.breakers {
		stats = append(stats, b.Stats())
	}
	return stats
}
