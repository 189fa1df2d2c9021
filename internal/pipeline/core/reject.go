package core

import (
	"context"
	"sync"
	"time"
)

// RejectedRow is a row a capture-and-continue node failed on, with enough
// context to replay it.
type RejectedRow struct {
	ExecutionID string                 `json:"execution_id"`
	NodeID      string                 `json:"node_id"`
	Table       string                 `json:"table"`
	RowID       int64                  `json:"row_id"`
	Values      map[string]interface{} `json:"values"`
	Error       string                 `json:"error"`
	RejectedAt  time.Time              `json:"rejected_at"`
}

// RejectSink stores rejected rows. Location identifies where they went so
// callers can find them after the execution.
type RejectSink interface {
	Capture(ctx context.Context, row RejectedRow) error
	Location() string
}

// MemoryRejectSink keeps rejected rows in memory
type MemoryRejectSink struct {
	mu   sync.Mutex
	rows []RejectedRow
}

// NewMemoryRejectSink creates an empty in-memory sink
func NewMemoryRejectSink() *MemoryRejectSink {
	return &MemoryRejectSink{}
}

func (s *MemoryRejectSink) Capture(_ context.Context, row RejectedRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

func (s *MemoryRejectSink) Location() string { return "memory" }

// Rows returns the captured rows of an execution, or all rows when
// executionID is empty
func (s *MemoryRejectSink) Rows(executionID string) []RejectedRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RejectedRow, 0, len(s.rows))
	for _, r := range s.rows {
		if executionID == "" || r.ExecutionID == executionID {
			out = append(out, r)
		}
	}
	return out
}
