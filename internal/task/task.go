// Package task runs packing searches as asynchronous, cancellable tasks and
// keeps their state available to any number of concurrent readers.
package task

import (
	"context"
	"errors"
	"time"

	"github.com/piwi3910/CrateFit/internal/model"
)

var (
	// ErrNotFound is returned for an unknown task identifier.
	ErrNotFound = errors.New("task not found")
	// ErrTerminal is returned when cancelling a task that already finished.
	ErrTerminal = errors.New("task already finished")
	// ErrInvalidRequest is returned by Submit for malformed input.
	ErrInvalidRequest = errors.New("invalid task request")
)

// Status represents the states a task can be in.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true if no further state transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Request is one packing job.
type Request struct {
	Container model.Dimensions
	Items     []model.Item
	Settings  model.PackSettings
}

// Snapshot is a consistent copy of a task's state. Result pointers refer to
// published values that are never modified afterwards.
type Snapshot struct {
	ID                 string            `json:"id"`
	Status             Status            `json:"status"`
	Progress           float64           `json:"progress"`
	StartTime          time.Time         `json:"start_time"`
	EndTime            *time.Time        `json:"end_time,omitempty"`
	ExecutionTime      *float64          `json:"execution_time,omitempty"`
	CancelRequested    bool              `json:"cancel_requested,omitempty"`
	ItemCount          int               `json:"item_count"`
	Container          model.Dimensions  `json:"container"`
	Algorithm          model.Algorithm   `json:"algorithm"`
	IntermediateResult *model.PackResult `json:"intermediate_result,omitempty"`
	Result             *model.PackResult `json:"result,omitempty"`
}

// Summary is the list view of a task, without result payloads.
type Summary struct {
	ID        string     `json:"id"`
	Status    Status     `json:"status"`
	Progress  float64    `json:"progress"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	ItemCount int        `json:"item_count"`
}

func (s Snapshot) Summary() Summary {
	return Summary{
		ID:        s.ID,
		Status:    s.Status,
		Progress:  s.Progress,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		ItemCount: s.ItemCount,
	}
}

// Archive stores terminal snapshots beyond the life of the process.
type Archive interface {
	Save(ctx context.Context, snap Snapshot) error
	// Load returns ErrNotFound for unknown ids.
	Load(ctx context.Context, id string) (Snapshot, error)
	List(ctx context.Context) ([]Snapshot, error)
}
