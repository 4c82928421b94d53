package domain

import (
	"encoding/json"
	"time"
)

// Status tracks the lifecycle of a workflow instance.
type Status int

const (
	StatusPending   Status = 10 // Created, not yet activated
	StatusRunning   Status = 20 // At least one activation has happened
	StatusCompleted Status = 30 // Definition returned successfully
	StatusFailed    Status = 40 // Definition returned an error
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusRunning:
		return "Running"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsTerminal returns true if the instance has reached a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// WorkflowInstance is one durable, replayable execution of a workflow
// definition. Its current state is always a pure function of its history;
// the struct fields Status/Output/Error are a materialized view maintained
// by the engine.
type WorkflowInstance struct {
	ID           string
	Definition   string
	Status       Status
	Input        json.RawMessage
	Output       json.RawMessage
	ErrorMessage string

	// ParentID/ParentTaskID link a sub-orchestration back to the task slot
	// in its parent's history. Both are zero for top-level instances.
	ParentID     string
	ParentTaskID int

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// NewInstance creates a new top-level instance in Pending state.
func NewInstance(id, definition string, input json.RawMessage) *WorkflowInstance {
	now := time.Now().UTC()
	return &WorkflowInstance{
		ID:         id,
		Definition: definition,
		Status:     StatusPending,
		Input:      input,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
}

// NewChildInstance creates a sub-orchestration instance owned by a parent
// task slot.
func NewChildInstance(id, definition string, input json.RawMessage, parentID string, parentTaskID int) *WorkflowInstance {
	inst := NewInstance(id, definition, input)
	inst.ParentID = parentID
	inst.ParentTaskID = parentTaskID
	return inst
}

// IsChild returns true for sub-orchestration instances.
func (w *WorkflowInstance) IsChild() bool {
	return w.ParentID != ""
}

// MarkRunning transitions Pending -> Running.
func (w *WorkflowInstance) MarkRunning() error {
	if w.Status != StatusPending {
		return ErrInvalidState
	}
	w.Status = StatusRunning
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkCompleted records the definition's output and finalizes the instance.
func (w *WorkflowInstance) MarkCompleted(output json.RawMessage) error {
	if w.Status.IsTerminal() {
		return ErrInvalidState
	}
	w.Status = StatusCompleted
	w.Output = output
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed records the failure message and finalizes the instance.
func (w *WorkflowInstance) MarkFailed(msg string) error {
	if w.Status.IsTerminal() {
		return ErrInvalidState
	}
	w.Status = StatusFailed
	w.ErrorMessage = msg
	w.UpdatedAt = time.Now().UTC()
	return nil
}
