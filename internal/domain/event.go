package domain

import (
	"encoding/json"
	"time"
)

// EventType identifies one kind of durable history fact.
type EventType string

const (
	EventTaskScheduled             EventType = "TaskScheduled"
	EventTaskCompleted             EventType = "TaskCompleted"
	EventTaskFailed                EventType = "TaskFailed"
	EventSubOrchestrationScheduled EventType = "SubOrchestrationScheduled"
	EventSubOrchestrationCompleted EventType = "SubOrchestrationCompleted"
	EventSubOrchestrationFailed    EventType = "SubOrchestrationFailed"
)

// IsScheduling returns true for events recording a scheduling decision.
func (t EventType) IsScheduling() bool {
	return t == EventTaskScheduled || t == EventSubOrchestrationScheduled
}

// IsTerminal returns true for events that resolve a task slot.
func (t EventType) IsTerminal() bool {
	switch t {
	case EventTaskCompleted, EventTaskFailed,
		EventSubOrchestrationCompleted, EventSubOrchestrationFailed:
		return true
	}
	return false
}

// Event is one immutable, ordered entry in an instance's history. The
// history is append-only and is the single source of truth for replay:
// Seq orders events within an instance, TaskID ties completions back to
// scheduling decisions.
type Event struct {
	InstanceID string
	Seq        int
	Type       EventType
	TaskID     int
	Activity   string // activity name (tasks) or definition name (sub-orchestrations)
	ChildID    string // child instance ID for SubOrchestration* events
	Payload    json.RawMessage
	At         time.Time
}

// Failure is the payload recorded with TaskFailed and
// SubOrchestrationFailed events.
type Failure struct {
	Message string `json:"message"`
}

// FailurePayload marshals a failure message for a terminal event.
func FailurePayload(msg string) json.RawMessage {
	raw, _ := json.Marshal(Failure{Message: msg})
	return raw
}

// FailureMessage extracts the message from a failure payload.
func FailureMessage(payload json.RawMessage) string {
	var f Failure
	if err := json.Unmarshal(payload, &f); err != nil {
		return string(payload)
	}
	return f.Message
}

// NewTaskScheduled records the decision to dispatch an activity.
func NewTaskScheduled(instanceID string, taskID int, activity string, input json.RawMessage) *Event {
	return &Event{
		InstanceID: instanceID,
		Type:       EventTaskScheduled,
		TaskID:     taskID,
		Activity:   activity,
		Payload:    input,
		At:         time.Now().UTC(),
	}
}

// NewTaskCompleted records an activity's successful output.
func NewTaskCompleted(instanceID string, taskID int, output json.RawMessage) *Event {
	return &Event{
		InstanceID: instanceID,
		Type:       EventTaskCompleted,
		TaskID:     taskID,
		Payload:    output,
		At:         time.Now().UTC(),
	}
}

// NewTaskFailed records an activity failure.
func NewTaskFailed(instanceID string, taskID int, msg string) *Event {
	return &Event{
		InstanceID: instanceID,
		Type:       EventTaskFailed,
		TaskID:     taskID,
		Payload:    FailurePayload(msg),
		At:         time.Now().UTC(),
	}
}

// NewSubOrchestrationScheduled records the decision to spawn a child
// instance for a task slot.
func NewSubOrchestrationScheduled(instanceID string, taskID int, definition, childID string, input json.RawMessage) *Event {
	return &Event{
		InstanceID: instanceID,
		Type:       EventSubOrchestrationScheduled,
		TaskID:     taskID,
		Activity:   definition,
		ChildID:    childID,
		Payload:    input,
		At:         time.Now().UTC(),
	}
}

// NewSubOrchestrationCompleted records a child instance's output in the
// parent's history.
func NewSubOrchestrationCompleted(instanceID string, taskID int, childID string, output json.RawMessage) *Event {
	return &Event{
		InstanceID: instanceID,
		Type:       EventSubOrchestrationCompleted,
		TaskID:     taskID,
		ChildID:    childID,
		Payload:    output,
		At:         time.Now().UTC(),
	}
}

// NewSubOrchestrationFailed records a child instance's failure in the
// parent's history.
func NewSubOrchestrationFailed(instanceID string, taskID int, childID, msg string) *Event {
	return &Event{
		InstanceID: instanceID,
		Type:       EventSubOrchestrationFailed,
		TaskID:     taskID,
		ChildID:    childID,
		Payload:    FailurePayload(msg),
		At:         time.Now().UTC(),
	}
}
