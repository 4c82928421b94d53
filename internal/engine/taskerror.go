package engine

import "fmt"

// TaskError is raised at the await point when an activity's recorded
// outcome is TaskFailed. Definitions may catch it and continue, or let it
// propagate to fail the whole instance.
type TaskError struct {
	TaskID   int
	Activity string
	Message  string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("activity %s (task %d) failed: %s", e.Activity, e.TaskID, e.Message)
}

// SubOrchestrationError is raised at the await point when a child instance
// reached Failed.
type SubOrchestrationError struct {
	TaskID     int
	InstanceID string
	Definition string
	Message    string
}

func (e *SubOrchestrationError) Error() string {
	return fmt.Sprintf("sub-orchestration %s (instance %s) failed: %s", e.Definition, e.InstanceID, e.Message)
}
