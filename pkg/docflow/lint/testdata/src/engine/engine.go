// Package engine is a stub for testing the determinism linter.
// It provides the minimal types the linter needs to recognize workflow
// definitions in analyzed code.
package engine

// OrchestrationContext is the replay-driven workflow context.
type OrchestrationContext struct{}

// Task is a pending result handle.
type Task struct{}

// ScheduleActivity schedules an activity task.
func (c *OrchestrationContext) ScheduleActivity(name string, input any) *Task { return &Task{} }

// Await blocks replay until the task has a recorded result.
func (c *OrchestrationContext) Await(t *Task, out any) error { return nil }
