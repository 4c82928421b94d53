package engine

import (
	"encoding/json"
	"fmt"

	"github.com/example/docflow/internal/domain"
)

// DefinitionFunc is a workflow definition: ordinary sequential code that
// schedules durable work through the OrchestrationContext and returns the
// instance's output.
//
// Determinism contract: a definition is replayed from the top on every
// activation, so it must be a pure function of its input and of the values
// returned by Await/WaitAll. It must not read wall-clock time, random
// values, environment variables, or any other ambient mutable state, and
// it must not spawn goroutines; route any such input through an activity
// so it is recorded in history. cmd/docflow-lint checks definitions for
// the common violations.
type DefinitionFunc func(ctx *OrchestrationContext) (any, error)

// ActivityInvocation is a pending request to run one named, stateless
// activity. It is owned by exactly one instance's task slot while pending.
type ActivityInvocation struct {
	InstanceID string
	TaskID     int
	Activity   string
	Input      json.RawMessage
}

// suspendSignal unwinds a definition whose next step has no recorded
// outcome yet. The activation loop recovers it and persists the decisions
// made so far.
type suspendSignal struct{}

type taskKind int

const (
	taskActivity taskKind = iota
	taskSubOrchestration
)

// Task is a handle to a scheduled activity or sub-orchestration.
type Task struct {
	ctx     *OrchestrationContext
	id      int
	kind    taskKind
	name    string
	childID string
}

// ID returns the task slot number within the instance's history.
func (t *Task) ID() int { return t.id }

// outcome is the resolved terminal state of a task slot, built from history.
type outcome struct {
	ok      bool
	payload json.RawMessage
	failure string
}

// OrchestrationContext drives one activation of a workflow definition.
// Task IDs are assigned by scheduling-call order, which is what makes the
// replay deterministic: the Nth scheduling call always lands in slot N.
type OrchestrationContext struct {
	instanceID string
	definition string
	input      json.RawMessage

	scheduled map[int]*domain.Event
	outcomes  map[int]*outcome
	nextTask  int

	// Side effects of this activation, applied atomically by the engine.
	decisions  []*domain.Event
	children   []*domain.WorkflowInstance
	dispatches []*ActivityInvocation
}

func newOrchestrationContext(inst *domain.WorkflowInstance, history []*domain.Event) *OrchestrationContext {
	c := &OrchestrationContext{
		instanceID: inst.ID,
		definition: inst.Definition,
		input:      inst.Input,
		scheduled:  make(map[int]*domain.Event),
		outcomes:   make(map[int]*outcome),
		nextTask:   1,
	}

	for _, ev := range history {
		switch {
		case ev.Type.IsScheduling():
			c.scheduled[ev.TaskID] = ev
		case ev.Type == domain.EventTaskCompleted, ev.Type == domain.EventSubOrchestrationCompleted:
			c.outcomes[ev.TaskID] = &outcome{ok: true, payload: ev.Payload}
		case ev.Type == domain.EventTaskFailed, ev.Type == domain.EventSubOrchestrationFailed:
			c.outcomes[ev.TaskID] = &outcome{failure: domain.FailureMessage(ev.Payload)}
		}
	}

	return c
}

// InstanceID returns the instance's ID. Stable across replays, so it is
// safe to use inside a definition (e.g. as a correlation ID).
func (c *OrchestrationContext) InstanceID() string { return c.instanceID }

// Input unmarshals the instance input into out.
func (c *OrchestrationContext) Input(out any) error {
	if len(c.input) == 0 {
		return nil
	}
	return json.Unmarshal(c.input, out)
}

// ScheduleActivity appends a TaskScheduled decision (on first execution)
// and returns a handle for awaiting the activity's recorded outcome.
func (c *OrchestrationContext) ScheduleActivity(activity string, input any) *Task {
	tid := c.takeSlot()

	if ev, ok := c.scheduled[tid]; ok {
		if ev.Type != domain.EventTaskScheduled || ev.Activity != activity {
			panic(fmt.Errorf("%w: slot %d replayed as activity %q but history records %s %q",
				domain.ErrNondeterministicWorkflow, tid, activity, ev.Type, ev.Activity))
		}
		return &Task{ctx: c, id: tid, kind: taskActivity, name: activity}
	}

	raw := c.marshal(input)
	c.decisions = append(c.decisions, domain.NewTaskScheduled(c.instanceID, tid, activity, raw))
	c.dispatches = append(c.dispatches, &ActivityInvocation{
		InstanceID: c.instanceID,
		TaskID:     tid,
		Activity:   activity,
		Input:      raw,
	})
	return &Task{ctx: c, id: tid, kind: taskActivity, name: activity}
}

// ScheduleSubOrchestration appends a SubOrchestrationScheduled decision
// (on first execution), creating a child instance whose ID is derived from
// the parent and task slot so replays always address the same child.
func (c *OrchestrationContext) ScheduleSubOrchestration(definition string, input any) *Task {
	tid := c.takeSlot()

	if ev, ok := c.scheduled[tid]; ok {
		if ev.Type != domain.EventSubOrchestrationScheduled || ev.Activity != definition {
			panic(fmt.Errorf("%w: slot %d replayed as sub-orchestration %q but history records %s %q",
				domain.ErrNondeterministicWorkflow, tid, definition, ev.Type, ev.Activity))
		}
		return &Task{ctx: c, id: tid, kind: taskSubOrchestration, name: definition, childID: ev.ChildID}
	}

	childID := fmt.Sprintf("%s:%d", c.instanceID, tid)
	raw := c.marshal(input)
	c.decisions = append(c.decisions, domain.NewSubOrchestrationScheduled(c.instanceID, tid, definition, childID, raw))
	c.children = append(c.children, domain.NewChildInstance(childID, definition, raw, c.instanceID, tid))
	return &Task{ctx: c, id: tid, kind: taskSubOrchestration, name: definition, childID: childID}
}

// Await suspends until the task's terminal event is in history, then
// unmarshals the recorded output into out (which may be nil). A recorded
// failure is returned as *TaskError or *SubOrchestrationError.
func (t *Task) Await(out any) error {
	o, ok := t.ctx.outcomes[t.id]
	if !ok {
		panic(suspendSignal{})
	}
	if !o.ok {
		return t.failure(o)
	}
	if out != nil && len(o.payload) > 0 {
		if err := json.Unmarshal(o.payload, out); err != nil {
			return fmt.Errorf("task %d: decoding recorded output: %w", t.id, err)
		}
	}
	return nil
}

// WaitAll suspends until every task has a terminal event, then returns all
// recorded outputs in request order, or the first failure in request order.
// All-or-nothing: no partial results are returned.
func (c *OrchestrationContext) WaitAll(tasks []*Task) ([]json.RawMessage, error) {
	for _, t := range tasks {
		if _, ok := c.outcomes[t.id]; !ok {
			panic(suspendSignal{})
		}
	}

	results := make([]json.RawMessage, len(tasks))
	for i, t := range tasks {
		o := c.outcomes[t.id]
		if !o.ok {
			return nil, t.failure(o)
		}
		results[i] = o.payload
	}
	return results, nil
}

func (t *Task) failure(o *outcome) error {
	if t.kind == taskSubOrchestration {
		return &SubOrchestrationError{
			TaskID:     t.id,
			InstanceID: t.childID,
			Definition: t.name,
			Message:    o.failure,
		}
	}
	return &TaskError{TaskID: t.id, Activity: t.name, Message: o.failure}
}

func (c *OrchestrationContext) takeSlot() int {
	tid := c.nextTask
	c.nextTask++
	return tid
}

func (c *OrchestrationContext) marshal(input any) json.RawMessage {
	raw, err := json.Marshal(input)
	if err != nil {
		panic(fmt.Errorf("marshaling input for instance %s: %w", c.instanceID, err))
	}
	return raw
}
