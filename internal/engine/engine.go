// Package engine implements a durable workflow runtime based on
// deterministic replay of an append-only event history. Definitions are
// re-executed from the top on every activation; already-recorded steps are
// fast-forwarded from history, and only the first unresolved await triggers
// new scheduling work. The engine survives process restarts by re-loading
// every non-terminal instance and replaying it from its persisted history.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/example/docflow/internal/domain"
	"github.com/example/docflow/internal/observability"
	"github.com/example/docflow/internal/storage"
	"github.com/example/docflow/pkg/id"
)

// ActivityFunc is the implementation of one named, stateless activity.
// Activities may be executed more than once for the same task slot
// (at-least-once delivery); side effects must be idempotent.
type ActivityFunc func(ctx context.Context, input json.RawMessage) (any, error)

// Config holds engine tuning knobs.
type Config struct {
	WorkerCount     int           // Parallel activity executors
	ActivatorCount  int           // Parallel instance activators
	MaxAttempts     int           // Activity attempts before TaskFailed is recorded
	RetryBackoff    time.Duration // Initial backoff between attempts (doubles)
	ActivityTimeout time.Duration // Per-attempt deadline
	SweepInterval   time.Duration // Redelivery / lost-wakeup sweep period
	QueueSize       int           // Buffered channel capacity
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() Config {
	return Config{
		WorkerCount:     8,
		ActivatorCount:  4,
		MaxAttempts:     3,
		RetryBackoff:    500 * time.Millisecond,
		ActivityTimeout: 5 * time.Minute,
		SweepInterval:   2 * time.Second,
		QueueSize:       1024,
	}
}

// Engine executes registered workflow definitions as durable, resumable
// state machines. One Engine owns the full lifecycle of every instance in
// its store: activation (replay), activity dispatch, completion
// propagation to parents, and crash recovery.
type Engine struct {
	storage storage.Storage
	config  Config
	metrics *observability.Metrics

	regMu       sync.RWMutex
	definitions map[string]DefinitionFunc
	activities  map[string]ActivityFunc

	activationCh chan string
	dispatchCh   chan *ActivityInvocation
	locks        sync.Map // instanceID -> *sync.Mutex
	inflight     sync.Map // "instanceID/taskID" -> struct{}

	opCtx   context.Context // detached from caller cancellation
	baseCtx context.Context // canceled on Stop; bounds activity execution
	cancel  context.CancelFunc
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a new Engine on the given storage.
func New(store storage.Storage, config Config, metrics *observability.Metrics) *Engine {
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Engine{
		storage:      store,
		config:       config,
		metrics:      metrics,
		definitions:  make(map[string]DefinitionFunc),
		activities:   make(map[string]ActivityFunc),
		activationCh: make(chan string, config.QueueSize),
		dispatchCh:   make(chan *ActivityInvocation, config.QueueSize),
		stopCh:       make(chan struct{}),
	}
}

// RegisterDefinition registers a workflow definition under a name.
func (e *Engine) RegisterDefinition(name string, fn DefinitionFunc) {
	e.regMu.Lock()
	defer e.regMu.Unlock()
	e.definitions[name] = fn
}

// RegisterActivity registers an activity implementation under a name.
func (e *Engine) RegisterActivity(name string, fn ActivityFunc) {
	e.regMu.Lock()
	defer e.regMu.Unlock()
	e.activities[name] = fn
}

func (e *Engine) definition(name string) (DefinitionFunc, bool) {
	e.regMu.RLock()
	defer e.regMu.RUnlock()
	fn, ok := e.definitions[name]
	return fn, ok
}

func (e *Engine) activity(name string) (ActivityFunc, bool) {
	e.regMu.RLock()
	defer e.regMu.RUnlock()
	fn, ok := e.activities[name]
	return fn, ok
}

// StartWorkflow creates a new top-level instance for the named definition,
// persists it, and enqueues it for execution.
func (e *Engine) StartWorkflow(ctx context.Context, definition string, input any) (string, error) {
	if _, ok := e.definition(definition); !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrDefinitionNotFound, definition)
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("marshaling workflow input: %w", err)
	}

	inst := domain.NewInstance(id.Generate(), definition, raw)

	uow, err := e.storage.BeginImmediate(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.Instances().Create(ctx, inst); err != nil {
		return "", fmt.Errorf("failed to create instance: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}

	e.metrics.InstancesStarted().Inc()
	e.enqueueActivation(inst.ID)
	return inst.ID, nil
}

// GetStatus returns the persisted state of an instance without blocking.
func (e *Engine) GetStatus(ctx context.Context, instanceID string) (*domain.WorkflowInstance, error) {
	uow, err := e.storage.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.Instances().Get(ctx, instanceID)
}

// Start recovers persisted state and launches the worker loops. The given
// context only bounds recovery; shutdown goes through Stop.
func (e *Engine) Start(ctx context.Context) error {
	e.opCtx = context.WithoutCancel(ctx)
	e.baseCtx, e.cancel = context.WithCancel(e.opCtx)

	if err := e.recover(ctx); err != nil {
		return fmt.Errorf("recovering instances: %w", err)
	}

	for i := 0; i < e.config.ActivatorCount; i++ {
		e.wg.Add(1)
		go e.runActivator()
	}
	for i := 0; i < e.config.WorkerCount; i++ {
		e.wg.Add(1)
		go e.runWorker()
	}
	e.wg.Add(1)
	go e.sweepLoop()

	return nil
}

// Stop gracefully stops the engine. In-flight activities are canceled and
// will be redelivered by the next Start. Stopping an engine that was never
// started is a no-op.
func (e *Engine) Stop() {
	close(e.stopCh)
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

func (e *Engine) stopping() bool {
	select {
	case <-e.stopCh:
		return true
	default:
		return false
	}
}

func (e *Engine) enqueueActivation(instanceID string) {
	select {
	case e.activationCh <- instanceID:
	default:
		// Queue full; the sweep loop re-activates non-terminal instances.
		log.Printf("engine: activation queue full, instance %s deferred to sweep", instanceID)
	}
}

func (e *Engine) enqueueDispatch(inv *ActivityInvocation) {
	select {
	case e.dispatchCh <- inv:
	default:
		log.Printf("engine: dispatch queue full, task %d of %s deferred to sweep", inv.TaskID, inv.InstanceID)
	}
}

func (e *Engine) runActivator() {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopCh:
			return
		case instanceID := <-e.activationCh:
			if err := e.activate(e.opCtx, instanceID); err != nil {
				log.Printf("engine: activation of %s failed: %v", instanceID, err)
			}
		}
	}
}

func (e *Engine) lockFor(instanceID string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(instanceID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// activate replays one instance against its history and persists the
// resulting decisions atomically. Single-writer-per-instance: the
// per-instance mutex guarantees no two activations of the same instance
// run concurrently.
func (e *Engine) activate(ctx context.Context, instanceID string) error {
	mu := e.lockFor(instanceID)
	mu.Lock()
	defer mu.Unlock()

	start := time.Now()

	uow, err := e.storage.BeginImmediate(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	inst, err := uow.Instances().Get(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status.IsTerminal() {
		return nil
	}

	history, err := uow.History().Load(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	def, ok := e.definition(inst.Definition)
	if !ok {
		// An instance persisted by a previous deployment whose definition
		// is gone cannot make progress; fail it rather than spin.
		if err := inst.MarkFailed(domain.ErrDefinitionNotFound.Error() + ": " + inst.Definition); err != nil {
			return err
		}
		if err := uow.Instances().Update(ctx, inst); err != nil {
			return err
		}
		if err := uow.Commit(); err != nil {
			return err
		}
		e.afterTerminal(ctx, inst)
		return nil
	}

	octx := newOrchestrationContext(inst, history)
	output, defErr, suspended := runDefinition(octx, def)
	e.metrics.ActivationDuration().WithLabels(inst.Definition).Observe(time.Since(start))

	if len(octx.decisions) > 0 {
		if err := uow.History().Append(ctx, octx.decisions); err != nil {
			return fmt.Errorf("appending decisions: %w", err)
		}
		e.metrics.EventsAppended().Add(int64(len(octx.decisions)))
	}
	for _, child := range octx.children {
		if err := uow.Instances().Create(ctx, child); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			return fmt.Errorf("creating child instance %s: %w", child.ID, err)
		}
	}

	switch {
	case suspended:
		if inst.Status == domain.StatusPending {
			if err := inst.MarkRunning(); err != nil {
				return err
			}
			if err := uow.Instances().Update(ctx, inst); err != nil {
				return err
			}
		}
	case defErr != nil:
		if err := inst.MarkFailed(defErr.Error()); err != nil {
			return err
		}
		if err := uow.Instances().Update(ctx, inst); err != nil {
			return err
		}
	default:
		raw, err := json.Marshal(output)
		if err != nil {
			return fmt.Errorf("marshaling output of %s: %w", inst.ID, err)
		}
		if err := inst.MarkCompleted(raw); err != nil {
			return err
		}
		if err := uow.Instances().Update(ctx, inst); err != nil {
			return err
		}
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	// Post-commit effects only: nothing may be dispatched before the
	// scheduling decisions are durable.
	for _, inv := range octx.dispatches {
		e.enqueueDispatch(inv)
	}
	for _, child := range octx.children {
		e.enqueueActivation(child.ID)
	}
	if inst.Status.IsTerminal() {
		e.afterTerminal(ctx, inst)
	}
	return nil
}

// afterTerminal propagates a finished child's outcome into its parent's
// history and wakes the parent.
func (e *Engine) afterTerminal(ctx context.Context, inst *domain.WorkflowInstance) {
	if !inst.IsChild() {
		return
	}
	if err := e.propagateToParent(ctx, inst); err != nil {
		log.Printf("engine: propagating %s to parent %s failed: %v", inst.ID, inst.ParentID, err)
	}
}

func (e *Engine) propagateToParent(ctx context.Context, child *domain.WorkflowInstance) error {
	var ev *domain.Event
	if child.Status == domain.StatusCompleted {
		ev = domain.NewSubOrchestrationCompleted(child.ParentID, child.ParentTaskID, child.ID, child.Output)
	} else {
		ev = domain.NewSubOrchestrationFailed(child.ParentID, child.ParentTaskID, child.ID, child.ErrorMessage)
	}

	uow, err := e.storage.BeginImmediate(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	// Append is idempotent by task slot, so re-propagation after a crash
	// or a sweep race records nothing twice.
	if err := uow.History().Append(ctx, []*domain.Event{ev}); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	e.enqueueActivation(child.ParentID)
	return nil
}

// runDefinition executes a definition, converting the suspension unwind
// and definition panics into return values.
func runDefinition(octx *OrchestrationContext, fn DefinitionFunc) (output any, defErr error, suspended bool) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(suspendSignal); ok {
				suspended = true
				return
			}
			if err, ok := r.(error); ok {
				defErr = err
				return
			}
			defErr = fmt.Errorf("workflow definition panicked: %v", r)
		}
	}()

	output, defErr = fn(octx)
	return output, defErr, false
}

func (e *Engine) runWorker() {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopCh:
			return
		case inv := <-e.dispatchCh:
			e.execute(inv)
		}
	}
}

// execute runs one activity invocation with bounded retries and records
// the terminal outcome. Redeliveries of a task already being executed are
// dropped here; redeliveries of a task whose outcome is already recorded
// are dropped by the idempotent history append.
func (e *Engine) execute(inv *ActivityInvocation) {
	key := inv.InstanceID + "/" + strconv.Itoa(inv.TaskID)
	if _, loaded := e.inflight.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	defer e.inflight.Delete(key)

	fn, ok := e.activity(inv.Activity)
	if !ok {
		e.recordOutcome(inv, nil, fmt.Errorf("%w: %s", domain.ErrActivityNotFound, inv.Activity))
		return
	}

	var output any
	var err error
	backoff := e.config.RetryBackoff
	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		actCtx, cancel := context.WithTimeout(e.baseCtx, e.config.ActivityTimeout)
		start := time.Now()
		output, err = fn(actCtx, inv.Input)
		cancel()
		e.metrics.ActivityDuration().WithLabels(inv.Activity).Observe(time.Since(start))

		if err == nil {
			break
		}
		if e.stopping() && errors.Is(err, context.Canceled) {
			// Shutdown interrupted the attempt; leave the task scheduled
			// so the next Start redelivers it.
			return
		}
		if attempt < e.config.MaxAttempts {
			log.Printf("engine: activity %s task %d of %s attempt %d failed: %v",
				inv.Activity, inv.TaskID, inv.InstanceID, attempt, err)
			e.metrics.ActivityRetries().WithLabels(inv.Activity).Inc()
			select {
			case <-e.stopCh:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	e.recordOutcome(inv, output, err)
}

func (e *Engine) recordOutcome(inv *ActivityInvocation, output any, actErr error) {
	ctx := e.opCtx

	var ev *domain.Event
	if actErr != nil {
		ev = domain.NewTaskFailed(inv.InstanceID, inv.TaskID, actErr.Error())
	} else {
		raw, err := json.Marshal(output)
		if err != nil {
			ev = domain.NewTaskFailed(inv.InstanceID, inv.TaskID,
				fmt.Sprintf("marshaling activity output: %v", err))
		} else {
			ev = domain.NewTaskCompleted(inv.InstanceID, inv.TaskID, raw)
		}
	}

	uow, err := e.storage.BeginImmediate(ctx)
	if err != nil {
		log.Printf("engine: recording outcome of task %d of %s: %v", inv.TaskID, inv.InstanceID, err)
		return
	}
	defer uow.Rollback()

	if err := uow.History().Append(ctx, []*domain.Event{ev}); err != nil {
		log.Printf("engine: recording outcome of task %d of %s: %v", inv.TaskID, inv.InstanceID, err)
		return
	}
	if err := uow.Commit(); err != nil {
		log.Printf("engine: committing outcome of task %d of %s: %v", inv.TaskID, inv.InstanceID, err)
		return
	}

	e.metrics.EventsAppended().Inc()
	e.enqueueActivation(inv.InstanceID)
}

// recover re-enqueues every non-terminal instance and redelivers its
// unresolved activity dispatches. Called once from Start, before the
// worker loops exist.
func (e *Engine) recover(ctx context.Context) error {
	work, err := e.collectPendingWork(ctx)
	if err != nil {
		return err
	}
	if n := len(work.activations); n > 0 {
		log.Printf("engine: recovering %d non-terminal instance(s)", n)
	}
	e.applyPendingWork(ctx, work)
	return nil
}

// pendingWork is everything a sweep or recovery pass found to re-drive.
type pendingWork struct {
	activations []string
	dispatches  []*ActivityInvocation
	propagate   []*domain.WorkflowInstance
}

func (e *Engine) collectPendingWork(ctx context.Context) (*pendingWork, error) {
	uow, err := e.storage.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	instances, err := uow.Instances().List(ctx, storage.InstanceFilter{
		Statuses: []domain.Status{domain.StatusPending, domain.StatusRunning},
	})
	if err != nil {
		return nil, err
	}

	work := &pendingWork{}
	for _, inst := range instances {
		work.activations = append(work.activations, inst.ID)

		history, err := uow.History().Load(ctx, inst.ID)
		if err != nil {
			return nil, err
		}

		resolved := make(map[int]bool)
		for _, ev := range history {
			if ev.Type.IsTerminal() {
				resolved[ev.TaskID] = true
			}
		}

		for _, ev := range history {
			if resolved[ev.TaskID] {
				continue
			}
			switch ev.Type {
			case domain.EventTaskScheduled:
				work.dispatches = append(work.dispatches, &ActivityInvocation{
					InstanceID: ev.InstanceID,
					TaskID:     ev.TaskID,
					Activity:   ev.Activity,
					Input:      ev.Payload,
				})
			case domain.EventSubOrchestrationScheduled:
				child, err := uow.Instances().Get(ctx, ev.ChildID)
				if err != nil {
					if errors.Is(err, domain.ErrNotFound) {
						continue
					}
					return nil, err
				}
				// A child that finished before its outcome reached the
				// parent (e.g. crash in between) is re-propagated here.
				if child.Status.IsTerminal() {
					work.propagate = append(work.propagate, child)
				}
			}
		}
	}

	return work, nil
}

func (e *Engine) applyPendingWork(ctx context.Context, work *pendingWork) {
	for _, child := range work.propagate {
		if err := e.propagateToParent(ctx, child); err != nil {
			log.Printf("engine: propagating %s to parent %s failed: %v", child.ID, child.ParentID, err)
		}
	}
	for _, inv := range work.dispatches {
		e.enqueueDispatch(inv)
	}
	for _, instanceID := range work.activations {
		e.enqueueActivation(instanceID)
	}
}

// sweepLoop periodically re-drives anything that lost its wakeup: full
// queues, dropped dispatches, or propagation gaps left by a crash. Replay
// is idempotent, so re-activating a suspended instance is a no-op.
func (e *Engine) sweepLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.metrics.ActivationQueueDepth().Set(int64(len(e.activationCh)))
			e.metrics.DispatchQueueDepth().Set(int64(len(e.dispatchCh)))

			work, err := e.collectPendingWork(e.opCtx)
			if err != nil {
				log.Printf("engine: sweep failed: %v", err)
				continue
			}
			e.applyPendingWork(e.opCtx, work)
		}
	}
}
