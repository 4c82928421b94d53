package storage

import (
	"context"

	"github.com/example/docflow/internal/domain"
)

// InstanceFilter provides filtering options for listing instances.
type InstanceFilter struct {
	// Statuses to filter by (empty = all)
	Statuses []domain.Status

	// Pagination
	Limit  int
	Offset int
}

// InstanceRepository provides access to WorkflowInstance storage.
type InstanceRepository interface {
	// Create creates a new instance.
	Create(ctx context.Context, inst *domain.WorkflowInstance) error

	// Get retrieves an instance by ID.
	Get(ctx context.Context, id string) (*domain.WorkflowInstance, error)

	// Update updates an existing instance (optimistic, by version).
	Update(ctx context.Context, inst *domain.WorkflowInstance) error

	// List lists instances with optional filtering.
	List(ctx context.Context, filter InstanceFilter) ([]*domain.WorkflowInstance, error)
}

// HistoryRepository provides access to the append-only event log.
type HistoryRepository interface {
	// Append appends events to an instance's history in order. Sequence
	// numbers are assigned by the repository. Terminal events for a task
	// slot that already has one are dropped, which makes completion
	// recording idempotent by task ID.
	Append(ctx context.Context, events []*domain.Event) error

	// Load returns the full history of an instance in sequence order.
	Load(ctx context.Context, instanceID string) ([]*domain.Event, error)

	// HasTerminalTaskEvent reports whether a terminal event exists for the
	// given task slot.
	HasTerminalTaskEvent(ctx context.Context, instanceID string, taskID int) (bool, error)
}

// UnitOfWork provides transactional access to all repositories.
type UnitOfWork interface {
	Instances() InstanceRepository
	History() HistoryRepository

	// Transaction control
	Commit() error
	Rollback() error
}

// Storage provides the main entry point for storage operations.
type Storage interface {
	// Begin starts a read transaction and returns a UnitOfWork.
	Begin(ctx context.Context) (UnitOfWork, error)

	// BeginImmediate starts a write transaction, taking the write lock
	// up front.
	BeginImmediate(ctx context.Context) (UnitOfWork, error)

	// Close closes the storage connection.
	Close() error

	// Migrate runs database migrations.
	Migrate(ctx context.Context) error
}
