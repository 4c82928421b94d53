package domain

import (
	"fmt"

	"github.com/example/docflow/pkg/id"
)

// WorkItem identifies one document to process. Created at batch-submission
// time, immutable, and consumed by exactly one sub-orchestration.
type WorkItem struct {
	Name          string `json:"name"`
	Container     string `json:"container"`
	URL           string `json:"url,omitempty"`
	CorrelationID string `json:"correlationId"`
}

// NewWorkItem builds a WorkItem with a fresh correlation ID.
func NewWorkItem(name, container, url string) WorkItem {
	return WorkItem{
		Name:          name,
		Container:     container,
		URL:           url,
		CorrelationID: id.Correlation(),
	}
}

// Validate checks the required fields.
func (w WorkItem) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("%w: work item name is required", ErrInvalidArgument)
	}
	if w.Container == "" {
		return fmt.Errorf("%w: work item container is required", ErrInvalidArgument)
	}
	return nil
}
