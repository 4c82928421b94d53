package id

import (
	"github.com/google/uuid"
)

// Generate generates a new unique ID.
func Generate() string {
	return uuid.New().String()
}

// Correlation generates a short correlation ID for tracing a work item
// through the pipeline (first 8 chars of a UUID).
func Correlation() string {
	return uuid.New().String()[:8]
}
