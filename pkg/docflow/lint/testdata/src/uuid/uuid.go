// Package uuid is a stub for testing the determinism linter.
package uuid

// UUID is a random identifier.
type UUID [16]byte

// New returns a random UUID.
func New() UUID { return UUID{} }

// NewString returns a random UUID string.
func NewString() string { return "" }
