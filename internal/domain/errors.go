package domain

import "errors"

var (
	// ErrNotFound is returned when a requested entity doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrDefinitionNotFound is returned when starting a workflow whose
	// definition was never registered.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrActivityNotFound is returned when a scheduled activity has no
	// registered implementation.
	ErrActivityNotFound = errors.New("activity not found")

	// ErrInvalidState is returned when a state transition is not allowed.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrConcurrentModify is returned when optimistic locking fails.
	ErrConcurrentModify = errors.New("concurrent modification")

	// ErrInvalidArgument is returned when an argument is invalid.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyExists is returned when trying to create a duplicate entity.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNondeterministicWorkflow is returned when a replay of an instance's
	// history produces a scheduling decision that differs from the recorded
	// one. The instance is failed rather than allowed to corrupt its history.
	ErrNondeterministicWorkflow = errors.New("nondeterministic workflow definition")
)
