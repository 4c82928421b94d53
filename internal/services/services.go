// Package services holds the external AI service adapters: document text
// extraction, generative text transformation, and speech translation.
// Each adapter is a thin request/response client with no retry logic of
// its own; retries happen at the activity dispatch layer.
package services

import "errors"

var (
	// ErrServiceUnavailable indicates the service could not be reached or
	// answered with a server error.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrBadResponse indicates a reply the adapter could not interpret.
	ErrBadResponse = errors.New("bad service response")
	// ErrTimeout indicates the call exceeded its deadline.
	ErrTimeout = errors.New("service call timed out")
)
