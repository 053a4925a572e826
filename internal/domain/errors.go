package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a missing schedule, prescription or user.
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable marks a failed OCR or inference call.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrPersistence marks a failed store write or read.
	ErrPersistence = errors.New("persistence failure")
	// ErrInvalidInput marks a request the use cases refuse to process.
	ErrInvalidInput = errors.New("invalid input")
)

// UpstreamError wraps a failure of an external extraction collaborator.
type UpstreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrUpstreamUnavailable.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}
