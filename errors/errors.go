package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrInvalidGraph indicates that a workflow definition failed validation
	ErrInvalidGraph = errors.New("invalid graph")

	// ErrVisitLimit indicates that a node was entered more often than its bound allows
	ErrVisitLimit = errors.New("node visit limit exceeded")

	// ErrUnknownBranch indicates that a branch function returned a label with no target
	ErrUnknownBranch = errors.New("unknown branch label")

	// ErrNoQuery indicates that the executor was handed a nil or empty query
	ErrNoQuery = errors.New("no query to execute")
)
