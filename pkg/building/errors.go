package building

import (
	"errors"
	"fmt"
)

var (
	ErrNodeNotFound     = errors.New("node not found")
	ErrDuplicateNode    = errors.New("duplicate node id")
	ErrUnknownEndpoint  = errors.New("edge endpoint not found")
	ErrSelfLoop         = errors.New("edge connects a node to itself")
	ErrInvalidEdgeKey   = errors.New("invalid edge key")
	ErrInvalidDataset   = errors.New("invalid building dataset")
	ErrUnsupportedInput = errors.New("unsupported dataset format")
)

// DatasetError describes a failure while loading or assembling a building graph.
type DatasetError struct {
	Op     string // e.g. "load", "decode", "build"
	Entity string // "node", "edge", "exit", "source"
	ID     string
	Cause  error
}

// Error implements the error interface.
func (e *DatasetError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %q: %v", e.Op, e.Entity, e.ID, e.Cause)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DatasetError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrInvalidDataset or matches the cause.
// Every DatasetError is an invalid dataset.
func (e *DatasetError) Is(target error) bool {
	if target == nil {
		return false
	}
	if target == ErrInvalidDataset {
		return true
	}
	return errors.Is(e.Cause, target)
}

func nodeError(op, id string, cause error) error {
	return &DatasetError{Op: op, Entity: "node", ID: id, Cause: cause}
}

func edgeError(op, id string, cause error) error {
	return &DatasetError{Op: op, Entity: "edge", ID: id, Cause: cause}
}
