package models

import "fmt"

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// CatalogError represents a remote catalog search or open failure. It is
// fatal to the current station/product run and is not retried by the core;
// resumability across process restarts is the recovery mechanism.
type CatalogError struct {
	Op         string // "search" or "open"
	Identifier string
	Err        error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog %s failed for %s: %v", e.Op, e.Identifier, e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// IsTransient returns true: the remote catalog may recover between runs.
func (e *CatalogError) IsTransient() bool { return true }

// ExtractionError represents a single granule whose data is malformed or
// missing an expected structure. It is caught per granule, logged, and
// skipped; processing continues with the next granule.
type ExtractionError struct {
	Granule string
	Reason  string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed for granule %s: %s: %v", e.Granule, e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed for granule %s: %s", e.Granule, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsTransient returns false: a malformed granule stays malformed.
func (e *ExtractionError) IsTransient() bool { return false }

// PersistenceError represents a checkpoint or final artifact write failure.
// For checkpoints it aborts the run leaving prior checkpoints intact; for
// the final artifact it aborts finalization leaving checkpoints intact for
// retry.
type PersistenceError struct {
	Op   string // "write_batch", "read_batch", "write_final", "delete_batch"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsTransient returns true: disk pressure and interrupted writes can
// resolve before the next run.
func (e *PersistenceError) IsTransient() bool { return true }

// NotFoundError represents a missing resource
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// IsTransient returns false as not found errors are permanent
func (e *NotFoundError) IsTransient() bool {
	return false
}
