package util

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure modes the pipeline distinguishes.
var (
	// ErrNotFound indicates a required resource (sidecar, row, binary) was not found
	ErrNotFound = errors.New("not found")

	// ErrHashMismatch indicates two sidecars carry different content hashes
	// and therefore describe different underlying bytes
	ErrHashMismatch = errors.New("content hash mismatch")

	// ErrMalformedDocument indicates a sidecar exists but cannot be parsed
	// or fails schema validation; callers treat the sidecar as absent
	ErrMalformedDocument = errors.New("malformed document")

	// ErrNoUpsertKey indicates a final document carries neither a content
	// hash nor a file path usable as the relational key
	ErrNoUpsertKey = errors.New("no upsert key")

	// ErrSchemaMissing indicates the tracks table does not exist; fatal for
	// the whole run
	ErrSchemaMissing = errors.New("tracks schema missing")

	// ErrExternalService indicates a collaborator call failed or was rejected
	ErrExternalService = errors.New("external service error")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)

// StageError records which pipeline stage failed for which track.
// It is the unit the orchestrator catches at its boundary: the track is
// marked failed and the walk continues.
type StageError struct {
	Stage string
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with the stage and track it belongs to.
func NewStageError(stage, path string, err error) *StageError {
	return &StageError{Stage: stage, Path: path, Err: err}
}
