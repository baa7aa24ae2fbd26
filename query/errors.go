package query

import (
	"errors"
	"fmt"
)

// Error types for materialization.
var (
	// ErrNotConfigured is returned by every engine call made before the
	// entity mapping configuration was injected.
	ErrNotConfigured = errors.New("engine used before configuration was loaded")

	// ErrAlreadyConfigured is returned when the configuration is injected twice.
	ErrAlreadyConfigured = errors.New("engine configuration already loaded")

	// ErrUnknownType is returned when the root type has no mapping.
	ErrUnknownType = errors.New("unknown entity type")

	// ErrBuild is returned when a materializer cannot be built for a fetch tree.
	ErrBuild = errors.New("materializer build failed")

	// ErrUnsupportedShape is returned when an execution mode does not support
	// the requested fetch shape.
	ErrUnsupportedShape = errors.New("unsupported fetch shape")

	// ErrLayoutMismatch is returned when an explicit column layout disagrees
	// with the layout the materializer was compiled for.
	ErrLayoutMismatch = errors.New("column layout mismatch")

	// ErrMaterialize is returned when row data cannot be assembled.
	ErrMaterialize = errors.New("materialization failed")

	// ErrNotFound is returned by Get when no entity matches.
	ErrNotFound = errors.New("entity not found")
)

// BuildError reports why a materializer could not be built.
type BuildError struct {
	Root      string
	Signature string
	// Path is the dotted navigation path of the offending node, empty when
	// the root itself is at fault.
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("build materializer for %s (%s) at %s: %v", e.Root, e.Signature, e.Path, e.Cause)
	}
	return fmt.Sprintf("build materializer for %s (%s): %v", e.Root, e.Signature, e.Cause)
}

// Unwrap returns the underlying error.
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// Is matches ErrBuild as well as the cause.
func (e *BuildError) Is(target error) bool {
	return target == ErrBuild
}

// Mode is an execution mode of the dispatcher.
type Mode string

const (
	Sync  Mode = "sync"
	Async Mode = "async"
)

// UnsupportedShapeError is returned when a fetch shape cannot run in a mode.
type UnsupportedShapeError struct {
	Root        string
	Collections int
	Mode        Mode
}

// Error implements the error interface.
func (e *UnsupportedShapeError) Error() string {
	return fmt.Sprintf("%s execution of %s with %d collection branches is not supported", e.Mode, e.Root, e.Collections)
}

// Is matches ErrUnsupportedShape.
func (e *UnsupportedShapeError) Is(target error) bool {
	return target == ErrUnsupportedShape
}

// MaterializeError reports a row that could not be merged. The whole call
// fails; no partial graph is returned.
type MaterializeError struct {
	Row   int
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *MaterializeError) Error() string {
	path := e.Path
	if path == "" {
		path = "root"
	}
	return fmt.Sprintf("materialize row %d at %s: %v", e.Row, path, e.Cause)
}

// Unwrap returns the underlying error.
func (e *MaterializeError) Unwrap() error {
	return e.Cause
}

// Is matches ErrMaterialize as well as the cause.
func (e *MaterializeError) Is(target error) bool {
	return target == ErrMaterialize
}

// IsNotConfigured checks if an error is a configuration error.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// IsUnknownType checks if an error is an unknown type error.
func IsUnknownType(err error) bool {
	return errors.Is(err, ErrUnknownType)
}

// IsBuildError checks if an error is a build error.
func IsBuildError(err error) bool {
	return errors.Is(err, ErrBuild)
}

// IsUnsupportedShape checks if an error is an unsupported-combination error.
func IsUnsupportedShape(err error) bool {
	return errors.Is(err, ErrUnsupportedShape)
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
