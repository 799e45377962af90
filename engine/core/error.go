package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error codes used across the engine. Every failure mode the builder can
// signal maps to exactly one code so callers can dispatch without string
// matching.
const (
	CodeConfigurationInvalid = "CONFIGURATION_INVALID"
	CodeDuplicateComponent   = "DUPLICATE_COMPONENT"
	CodeMissingDependency    = "MISSING_DEPENDENCY"
	CodeDependencyConflict   = "DEPENDENCY_CONFLICT"
	CodeNotFound             = "NOT_FOUND"
	CodeDependentsExist      = "DEPENDENTS_EXIST"
	CodeCyclicDependency     = "CYCLIC_DEPENDENCY"
	CodeComponentLoadFailed  = "COMPONENT_LOAD_FAILED"
	CodeBuildEntrypoint      = "BUILD_ENTRYPOINT_FAILED"
	CodeReentrantBuild       = "REENTRANT_BUILD"
)

// Error is the canonical engine error value: a stable code, an optional
// wrapped cause and free-form details for diagnostics.
type Error struct {
	Err     error
	Code    string
	Details map[string]any
}

// NewError creates an engine error with the given code and details.
func NewError(err error, code string, details map[string]any) *Error {
	return &Error{Err: err, Code: code, Details: details}
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Code)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, e.Details[k]))
		}
		sb.WriteString(" (")
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString(")")
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err (or anything it wraps) is an engine Error
// carrying the given code.
func IsCode(err error, code string) bool {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Code == code
	}
	return false
}
