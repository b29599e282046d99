package errors

import (
	"errors"
	"fmt"
)

var (
	// Source errors 📦
	ErrIntegrityCheckFailed = errors.New("❌ integrity check failed")
	ErrNetwork              = errors.New("❌ download failed")
	ErrSourceConflict       = errors.New("❌ source subfolder already exists")
	ErrUnknownVersion       = errors.New("❌ unknown package version")

	// Option errors ⚙️
	ErrInvalidOptionCombination = errors.New("❌ invalid option combination")
	ErrUnknownOption            = errors.New("❌ unknown option")
	ErrInvalidOptionValue       = errors.New("❌ invalid option value")

	// Build errors 🔨
	ErrBuildToolFailed     = errors.New("❌ build tool failed")
	ErrStageOrder          = errors.New("❌ stage prerequisites missing")
	ErrRequirementMissing  = errors.New("❌ requirement not resolvable")
	ErrDescriptionMismatch = errors.New("❌ installed package does not match options")
)

// IntegrityError reports a checksum mismatch for an acquired archive.
type IntegrityError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%v: %s: expected %s, got %s", ErrIntegrityCheckFailed, e.Path, e.Expected, e.Actual)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrityCheckFailed }

// NetworkError reports a failed fetch. StatusCode is zero when no response
// was received.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%v: GET %s: status %d: %v", ErrNetwork, e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%v: GET %s: status %d", ErrNetwork, e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("%v: GET %s: %v", ErrNetwork, e.URL, e.Err)
	}
}

func (e *NetworkError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNetwork}
	}
	return []error{ErrNetwork, e.Err}
}

// ConflictError reports that the canonical source subfolder is already populated.
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: %s", ErrSourceConflict, e.Path)
}

func (e *ConflictError) Unwrap() error { return ErrSourceConflict }

// InvalidOptionCombination names an option that requires another one.
type InvalidOptionCombination struct {
	Option   string
	Requires string
}

func (e *InvalidOptionCombination) Error() string {
	return fmt.Sprintf("%v: %s requires %s", ErrInvalidOptionCombination, e.Option, e.Requires)
}

func (e *InvalidOptionCombination) Unwrap() error { return ErrInvalidOptionCombination }

// BuildToolError wraps a failed external build step.
type BuildToolError struct {
	Step string
	Err  error
}

func (e *BuildToolError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrBuildToolFailed, e.Step, e.Err)
}

func (e *BuildToolError) Unwrap() []error { return []error{ErrBuildToolFailed, e.Err} }
