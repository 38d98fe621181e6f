// Package errors provides standardized error types and helpers for the
// stb2ifc pipeline.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrUnclassifiable indicates all classification stages failed for an element.
	ErrUnclassifiable = errors.New("unclassifiable element")
	// ErrCreationFailed indicates the element builder rejected a definition.
	ErrCreationFailed = errors.New("element creation failed")
	// ErrDuplicate indicates a duplicate registration or definition.
	ErrDuplicate = errors.New("duplicate")
	// ErrUnsupportedMode indicates an unknown conversion mode (configuration error).
	ErrUnsupportedMode = errors.New("unsupported conversion mode")
	// ErrIntegration indicates a whole-run integration failure.
	ErrIntegration = errors.New("integration failure")
	// ErrParse indicates the source file could not be parsed.
	ErrParse = errors.New("parse error")
)

// UnclassifiableError reports an element whose story membership could not be
// determined by any cascade stage. Recoverable: the element is dropped and
// the run continues.
type UnclassifiableError struct {
	ElementID   string
	ElementType string
}

func (e *UnclassifiableError) Error() string {
	return fmt.Sprintf("element %s (%s): story classification failed at all stages", e.ElementID, e.ElementType)
}

func (e *UnclassifiableError) Unwrap() error {
	return ErrUnclassifiable
}

// CreationError reports a per-element builder failure. Recoverable: counted
// as failed, the run continues.
type CreationError struct {
	ElementID   string
	ElementType string
	Err         error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("creating %s %s: %v", e.ElementType, e.ElementID, e.Err)
}

func (e *CreationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrCreationFailed
}

// DuplicateRegistrationError reports re-registration of an element id with
// the relationship manager. Recoverable: warning only.
type DuplicateRegistrationError struct {
	ElementID string
	StoryName string
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("element %s already registered (story %s)", e.ElementID, e.StoryName)
}

func (e *DuplicateRegistrationError) Unwrap() error {
	return ErrDuplicate
}

// IntegrationError reports a whole-run failure in one mode handler. Fatal
// unless fallback succeeds. When the fallback itself fails, FallbackErr
// carries that error too.
type IntegrationError struct {
	Mode        string
	Err         error
	FallbackErr error
}

func (e *IntegrationError) Error() string {
	if e.FallbackErr != nil {
		return fmt.Sprintf("%s conversion failed: %v; fallback also failed: %v", e.Mode, e.Err, e.FallbackErr)
	}
	return fmt.Sprintf("%s conversion failed: %v", e.Mode, e.Err)
}

func (e *IntegrationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrIntegration
}

// ParseError reports a source-file parsing failure with location context.
type ParseError struct {
	Path    string
	Element string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	switch {
	case e.Path != "" && e.Element != "":
		return fmt.Sprintf("parsing %s in %s: %s", e.Element, e.Path, e.Message)
	case e.Path != "":
		return fmt.Sprintf("parsing %s: %s", e.Path, e.Message)
	default:
		return fmt.Sprintf("parse error: %s", e.Message)
	}
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrParse
}

// Is reports whether any error in err's chain matches target.
// Re-exported so callers don't need both this package and stdlib errors.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
