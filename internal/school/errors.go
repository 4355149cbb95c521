package school

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyClass is returned when a report is requested for a class with no students.
	ErrEmptyClass = errors.New("no students found in this class")
	// ErrNoMatchingData is returned when the status filter leaves no rows.
	ErrNoMatchingData = errors.New("no data matches the selected filters")
	// ErrForbidden is returned when the session's role may not run an action.
	ErrForbidden = errors.New("action not permitted for this role")
	// ErrNotFound is returned when a single record lookup finds nothing.
	ErrNotFound = errors.New("record not found")
)

// GatewayError wraps any failure of the remote data gateway.
type GatewayError struct {
	Op         string
	Collection string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// FieldError is used to indicate an error with a specific input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError reports missing or malformed form input.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a ValidationError from field errors.
func NewValidationError(flds ...FieldError) error {
	return &ValidationError{Fields: flds}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ImageFetchError is returned by image fetching. Renderers never surface it.
type ImageFetchError struct {
	URL string
	Err error
}

func (e *ImageFetchError) Error() string {
	return fmt.Sprintf("fetch image %s: %v", e.URL, e.Err)
}

func (e *ImageFetchError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsGateway reports whether err is (or wraps) a GatewayError.
func IsGateway(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// IsNoData reports whether err means "nothing to show" rather than a failure.
func IsNoData(err error) bool {
	return errors.Is(err, ErrEmptyClass) || errors.Is(err, ErrNoMatchingData)
}
