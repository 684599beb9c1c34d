package types

import (
	"errors"
	"fmt"
	"strings"
)

// Semantic errors. Detail types below match these through errors.Is.
var (
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidDescriptor  = errors.New("invalid descriptor")
	ErrValidation         = errors.New("validation failed")
	ErrDomainNotFound     = errors.New("domain not found")
	ErrOptimisticConflict = errors.New("optimistic concurrency conflict")
	ErrConversion         = errors.New("value conversion failed")
	ErrCancelled          = errors.New("operation cancelled")
	ErrPlacement          = errors.New("descriptor is not defined in this container or its project")
	ErrPropertyInUse      = errors.New("property type cannot be changed because there are existing values")
	ErrInvalidLsid        = errors.New("invalid lsid")
)

// Lifecycle errors.
var (
	ErrAlreadyAttached = errors.New("manager already attached")
	ErrDetached        = errors.New("manager is detached")
)

// InvalidDescriptorError reports a descriptor rejected before any write.
type InvalidDescriptorError struct {
	Field  string
	Reason string
}

func (e *InvalidDescriptorError) Error() string {
	if e.Field == "" {
		return "invalid descriptor: " + e.Reason
	}
	return fmt.Sprintf("invalid descriptor: %s: %s", e.Field, e.Reason)
}

func (e *InvalidDescriptorError) Unwrap() error { return ErrInvalidDescriptor }

// DomainNotFoundError names the domain URI that was not found.
type DomainNotFoundError struct {
	URI       string
	Container string
}

func (e *DomainNotFoundError) Error() string {
	return fmt.Sprintf("domain not found: %s in container %s", e.URI, e.Container)
}

func (e *DomainNotFoundError) Unwrap() error { return ErrDomainNotFound }

// OptimisticConflictError reports a row changed or removed between read and write.
type OptimisticConflictError struct {
	Table string
	ID    int64
	Token int64
}

func (e *OptimisticConflictError) Error() string {
	return fmt.Sprintf("%s row %d was changed or deleted by another writer (token %d)", e.Table, e.ID, e.Token)
}

func (e *OptimisticConflictError) Unwrap() error { return ErrOptimisticConflict }

// previewLength bounds value previews in error messages.
const previewLength = 100

// Preview returns at most the first 100 characters of s.
func Preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLength {
		return s
	}
	return string(r[:previewLength]) + "..."
}

// ConversionError reports a raw value that could not be coerced to its
// declared type.
type ConversionError struct {
	Property string
	Type     string
	Value    string
	Err      error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("could not convert value %q for property %s to %s", Preview(e.Value), e.Property, e.Type)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConversionError) Is(target error) bool { return target == ErrConversion }

func (e *ConversionError) Unwrap() error { return e.Err }

// ValidationError is a single value validation failure.
type ValidationError struct {
	Property string
	Message  string
	// Cause is set when the failure came from another error, such as a
	// ConversionError.
	Cause error
}

func (e ValidationError) Error() string {
	if e.Property == "" {
		return e.Message
	}
	return e.Property + ": " + e.Message
}

// ValidationErrors accumulates validation failures so they can be reported
// together.
type ValidationErrors []ValidationError

// Add appends a failure.
func (v *ValidationErrors) Add(property, format string, args ...any) {
	*v = append(*v, ValidationError{Property: property, Message: fmt.Sprintf(format, args...)})
}

// AddError appends err as a failure of property.
func (v *ValidationErrors) AddError(property string, err error) {
	*v = append(*v, ValidationError{Property: property, Message: err.Error(), Cause: err})
}

// Err returns v as an error, or nil when it is empty.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

func (v ValidationErrors) Is(target error) bool { return target == ErrValidation }

// Unwrap exposes the causes so errors.Is and errors.As see, for example, a
// ConversionError inside a batch.
func (v ValidationErrors) Unwrap() []error {
	var causes []error
	for _, e := range v {
		if e.Cause != nil {
			causes = append(causes, e.Cause)
		}
	}
	return causes
}
