package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error codes carried by AppError.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeIntegrity    = "INTEGRITY_ERROR"
	CodePrecondition = "PRECONDITION_FAILED"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInternal     = "INTERNAL_ERROR"
)

// NonFieldErrors is the ValidationErrors key for errors not tied to a single field.
const NonFieldErrors = "__all__"

var (
	// ErrNoModerators is returned when a report cannot be created because nobody can moderate it.
	ErrNoModerators = errors.New("no moderators are available to handle reports")
	// ErrSelfFollow is the storage-level rejection of a user following themselves.
	ErrSelfFollow = errors.New("users cannot follow themselves")
	// ErrDuplicateFollow is the storage-level rejection of a repeated follow edge.
	ErrDuplicateFollow = errors.New("this follow relationship already exists")
	// ErrReplyParent is the storage-level rejection of a reply whose parent is not a pulse or another reply.
	ErrReplyParent = errors.New("a reply must hang off a pulse or another reply")
)

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
	Fields  ValidationErrors
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Fields:  ValidationErrors{NonFieldErrors: {message}},
	}
}

// NewFieldValidationError reports a single invalid field.
func NewFieldValidationError(field, message string) *AppError {
	v := ValidationErrors{field: {message}}
	return &AppError{Code: CodeValidation, Message: v.Error(), Fields: v}
}

// NewIntegrityError reports a storage constraint violation by constraint name.
func NewIntegrityError(constraint string, err error) *AppError {
	return &AppError{
		Code:    CodeIntegrity,
		Message: fmt.Sprintf("constraint %q violated", constraint),
		Err:     err,
	}
}

// NewPreconditionError reports an operation that is blocked before it starts.
func NewPreconditionError(err error) *AppError {
	return &AppError{
		Code:    CodePrecondition,
		Message: "operation not allowed",
		Err:     err,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// HasCode reports whether err wraps an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// ValidationErrors collects every violation found for an entity, keyed by field.
type ValidationErrors map[string][]string

// Add records a message against field.
func (v ValidationErrors) Add(field, message string) {
	v[field] = append(v[field], message)
}

// Merge copies every message from other into v.
func (v ValidationErrors) Merge(other ValidationErrors) {
	for field, messages := range other {
		v[field] = append(v[field], messages...)
	}
}

// Has reports whether field has at least one message.
func (v ValidationErrors) Has(field string) bool {
	return len(v[field]) > 0
}

// Empty reports whether no violation was recorded.
func (v ValidationErrors) Empty() bool {
	return len(v) == 0
}

// Fields returns the invalid field names in sorted order.
func (v ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, field := range v.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(v[field], "; ")))
	}
	return strings.Join(parts, ", ")
}

// Err converts the collected violations into an AppError, or nil when there are none.
func (v ValidationErrors) Err() error {
	if v.Empty() {
		return nil
	}
	return &AppError{
		Code:    CodeValidation,
		Message: v.Error(),
		Fields:  v,
	}
}
