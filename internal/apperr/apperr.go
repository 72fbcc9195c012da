// Package apperr defines the typed error every core operation returns, so
// the transport layer can map a failure to a status code and a safe message
// without inspecting error strings.
package apperr

import "fmt"

// Category is one of the error taxonomy buckets operations classify into.
type Category string

const (
	CategoryValidation     Category = "validation"
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryBusinessLogic  Category = "business_logic"
	CategoryPayment        Category = "payment"
	CategoryRateLimit      Category = "rate_limit"
	CategoryDatabase       Category = "database"
	CategorySystem         Category = "system"
)

// Severity hints how loudly an operator should be paged.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Error is the structured error every component function returns on
// failure. Message is safe to log; UserMessage is safe to show a caller.
type Error struct {
	Type        Category
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Field       string
	wrapped     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.wrapped }

// New builds an Error with no wrapped cause.
func New(t Category, code, message, userMessage string) *Error {
	return &Error{Type: t, Code: code, Message: message, UserMessage: userMessage, Severity: SeverityInfo}
}

// Wrap builds an Error that wraps a lower-level cause for errors.Is/As.
func Wrap(t Category, code string, cause error, userMessage string) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Type: t, Code: code, Message: msg, UserMessage: userMessage, Severity: SeverityWarn, wrapped: cause}
}

// WithSeverity returns a copy of e with Severity set.
func (e *Error) WithSeverity(s Severity) *Error {
	c := *e
	c.Severity = s
	return &c
}

// WithField returns a copy of e with Field set, for validation errors.
func (e *Error) WithField(field string) *Error {
	c := *e
	c.Field = field
	return &c
}

// Validation is a shorthand for the common "bad input" case.
func Validation(code, field, message string) *Error {
	return &Error{Type: CategoryValidation, Code: code, Message: message, UserMessage: message, Severity: SeverityInfo, Field: field}
}

// NotFound is a shorthand business_logic "doesn't exist" case.
func NotFound(code, message string) *Error {
	return &Error{Type: CategoryBusinessLogic, Code: code, Message: message, UserMessage: message, Severity: SeverityInfo}
}

// System wraps an unexpected internal fault, never showing cause to callers.
func System(code string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Type: CategorySystem, Code: code, Message: msg, UserMessage: "something went wrong", Severity: SeverityCritical, wrapped: cause}
}

// Database wraps a permanent (non-retryable) database fault.
func Database(code string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Type: CategoryDatabase, Code: code, Message: msg, UserMessage: "something went wrong", Severity: SeverityCritical, wrapped: cause}
}
