// Package apperrors defines the error taxonomy for the analytics pipeline.
// Every error that crosses a stage boundary is converted to one of these
// kinds before it reaches the response layer.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error.
type Kind string

const (
	// KindAmbiguousInput marks input that cannot be interpreted without a
	// follow-up question. Recoverable: triggers a clarification turn.
	KindAmbiguousInput Kind = "ambiguous_input"

	// KindEntityNotFound marks a mention with no registry match.
	// Recoverable: triggers a clarification turn.
	KindEntityNotFound Kind = "entity_not_found"

	// KindOutOfDomain marks questions outside invoice/service analytics.
	// Recoverable: polite redirect.
	KindOutOfDomain Kind = "out_of_domain"

	// KindValidationRejected marks SQL that failed safety validation.
	// Fatal for the turn; detail is logged, never shown to the user.
	KindValidationRejected Kind = "validation_rejected"

	// KindUpstreamModelFailure marks a failed language-model call.
	// Recoverable with a retry budget of one, then degrades to clarification.
	KindUpstreamModelFailure Kind = "upstream_model_failure"

	// KindExecutionError marks a failure in the relational store.
	// Surfaced as a generic failure; store detail is logged only.
	KindExecutionError Kind = "execution_error"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrStateConflict   = errors.New("conversation state modified concurrently")
	ErrTenantMismatch  = errors.New("session belongs to a different district")
	ErrUnknownMode     = errors.New("mode not in catalog")
)

// Error is a classified pipeline error. Message is safe to show to the
// end user for recoverable kinds; Detail is internal only.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Recoverable reports whether the turn can continue with a clarification
// instead of a generic failure message.
func (e *Error) Recoverable() bool {
	switch e.Kind {
	case KindAmbiguousInput, KindEntityNotFound, KindOutOfDomain, KindUpstreamModelFailure:
		return true
	}
	return false
}

// New creates a classified error with a user-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error. The cause is kept for logging but
// never rendered to the end user.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the kind from any error. Unclassified errors are
// treated as execution errors so nothing internal leaks upward.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindExecutionError
}

// UserMessage returns the text safe to surface for err. Unrecoverable and
// unclassified errors collapse to a generic message.
func UserMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Recoverable() {
		return appErr.Message
	}
	return "Sorry, I couldn't complete that request. Please try rephrasing your question."
}
