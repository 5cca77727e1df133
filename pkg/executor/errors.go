package executor

import "fmt"

// Kind classifies why a tool call failed
type Kind string

const (
	KindPermissionDenied    Kind = "permission_denied"
	KindRateLimitExceeded   Kind = "rate_limit_exceeded"
	KindInvalidParameters   Kind = "invalid_parameters"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindExecutionTimeout    Kind = "execution_timeout"
	KindExecutionError      Kind = "execution_error"
	KindInteractionTimeout  Kind = "interaction_timeout"
)

// Error is a classified execution failure
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the kind from an executor error, or KindExecutionError
// for anything unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindExecutionError
}
