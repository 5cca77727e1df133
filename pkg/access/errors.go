package access

import (
	"fmt"
	"time"
)

// PermissionError reports that a role may not use a tool
type PermissionError struct {
	Role string
	Tool string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("role %q is not permitted to use tool %q", e.Role, e.Tool)
}

// RateLimitError reports that a (role, tool) subject exhausted its window
type RateLimitError struct {
	Role       string
	Tool       string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for role %q on tool %q (%d per %s)",
		e.Role, e.Tool, e.Limit, e.Window)
}

// ParameterError reports an invalid or unsafe call parameter
type ParameterError struct {
	Field  string
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Field, e.Reason)
}
