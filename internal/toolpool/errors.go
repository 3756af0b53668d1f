package toolpool

import "fmt"

// PoolExhaustedError is returned when acquire times out waiting for a
// free connection in the given category.
type PoolExhaustedError struct {
	Category string
	Waited   string
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("toolpool: exhausted waiting %s for a %q connection", e.Waited, e.Category)
}

// ToolUnavailableError is returned when no server in the pool exposes
// the requested tool, or its connection could not be (re)established.
type ToolUnavailableError struct {
	ToolName string
	Cause    error
}

func (e *ToolUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("toolpool: tool %q unavailable: %v", e.ToolName, e.Cause)
	}
	return fmt.Sprintf("toolpool: tool %q unavailable", e.ToolName)
}

func (e *ToolUnavailableError) Unwrap() error { return e.Cause }

// ToolTimeoutError is returned when a tool call exceeds its deadline.
// The connection is marked unhealthy: the in-flight read is abandoned
// and the subprocess is never trusted to resume mid-protocol.
type ToolTimeoutError struct {
	ToolName string
	After    string
}

func (e *ToolTimeoutError) Error() string {
	return fmt.Sprintf("toolpool: tool %q timed out after %s", e.ToolName, e.After)
}
