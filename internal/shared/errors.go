package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Task lifecycle errors
	ErrNoActiveTask    = fmt.Errorf("no active task")
	ErrTaskMismatch    = fmt.Errorf("task id does not match active session")
	ErrTaskActive      = fmt.Errorf("a task is already being tracked")
	ErrAlreadyTerminal = fmt.Errorf("task already reached a terminal state")
	ErrCancelPending   = fmt.Errorf("cancellation already requested")
	ErrCancelFailed    = fmt.Errorf("cancellation failed")

	// Transport errors
	ErrAPIRequest       = fmt.Errorf("API request failed")
	ErrConnectivityLost = fmt.Errorf("server unreachable")
	ErrPushDisconnected = fmt.Errorf("push channel disconnected")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidTaskType = fmt.Errorf("invalid task type")
)
