package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownProcessor indicates that a requested step name is not registered
	ErrUnknownProcessor = errors.New("unknown processor")

	// ErrDuplicateName indicates that a strict registration collided with an existing name
	ErrDuplicateName = errors.New("processor name already registered")

	// ErrMissingDependency indicates that a step's required fields were absent
	ErrMissingDependency = errors.New("missing dependency")

	// ErrProcessorExecution indicates that a step failed while running
	ErrProcessorExecution = errors.New("processor execution failed")

	// ErrDispatch indicates a transport failure while dispatching a task
	ErrDispatch = errors.New("dispatch failed")

	// ErrDispatchTimeout indicates that no response arrived before the deadline
	ErrDispatchTimeout = errors.New("dispatch timed out")

	// ErrInvalidConfig indicates that a processor configuration is missing or malformed
	ErrInvalidConfig = errors.New("invalid processor configuration")

	// ErrCancelled indicates that a suspended step was cancelled
	ErrCancelled = errors.New("step cancelled")

	// ErrCyclicDependency indicates that steps cannot be ordered topologically
	ErrCyclicDependency = errors.New("cyclic dependency between steps")

	// ErrFieldCollision indicates that a step tried to overwrite an existing field
	ErrFieldCollision = errors.New("field collision")

	// ErrExecutorClosed indicates that the executor no longer accepts work
	ErrExecutorClosed = errors.New("executor is shut down")

	// ErrNotConnected indicates that the client is not connected to NATS
	ErrNotConnected = errors.New("not connected to NATS")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")
)

// Error represents a structured pipeline error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// MissingDependencyError records the fields a step needed but did not find.
// Its message is what ends up in a result's error map.
type MissingDependencyError struct {
	Processor string
	Missing   []string
}

func (e *MissingDependencyError) Error() string {
	missing := append([]string(nil), e.Missing...)
	sort.Strings(missing)
	return fmt.Sprintf("missing deps: [%s]", strings.Join(missing, " "))
}

func (e *MissingDependencyError) Unwrap() error {
	return ErrMissingDependency
}

// MissingDependency creates a MissingDependencyError
func MissingDependency(processor string, missing []string) *MissingDependencyError {
	return &MissingDependencyError{Processor: processor, Missing: missing}
}

// UnknownProcessor wraps ErrUnknownProcessor with the offending name
func UnknownProcessor(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownProcessor, name)
}

// InvalidConfig wraps ErrInvalidConfig with the offending key
func InvalidConfig(key, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, key, reason)
}

// ExecutionError marks a step failure. Its message is the cause's message
// verbatim, and it matches both ErrProcessorExecution and the cause.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() []error {
	return []error{ErrProcessorExecution, e.Err}
}

// Execution marks err as a step execution failure unless it already
// belongs to the executor-level taxonomy.
func Execution(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrProcessorExecution) || errors.Is(err, ErrDispatch) ||
		errors.Is(err, ErrDispatchTimeout) || errors.Is(err, ErrCancelled) ||
		errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrExecutorClosed) {
		return err
	}
	return &ExecutionError{Err: err}
}

// IsFatal reports whether err describes a bad flow definition rather than a
// failed step. Only these errors abort a run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnknownProcessor) || errors.Is(err, ErrCyclicDependency)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrDispatchTimeout)
}

// IsNotConnected checks if an error is a not connected error
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}
