package engine

import (
	"errors"
	"fmt"
)

// Configuration errors returned by SessionFactory.MakeObject and New.
var (
	// ErrInvalidConfiguration indicates an unusable rule set, e.g. no
	// descriptors at all.
	ErrInvalidConfiguration = errors.New("invalid engine configuration")

	// ErrMissingCollaborator indicates the result collector or the
	// storage factory is unset.
	ErrMissingCollaborator = errors.New("missing engine collaborator")

	// ErrSession is wrapped by every SessionError.
	ErrSession = errors.New("session error")
)

// SessionError reports an illegal session lifecycle transition.
type SessionError struct {
	SessionID string
	Op        string
	State     State
	Message   string
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %s in state %s: %s", e.SessionID, e.Op, e.State, e.Message)
}

// Unwrap lets errors.Is match ErrSession.
func (e *SessionError) Unwrap() error {
	return ErrSession
}

// RuntimeError represents an unexpected failure during Session.Call.
//
// A runtime error aborts the whole diagnosis of the trace. The session
// that raised it must be destroyed rather than passivated.
//
// Condition failures are not runtime errors; they are recorded as data.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// SessionID identifies the affected session.
	SessionID string

	// Rule identifies the rule being executed, if any.
	Rule string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeActionFailed indicates a rule action returned an error.
	ErrCodeActionFailed RuntimeErrorCode = "ACTION_FAILED"

	// ErrCodeConditionFailed indicates a guard predicate returned an error.
	ErrCodeConditionFailed RuntimeErrorCode = "CONDITION_FAILED"

	// ErrCodePanic indicates an action or predicate panicked.
	ErrCodePanic RuntimeErrorCode = "PANIC"

	// ErrCodeMissingVariable indicates a required session variable is unset.
	ErrCodeMissingVariable RuntimeErrorCode = "MISSING_VARIABLE"

	// ErrCodeBudgetExceeded indicates the execution budget ran out.
	ErrCodeBudgetExceeded RuntimeErrorCode = "BUDGET_EXCEEDED"

	// ErrCodeInvalidOutput indicates an action result could not be
	// turned into tags.
	ErrCodeInvalidOutput RuntimeErrorCode = "INVALID_OUTPUT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.SessionID != "" && e.Rule != "":
		msg += fmt.Sprintf(" (session=%s, rule=%s)", e.SessionID, e.Rule)
	case e.SessionID != "":
		msg += fmt.Sprintf(" (session=%s)", e.SessionID)
	case e.Rule != "":
		msg += fmt.Sprintf(" (rule=%s)", e.Rule)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsSessionError returns true if the error is a lifecycle error.
// Uses errors.As to handle wrapped errors.
func IsSessionError(err error) bool {
	var se *SessionError
	return errors.As(err, &se)
}

// IsRuntimeError returns true if the error aborted a diagnosis.
func IsRuntimeError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re)
}

// IsBudgetExceeded returns true if the error is an exhausted execution budget.
func IsBudgetExceeded(err error) bool {
	return runtimeCode(err) == ErrCodeBudgetExceeded
}

// RuntimeCode returns the code of a wrapped RuntimeError, or "".
func RuntimeCode(err error) RuntimeErrorCode {
	return runtimeCode(err)
}

func runtimeCode(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// NewBudgetError creates a RuntimeError for an exhausted execution budget.
func NewBudgetError(sessionID string, executions, limit int) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeBudgetExceeded,
		Message:   fmt.Sprintf("session exceeded execution budget (%d > %d)", executions, limit),
		SessionID: sessionID,
		Details: map[string]string{
			"executions":     fmt.Sprintf("%d", executions),
			"max_executions": fmt.Sprintf("%d", limit),
		},
	}
}

// NewMissingVariableError creates a RuntimeError for an unset variable.
func NewMissingVariableError(sessionID, rule, variable string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeMissingVariable,
		Message:   fmt.Sprintf("required session variable %q is not set", variable),
		SessionID: sessionID,
		Rule:      rule,
		Details:   map[string]string{"variable": variable},
	}
}
