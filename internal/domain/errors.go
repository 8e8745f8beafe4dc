package domain

import (
	"fmt"
	"time"
)

var (
	ErrServiceNotFound   = fmt.Errorf("service not found")
	ErrDuplicateService  = fmt.Errorf("service already registered")
	ErrInstanceNotFound  = fmt.Errorf("instance not found")
	ErrNoHealthyInstance = fmt.Errorf("no healthy instance available")
	ErrWorkflowNotFound  = fmt.Errorf("workflow not found")
	ErrWorkflowFinished  = fmt.Errorf("workflow already finished")
	ErrInvalidRequest    = fmt.Errorf("invalid request")
)

// CircuitOpenError is returned when a call is rejected before any instance
// is attempted because the service's breaker is open.
type CircuitOpenError struct {
	ServiceID  string        `json:"service_id"`
	RetryAfter time.Duration `json:"retry_after"`
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for service %s, retry after %s", e.ServiceID, e.RetryAfter)
}

// ServiceCallError wraps the transport or timeout cause of a failed call.
type ServiceCallError struct {
	ServiceID  string
	InstanceID string
	Action     string
	Err        error
}

func (e *ServiceCallError) Error() string {
	return fmt.Sprintf("call to %s/%s on instance %s failed: %v",
		e.ServiceID, e.Action, e.InstanceID, e.Err)
}

func (e *ServiceCallError) Unwrap() error {
	return e.Err
}

// WorkflowStepError is the terminal error of a step whose retries are exhausted.
type WorkflowStepError struct {
	WorkflowID string
	Step       string
	Attempts   int
	Err        error
}

func (e *WorkflowStepError) Error() string {
	return fmt.Sprintf("workflow %s step %q failed after %d attempts: %v",
		e.WorkflowID, e.Step, e.Attempts, e.Err)
}

func (e *WorkflowStepError) Unwrap() error {
	return e.Err
}
