package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestServiceCallError_Unwrap(t *testing.T) {
	cause := context.DeadlineExceeded
	err := &ServiceCallError{
		ServiceID:  "payments",
		InstanceID: "i-1",
		Action:     "charge",
		Err:        cause,
	}

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected errors.Is to find the timeout cause")
	}

	wrapped := fmt.Errorf("step failed: %w", err)
	var callErr *ServiceCallError
	if !errors.As(wrapped, &callErr) {
		t.Fatal("expected errors.As to find ServiceCallError")
	}
	if callErr.ServiceID != "payments" {
		t.Errorf("expected service payments, got %s", callErr.ServiceID)
	}
}

func TestWorkflowStepError_Unwrap(t *testing.T) {
	cause := &ServiceCallError{ServiceID: "payments", Action: "charge", Err: errors.New("boom")}
	err := &WorkflowStepError{WorkflowID: "wf-1", Step: "charge", Attempts: 3, Err: cause}

	var callErr *ServiceCallError
	if !errors.As(err, &callErr) {
		t.Fatal("expected errors.As to find wrapped ServiceCallError")
	}
}

func TestCircuitOpenError_Message(t *testing.T) {
	err := &CircuitOpenError{ServiceID: "payments", RetryAfter: 5 * time.Second}
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected non-empty message")
	}
	var openErr *CircuitOpenError
	if !errors.As(fmt.Errorf("call rejected: %w", err), &openErr) {
		t.Fatal("expected errors.As to find CircuitOpenError")
	}
}
