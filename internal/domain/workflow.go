package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCanceled  WorkflowStatus = "canceled"
)

func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed || s == WorkflowCanceled
}

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// CompensationRef names the inverse action that undoes a completed step.
type CompensationRef struct {
	ServiceID string          `json:"service_id"`
	Action    string          `json:"action"`
	Params    json.RawMessage `json:"params,omitempty"`
}

type WorkflowStep struct {
	Name       string           `json:"name"`
	ServiceID  string           `json:"service_id"`
	Action     string           `json:"action"`
	Params     json.RawMessage  `json:"params,omitempty"`
	Timeout    time.Duration    `json:"timeout"`
	MaxRetries int              `json:"max_retries"`
	Compensate *CompensationRef `json:"compensate,omitempty"`

	Status   StepStatus      `json:"status"`
	Attempts int             `json:"attempts"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// CompensationReport records one best-effort compensation attempt that failed.
// Reports are surfaced on the workflow instead of aborting the rollback.
type CompensationReport struct {
	Step        string    `json:"step"`
	ServiceID   string    `json:"service_id"`
	Action      string    `json:"action"`
	Error       string    `json:"error"`
	AttemptedAt time.Time `json:"attempted_at"`
}

type Workflow struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Steps         []*WorkflowStep      `json:"steps"`
	Status        WorkflowStatus       `json:"status"`
	CurrentStep   int                  `json:"current_step"`
	Error         string               `json:"error,omitempty"`
	Compensations []CompensationReport `json:"compensations,omitempty"`
	SubmittedAt   time.Time            `json:"submitted_at"`
	StartedAt     time.Time            `json:"started_at,omitzero"`
	CompletedAt   time.Time            `json:"completed_at,omitzero"`
}

func (w *Workflow) Clone() *Workflow {
	c := *w
	c.Steps = make([]*WorkflowStep, 0, len(w.Steps))
	for _, step := range w.Steps {
		stepCopy := *step
		c.Steps = append(c.Steps, &stepCopy)
	}
	if w.Compensations != nil {
		c.Compensations = make([]CompensationReport, len(w.Compensations))
		copy(c.Compensations, w.Compensations)
	}
	return &c
}

// WorkflowSpec is the submission payload. Steps run strictly in declared
// order; compensation runs over completed steps in reverse on first failure.
type WorkflowSpec struct {
	Name  string     `json:"name" binding:"required"`
	Steps []StepSpec `json:"steps"`
}

type StepSpec struct {
	Name       string           `json:"name"`
	ServiceID  string           `json:"service_id"`
	Action     string           `json:"action"`
	Params     json.RawMessage  `json:"params,omitempty"`
	TimeoutMS  int              `json:"timeout_ms"`
	MaxRetries int              `json:"max_retries"`
	Compensate *CompensationRef `json:"compensate,omitempty"`
}

func (s *WorkflowSpec) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	for i, step := range s.Steps {
		if step.ServiceID == "" {
			return fmt.Errorf("step %d: service_id is required", i)
		}
		if step.Action == "" {
			return fmt.Errorf("step %d: action is required", i)
		}
		if step.TimeoutMS < 0 {
			return fmt.Errorf("step %d: timeout_ms must not be negative", i)
		}
		if step.MaxRetries < 0 {
			return fmt.Errorf("step %d: max_retries must not be negative", i)
		}
		if step.Compensate != nil {
			if step.Compensate.ServiceID == "" || step.Compensate.Action == "" {
				return fmt.Errorf("step %d: compensate requires service_id and action", i)
			}
		}
	}
	return nil
}
