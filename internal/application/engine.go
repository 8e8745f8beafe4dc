package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/apascualco/maestro/internal/domain"
	"github.com/google/uuid"
)

type EngineConfig struct {
	MaxConcurrent       int
	StepTimeout         time.Duration
	BaseBackoff         time.Duration
	MaxBackoff          time.Duration
	CompensationTimeout time.Duration
	// CompensationBypassBreaker lets rollback calls through an open breaker.
	// Off by default: a saga whose compensating service is down is surfaced
	// as a failed-compensation report rather than forced through.
	CompensationBypassBreaker bool
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 16
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 10 * time.Second
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.CompensationTimeout <= 0 {
		c.CompensationTimeout = 10 * time.Second
	}
	return c
}

// WorkflowEngine executes sagas: ordered steps routed through the
// orchestrator with per-step timeout and exponential-backoff retries, and
// reverse-order best-effort compensation of completed steps on the first
// unrecoverable failure.
type WorkflowEngine struct {
	orchestrator *Orchestrator
	bus          *EventBus
	config       EngineConfig

	mu        sync.RWMutex
	workflows map[string]*domain.Workflow
	cancels   map[string]context.CancelFunc

	sem chan struct{}
	wg  sync.WaitGroup
}

func NewWorkflowEngine(orchestrator *Orchestrator, bus *EventBus, cfg EngineConfig) *WorkflowEngine {
	cfg = cfg.withDefaults()
	return &WorkflowEngine{
		orchestrator: orchestrator,
		bus:          bus,
		config:       cfg,
		workflows:    make(map[string]*domain.Workflow),
		cancels:      make(map[string]context.CancelFunc),
		sem:          make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Submit validates and stores the workflow and launches its executor. The
// returned id is the handle for Status and Cancel.
func (e *WorkflowEngine) Submit(spec *domain.WorkflowSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	wf := &domain.Workflow{
		ID:          uuid.New().String(),
		Name:        spec.Name,
		Status:      domain.WorkflowPending,
		SubmittedAt: time.Now(),
	}
	for _, stepSpec := range spec.Steps {
		timeout := time.Duration(stepSpec.TimeoutMS) * time.Millisecond
		if timeout <= 0 {
			timeout = e.config.StepTimeout
		}
		name := stepSpec.Name
		if name == "" {
			name = stepSpec.ServiceID + "/" + stepSpec.Action
		}
		wf.Steps = append(wf.Steps, &domain.WorkflowStep{
			Name:       name,
			ServiceID:  stepSpec.ServiceID,
			Action:     stepSpec.Action,
			Params:     stepSpec.Params,
			Timeout:    timeout,
			MaxRetries: stepSpec.MaxRetries,
			Compensate: stepSpec.Compensate,
			Status:     domain.StepPending,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.workflows[wf.ID] = wf
	e.cancels[wf.ID] = cancel
	e.mu.Unlock()

	slog.Info("workflow submitted",
		"workflow_id", wf.ID,
		"name", wf.Name,
		"steps", len(wf.Steps),
	)
	e.bus.Publish(Event{Type: EventWorkflowSubmitted, WorkflowID: wf.ID})

	e.wg.Add(1)
	go e.run(ctx, wf.ID)

	return wf.ID, nil
}

// Status returns a deep copy; repeated calls without further progress return
// identical results.
func (e *WorkflowEngine) Status(workflowID string) (*domain.Workflow, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	wf, exists := e.workflows[workflowID]
	if !exists {
		return nil, domain.ErrWorkflowNotFound
	}
	return wf.Clone(), nil
}

// Cancel requests cooperative cancellation. A workflow that has not begun
// its next step stops between steps; a step already in flight fails with the
// canceled context and triggers the usual compensation path.
func (e *WorkflowEngine) Cancel(workflowID string) error {
	e.mu.Lock()
	wf, exists := e.workflows[workflowID]
	if !exists {
		e.mu.Unlock()
		return domain.ErrWorkflowNotFound
	}
	if wf.Status.Terminal() {
		e.mu.Unlock()
		return domain.ErrWorkflowFinished
	}
	cancel := e.cancels[workflowID]
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// Shutdown waits for running workflows to reach a terminal status.
func (e *WorkflowEngine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *WorkflowEngine) run(ctx context.Context, workflowID string) {
	defer e.wg.Done()

	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	// canceled while queued behind the concurrency limit
	if ctx.Err() != nil {
		e.finish(workflowID, domain.WorkflowCanceled, context.Canceled)
		return
	}

	e.mu.Lock()
	wf := e.workflows[workflowID]
	wf.Status = domain.WorkflowRunning
	wf.StartedAt = time.Now()
	steps := len(wf.Steps)
	e.mu.Unlock()

	for i := 0; i < steps; i++ {
		// cooperative cancellation check between steps
		if ctx.Err() != nil {
			e.markSkippedFrom(workflowID, i)
			if i == 0 {
				e.finish(workflowID, domain.WorkflowCanceled, context.Canceled)
				return
			}
			e.compensate(workflowID, i)
			e.finish(workflowID, domain.WorkflowFailed, context.Canceled)
			return
		}

		e.mu.Lock()
		wf.CurrentStep = i
		step := wf.Steps[i]
		step.Status = domain.StepRunning
		e.mu.Unlock()

		result, err := e.executeStep(ctx, workflowID, step)
		if err != nil {
			e.mu.Lock()
			step.Status = domain.StepFailed
			step.Error = err.Error()
			e.mu.Unlock()

			e.markSkippedFrom(workflowID, i+1)
			e.compensate(workflowID, i)
			e.finish(workflowID, domain.WorkflowFailed, err)
			return
		}

		e.mu.Lock()
		step.Status = domain.StepCompleted
		step.Result = result
		e.mu.Unlock()

		e.bus.Publish(Event{
			Type:       EventWorkflowStepCompleted,
			WorkflowID: workflowID,
			ServiceID:  step.ServiceID,
			Detail:     map[string]string{"step": step.Name},
		})
	}

	e.finish(workflowID, domain.WorkflowCompleted, nil)
}

// executeStep runs one step with up to 1+MaxRetries attempts and exponential
// backoff between them. Cancellation is never retried.
func (e *WorkflowEngine) executeStep(ctx context.Context, workflowID string, step *domain.WorkflowStep) ([]byte, error) {
	var lastErr error
	backoff := e.config.BaseBackoff
	attempts := 1 + step.MaxRetries

	for attempt := 1; attempt <= attempts; attempt++ {
		e.mu.Lock()
		step.Attempts = attempt
		e.mu.Unlock()

		stepCtx, cancel := context.WithTimeout(ctx, step.Timeout)
		result, err := e.orchestrator.CallService(stepCtx, step.ServiceID, step.Action, step.Params)
		cancel()

		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return nil, context.Canceled
		}

		if attempt < attempts {
			slog.Warn("workflow step failed, retrying",
				"workflow_id", workflowID,
				"step", step.Name,
				"attempt", attempt,
				"max_attempts", attempts,
				"backoff", backoff.String(),
				"error", err,
			)

			select {
			case <-time.After(backoff):
				backoff *= 2
				if backoff > e.config.MaxBackoff {
					backoff = e.config.MaxBackoff
				}
			case <-ctx.Done():
				return nil, context.Canceled
			}
		}
	}

	return nil, &domain.WorkflowStepError{
		WorkflowID: workflowID,
		Step:       step.Name,
		Attempts:   attempts,
		Err:        lastErr,
	}
}

// compensate walks previously completed steps in reverse order and invokes
// each compensating action once. Failures are logged and collected so one
// failed compensation never prevents attempting the rest.
func (e *WorkflowEngine) compensate(workflowID string, failedIndex int) {
	e.mu.RLock()
	wf := e.workflows[workflowID]
	completed := make([]*domain.WorkflowStep, 0, failedIndex)
	for i := 0; i < failedIndex && i < len(wf.Steps); i++ {
		if wf.Steps[i].Status == domain.StepCompleted {
			completed = append(completed, wf.Steps[i])
		}
	}
	e.mu.RUnlock()

	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), e.config.CompensationTimeout)
		_, err := e.orchestrator.callService(ctx, step.Compensate.ServiceID,
			step.Compensate.Action, step.Compensate.Params, e.config.CompensationBypassBreaker)
		cancel()

		if err != nil {
			slog.Error("compensation failed",
				"workflow_id", workflowID,
				"step", step.Name,
				"service_id", step.Compensate.ServiceID,
				"action", step.Compensate.Action,
				"error", err,
			)

			report := domain.CompensationReport{
				Step:        step.Name,
				ServiceID:   step.Compensate.ServiceID,
				Action:      step.Compensate.Action,
				Error:       err.Error(),
				AttemptedAt: time.Now(),
			}
			e.mu.Lock()
			wf.Compensations = append(wf.Compensations, report)
			e.mu.Unlock()

			e.bus.Publish(Event{
				Type:       EventCompensationFailed,
				WorkflowID: workflowID,
				ServiceID:  step.Compensate.ServiceID,
				Detail:     map[string]string{"step": step.Name},
			})
			continue
		}

		slog.Info("compensation applied",
			"workflow_id", workflowID,
			"step", step.Name,
			"action", step.Compensate.Action,
		)
	}
}

func (e *WorkflowEngine) markSkippedFrom(workflowID string, index int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	wf := e.workflows[workflowID]
	for i := index; i < len(wf.Steps); i++ {
		if wf.Steps[i].Status == domain.StepPending {
			wf.Steps[i].Status = domain.StepSkipped
		}
	}
}

func (e *WorkflowEngine) finish(workflowID string, status domain.WorkflowStatus, err error) {
	e.mu.Lock()
	wf := e.workflows[workflowID]
	wf.Status = status
	wf.CompletedAt = time.Now()
	if err != nil {
		wf.Error = err.Error()
	}
	cancel := e.cancels[workflowID]
	delete(e.cancels, workflowID)
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	eventType := EventWorkflowCompleted
	switch status {
	case domain.WorkflowFailed:
		eventType = EventWorkflowFailed
	case domain.WorkflowCanceled:
		eventType = EventWorkflowCanceled
	}

	slog.Info("workflow finished",
		"workflow_id", workflowID,
		"status", status,
		"error", wf.Error,
	)
	e.bus.Publish(Event{Type: eventType, WorkflowID: workflowID})
}
