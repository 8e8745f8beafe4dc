package integration

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/apascualco/maestro/internal/domain"
)

func submitTestWorkflow(t *testing.T, spec domain.WorkflowSpec) string {
	t.Helper()

	resp, body := doAuthedJSON(t, http.MethodPost, "/v1/workflows", spec)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", resp.StatusCode, string(body))
	}

	var submitResp struct {
		WorkflowID string `json:"workflow_id"`
	}
	if err := json.Unmarshal(body, &submitResp); err != nil {
		t.Fatalf("failed to decode submit response: %v", err)
	}
	if submitResp.WorkflowID == "" {
		t.Fatal("expected workflow_id to be set")
	}
	return submitResp.WorkflowID
}

func awaitWorkflow(t *testing.T, id string) *domain.Workflow {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, body := doAuthedJSON(t, http.MethodGet, "/v1/workflows/"+id, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected status 200 polling workflow, got %d: %s", resp.StatusCode, string(body))
		}

		var wf domain.Workflow
		if err := json.Unmarshal(body, &wf); err != nil {
			t.Fatalf("failed to decode workflow: %v", err)
		}
		if wf.Status.Terminal() {
			return &wf
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("workflow %s did not finish in time", id)
	return nil
}

func TestWorkflow_RunsToCompletion(t *testing.T) {
	inventory := startActionService(t, "wf-inventory-itest")
	payments := startActionService(t, "wf-payments-itest")

	registerTestService(t, "wf-inventory-itest")
	registerTestService(t, "wf-payments-itest")
	addTestInstance(t, "wf-inventory-itest", inventory.server.URL)
	addTestInstance(t, "wf-payments-itest", payments.server.URL)

	id := submitTestWorkflow(t, domain.WorkflowSpec{
		Name: "place-order",
		Steps: []domain.StepSpec{
			{Name: "reserve", ServiceID: "wf-inventory-itest", Action: "reserve",
				Params: json.RawMessage(`{"sku": "A1", "qty": 2}`)},
			{Name: "charge", ServiceID: "wf-payments-itest", Action: "charge",
				Params: json.RawMessage(`{"amount": 40}`)},
		},
	})

	wf := awaitWorkflow(t, id)
	if wf.Status != domain.WorkflowCompleted {
		t.Fatalf("status = %s, want completed (error: %s)", wf.Status, wf.Error)
	}
	for _, step := range wf.Steps {
		if step.Status != domain.StepCompleted {
			t.Errorf("step %s status = %s, want completed", step.Name, step.Status)
		}
	}
	if inventory.callsFor("reserve") != 1 {
		t.Errorf("reserve called %d times, want 1", inventory.callsFor("reserve"))
	}
	if payments.callsFor("charge") != 1 {
		t.Errorf("charge called %d times, want 1", payments.callsFor("charge"))
	}
}

func TestWorkflow_FailureCompensatesCompletedSteps(t *testing.T) {
	inventory := startActionService(t, "wf-comp-inventory-itest")
	payments := startActionService(t, "wf-comp-payments-itest")
	payments.failOn("charge", http.StatusInternalServerError)

	registerTestService(t, "wf-comp-inventory-itest")
	registerTestService(t, "wf-comp-payments-itest")
	addTestInstance(t, "wf-comp-inventory-itest", inventory.server.URL)
	addTestInstance(t, "wf-comp-payments-itest", payments.server.URL)

	id := submitTestWorkflow(t, domain.WorkflowSpec{
		Name: "doomed-order",
		Steps: []domain.StepSpec{
			{Name: "reserve", ServiceID: "wf-comp-inventory-itest", Action: "reserve",
				Compensate: &domain.CompensationRef{
					ServiceID: "wf-comp-inventory-itest",
					Action:    "release",
				}},
			{Name: "charge", ServiceID: "wf-comp-payments-itest", Action: "charge"},
		},
	})

	wf := awaitWorkflow(t, id)
	if wf.Status != domain.WorkflowFailed {
		t.Fatalf("status = %s, want failed", wf.Status)
	}
	if wf.Steps[1].Status != domain.StepFailed {
		t.Errorf("charge step status = %s, want failed", wf.Steps[1].Status)
	}
	if inventory.callsFor("release") != 1 {
		t.Errorf("release called %d times, want 1 (compensation for reserve)", inventory.callsFor("release"))
	}
	if len(wf.Compensations) != 0 {
		t.Errorf("expected no failed compensations, got %d", len(wf.Compensations))
	}
}

func TestWorkflow_UnknownServiceFails(t *testing.T) {
	id := submitTestWorkflow(t, domain.WorkflowSpec{
		Name: "ghost-order",
		Steps: []domain.StepSpec{
			{Name: "spook", ServiceID: "no-such-service-itest", Action: "boo"},
		},
	})

	wf := awaitWorkflow(t, id)
	if wf.Status != domain.WorkflowFailed {
		t.Errorf("status = %s, want failed", wf.Status)
	}
	if wf.Steps[0].Status != domain.StepFailed {
		t.Errorf("step status = %s, want failed", wf.Steps[0].Status)
	}
}

func TestWorkflow_Cancel(t *testing.T) {
	slow := startActionService(t, "wf-slow-itest")
	registerTestService(t, "wf-slow-itest")
	addTestInstance(t, "wf-slow-itest", slow.server.URL)

	steps := make([]domain.StepSpec, 0, 20)
	for i := 0; i < 20; i++ {
		steps = append(steps, domain.StepSpec{ServiceID: "wf-slow-itest", Action: "tick"})
	}
	id := submitTestWorkflow(t, domain.WorkflowSpec{Name: "long-haul", Steps: steps})

	resp, body := doAuthedJSON(t, http.MethodPost, "/v1/workflows/"+id+"/cancel", nil)
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected status 202 or 409 canceling, got %d: %s", resp.StatusCode, string(body))
	}

	// Cancel before the first step ends the workflow canceled; mid-flight it
	// fails with the canceled context. Either way the run must stop early
	// unless it already finished.
	wf := awaitWorkflow(t, id)
	switch wf.Status {
	case domain.WorkflowCanceled, domain.WorkflowFailed:
		if slow.callsFor("tick") >= len(steps) {
			t.Errorf("expected fewer than %d ticks after cancel, got %d", len(steps), slow.callsFor("tick"))
		}
	case domain.WorkflowCompleted:
		// the run outraced the cancel
	default:
		t.Errorf("unexpected terminal status %s", wf.Status)
	}
}
