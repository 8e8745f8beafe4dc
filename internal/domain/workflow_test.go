package domain

import (
	"testing"
	"time"
)

func TestWorkflowSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    WorkflowSpec
		wantErr bool
	}{
		{
			name: "valid two step",
			spec: WorkflowSpec{
				Name: "checkout",
				Steps: []StepSpec{
					{Name: "reserve", ServiceID: "inventory", Action: "reserve"},
					{Name: "charge", ServiceID: "payments", Action: "charge"},
				},
			},
		},
		{
			name: "zero steps is valid",
			spec: WorkflowSpec{Name: "noop"},
		},
		{
			name:    "missing name",
			spec:    WorkflowSpec{},
			wantErr: true,
		},
		{
			name: "missing service id",
			spec: WorkflowSpec{
				Name:  "checkout",
				Steps: []StepSpec{{Name: "reserve", Action: "reserve"}},
			},
			wantErr: true,
		},
		{
			name: "missing action",
			spec: WorkflowSpec{
				Name:  "checkout",
				Steps: []StepSpec{{Name: "reserve", ServiceID: "inventory"}},
			},
			wantErr: true,
		},
		{
			name: "negative retries",
			spec: WorkflowSpec{
				Name:  "checkout",
				Steps: []StepSpec{{ServiceID: "inventory", Action: "reserve", MaxRetries: -1}},
			},
			wantErr: true,
		},
		{
			name: "compensation without action",
			spec: WorkflowSpec{
				Name: "checkout",
				Steps: []StepSpec{
					{ServiceID: "inventory", Action: "reserve", Compensate: &CompensationRef{ServiceID: "inventory"}},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestWorkflowStatusTerminal(t *testing.T) {
	terminal := []WorkflowStatus{WorkflowCompleted, WorkflowFailed, WorkflowCanceled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	if WorkflowPending.Terminal() || WorkflowRunning.Terminal() {
		t.Error("pending and running must not be terminal")
	}
}

func TestWorkflowClone_IsDeep(t *testing.T) {
	wf := &Workflow{
		ID:     "wf-1",
		Name:   "checkout",
		Status: WorkflowRunning,
		Steps: []*WorkflowStep{
			{Name: "reserve", ServiceID: "inventory", Action: "reserve", Status: StepCompleted},
		},
		Compensations: []CompensationReport{
			{Step: "reserve", ServiceID: "inventory", AttemptedAt: time.Now()},
		},
	}

	clone := wf.Clone()
	clone.Steps[0].Status = StepFailed
	clone.Compensations[0].Step = "other"

	if wf.Steps[0].Status != StepCompleted {
		t.Error("mutating clone step leaked into original")
	}
	if wf.Compensations[0].Step != "reserve" {
		t.Error("mutating clone compensations leaked into original")
	}
}
