package application

import (
	"errors"
	"testing"

	"github.com/apascualco/maestro/internal/domain"
)

func newTestRegistry() *Registry {
	return NewRegistry(RegistryConfig{}, NewEventBus())
}

func registerTestService(t *testing.T, r *Registry, id string, instances int) *domain.ServiceDescriptor {
	t.Helper()

	desc, err := r.Register(&domain.RegisterServiceRequest{ID: id, Name: id})
	if err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	for i := 0; i < instances; i++ {
		if _, err := r.AddInstance(id, &domain.AddInstanceRequest{Endpoint: "127.0.0.1:9000"}); err != nil {
			t.Fatalf("add instance to %s: %v", id, err)
		}
	}
	return desc
}

func TestRegister_Duplicate(t *testing.T) {
	registry := newTestRegistry()

	registerTestService(t, registry, "payments", 0)

	_, err := registry.Register(&domain.RegisterServiceRequest{ID: "payments", Name: "payments"})
	if !errors.Is(err, domain.ErrDuplicateService) {
		t.Fatalf("expected ErrDuplicateService, got %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	registry := newTestRegistry()

	if _, err := registry.Register(&domain.RegisterServiceRequest{Name: "payments"}); err == nil {
		t.Error("expected error for missing id")
	}
	if _, err := registry.Register(&domain.RegisterServiceRequest{ID: "a", Name: "a", Dependencies: []string{"a"}}); err == nil {
		t.Error("expected error for self dependency")
	}
}

func TestUnregister_CascadesInstances(t *testing.T) {
	registry := newTestRegistry()

	registerTestService(t, registry, "payments", 2)
	desc, _ := registry.GetService("payments")
	instanceID := desc.Instances[0].ID

	if err := registry.Unregister("payments"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := registry.GetService("payments"); !errors.Is(err, domain.ErrServiceNotFound) {
		t.Errorf("expected ErrServiceNotFound, got %v", err)
	}
	if _, err := registry.GetInstance(instanceID); !errors.Is(err, domain.ErrInstanceNotFound) {
		t.Errorf("expected instance to be removed with the service, got %v", err)
	}

	if err := registry.Unregister("payments"); !errors.Is(err, domain.ErrServiceNotFound) {
		t.Errorf("expected ErrServiceNotFound on second unregister, got %v", err)
	}
}

func TestAddInstance_UnknownService(t *testing.T) {
	registry := newTestRegistry()

	_, err := registry.AddInstance("nope", &domain.AddInstanceRequest{Endpoint: "127.0.0.1:9000"})
	if !errors.Is(err, domain.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestRemoveInstance(t *testing.T) {
	registry := newTestRegistry()

	registerTestService(t, registry, "payments", 1)
	desc, _ := registry.GetService("payments")
	instanceID := desc.Instances[0].ID

	if err := registry.RemoveInstance("payments", instanceID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := registry.RemoveInstance("payments", instanceID); !errors.Is(err, domain.ErrInstanceNotFound) {
		t.Errorf("expected ErrInstanceNotFound, got %v", err)
	}

	desc, _ = registry.GetService("payments")
	if len(desc.Instances) != 0 {
		t.Errorf("expected no instances, got %d", len(desc.Instances))
	}
}

func TestSnapshot_IsolatedFromMutation(t *testing.T) {
	registry := newTestRegistry()

	registerTestService(t, registry, "payments", 1)

	snapshot := registry.Snapshot()

	// mutate after the snapshot was taken
	registerTestService(t, registry, "inventory", 1)
	if err := registry.Unregister("payments"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var seen []string
	for desc := range snapshot {
		seen = append(seen, desc.ID)
	}
	if len(seen) != 1 || seen[0] != "payments" {
		t.Errorf("snapshot must reflect state at call time, got %v", seen)
	}
}

func TestSnapshot_IsRestartable(t *testing.T) {
	registry := newTestRegistry()

	registerTestService(t, registry, "payments", 0)
	registerTestService(t, registry, "inventory", 0)

	snapshot := registry.Snapshot()

	first := 0
	for range snapshot {
		first++
		break // abandon mid-iteration
	}

	second := 0
	for range snapshot {
		second++
	}

	if first != 1 {
		t.Errorf("expected to stop after 1, got %d", first)
	}
	if second != 2 {
		t.Errorf("expected replay to see 2 services, got %d", second)
	}
}

func TestHeartbeat(t *testing.T) {
	registry := newTestRegistry()

	registerTestService(t, registry, "payments", 1)
	desc, _ := registry.GetService("payments")
	inst := desc.Instances[0]

	before := inst.LastHeartbeat
	usage := domain.ResourceUsage{CPUPercent: 42, MemoryPercent: 10}

	if err := registry.Heartbeat(inst.ID, usage); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := registry.GetInstance(inst.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.LastHeartbeat.After(before) && updated.LastHeartbeat != before {
		t.Error("expected heartbeat timestamp to advance")
	}
	if updated.Usage.CPUPercent != 42 {
		t.Errorf("expected usage to be recorded, got %+v", updated.Usage)
	}

	if err := registry.Heartbeat("unknown", usage); !errors.Is(err, domain.ErrInstanceNotFound) {
		t.Errorf("expected ErrInstanceNotFound, got %v", err)
	}
}

func TestUpdateInstanceStatus_CompareAndSet(t *testing.T) {
	registry := newTestRegistry()

	registerTestService(t, registry, "payments", 1)
	desc, _ := registry.GetService("payments")
	instanceID := desc.Instances[0].ID

	// running -> draining, any source allowed
	changed, err := registry.UpdateInstanceStatus("payments", instanceID, domain.InstanceDraining)
	if err != nil || !changed {
		t.Fatalf("expected transition to draining, changed=%v err=%v", changed, err)
	}

	// monitor-style writeback must not resurrect a draining instance
	changed, err = registry.UpdateInstanceStatus("payments", instanceID, domain.InstanceRunning, domain.InstanceErrored)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Error("expected guarded transition to be refused")
	}

	inst, _ := registry.GetInstance(instanceID)
	if inst.Status != domain.InstanceDraining {
		t.Errorf("expected draining, got %s", inst.Status)
	}
}
