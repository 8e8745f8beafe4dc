package application

import (
	"log/slog"
	"time"

	"github.com/apascualco/maestro/internal/domain"
	"github.com/google/uuid"
)

func (r *Registry) Register(req *domain.RegisterServiceRequest) (*domain.ServiceDescriptor, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[req.ID]; exists {
		return nil, domain.ErrDuplicateService
	}

	desc := &domain.ServiceDescriptor{
		ID:           req.ID,
		Name:         req.Name,
		Version:      req.Version,
		Dependencies: req.Dependencies,
		Metadata:     req.Metadata,
		RegisteredAt: time.Now(),
	}
	r.services[req.ID] = desc

	slog.Info("service registered",
		"service_id", req.ID,
		"name", req.Name,
		"version", req.Version,
	)
	r.bus.Publish(Event{Type: EventServiceRegistered, ServiceID: req.ID})

	return desc.Clone(), nil
}

// Unregister removes the service and every instance it owns. Breaker and
// balancer teardown is the orchestrator's job.
func (r *Registry) Unregister(serviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc, exists := r.services[serviceID]
	if !exists {
		return domain.ErrServiceNotFound
	}

	for _, inst := range desc.Instances {
		delete(r.owners, inst.ID)
	}
	delete(r.services, serviceID)

	slog.Info("service unregistered",
		"service_id", serviceID,
		"instances_removed", len(desc.Instances),
	)
	r.bus.Publish(Event{Type: EventServiceUnregistered, ServiceID: serviceID})

	return nil
}

func (r *Registry) AddInstance(serviceID string, req *domain.AddInstanceRequest) (*domain.ServiceInstance, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	inst := &domain.ServiceInstance{
		ID:            uuid.New().String(),
		ServiceID:     serviceID,
		Endpoint:      req.Endpoint,
		Status:        domain.InstanceRunning,
		Usage:         req.Usage,
		RegisteredAt:  now,
		LastHeartbeat: now,
	}

	if err := r.attach(inst); err != nil {
		return nil, err
	}
	instCopy := *inst
	return &instCopy, nil
}

// attach inserts a pre-built instance, used both by AddInstance and by the
// orchestrator's scale-up path where instances start in status starting.
func (r *Registry) attach(inst *domain.ServiceInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc, exists := r.services[inst.ServiceID]
	if !exists {
		return domain.ErrServiceNotFound
	}

	desc.Instances = append(desc.Instances, inst)
	r.owners[inst.ID] = inst.ServiceID

	slog.Info("instance added",
		"service_id", inst.ServiceID,
		"instance_id", inst.ID,
		"endpoint", inst.Endpoint,
		"status", inst.Status,
	)
	r.bus.Publish(Event{Type: EventInstanceAdded, ServiceID: inst.ServiceID, InstanceID: inst.ID})

	return nil
}

func (r *Registry) RemoveInstance(serviceID, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc, exists := r.services[serviceID]
	if !exists {
		return domain.ErrServiceNotFound
	}

	for i, inst := range desc.Instances {
		if inst.ID == instanceID {
			desc.Instances = append(desc.Instances[:i], desc.Instances[i+1:]...)
			delete(r.owners, instanceID)

			slog.Info("instance removed",
				"service_id", serviceID,
				"instance_id", instanceID,
			)
			r.bus.Publish(Event{Type: EventInstanceRemoved, ServiceID: serviceID, InstanceID: instanceID})
			return nil
		}
	}

	return domain.ErrInstanceNotFound
}
