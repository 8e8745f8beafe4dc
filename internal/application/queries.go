package application

import (
	"iter"

	"github.com/apascualco/maestro/internal/domain"
)

// GetService returns a deep copy of the descriptor.
func (r *Registry) GetService(serviceID string) (*domain.ServiceDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, exists := r.services[serviceID]
	if !exists {
		return nil, domain.ErrServiceNotFound
	}
	return desc.Clone(), nil
}

func (r *Registry) GetInstance(instanceID string) (*domain.ServiceInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	serviceID, exists := r.owners[instanceID]
	if !exists {
		return nil, domain.ErrInstanceNotFound
	}

	inst := r.services[serviceID].Instance(instanceID)
	if inst == nil {
		return nil, domain.ErrInstanceNotFound
	}
	instCopy := *inst
	return &instCopy, nil
}

// Snapshot returns a lazy, restartable sequence over a copy taken at call
// time. Registry mutation after the call is invisible to an in-progress
// consumer, and every range over the sequence replays the same copy.
func (r *Registry) Snapshot() iter.Seq[domain.ServiceDescriptor] {
	r.mu.RLock()
	copies := make([]domain.ServiceDescriptor, 0, len(r.services))
	for _, desc := range r.services {
		copies = append(copies, *desc.Clone())
	}
	r.mu.RUnlock()

	return func(yield func(domain.ServiceDescriptor) bool) {
		for _, desc := range copies {
			if !yield(desc) {
				return
			}
		}
	}
}

func (r *Registry) ServiceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

// UpdateInstanceStatus performs a compare-and-set so concurrent writers (the
// health monitor, the scaling drain) cannot stomp each other's transitions.
// A nil expected slice allows any current status.
func (r *Registry) UpdateInstanceStatus(serviceID, instanceID string, to domain.InstanceStatus, expected ...domain.InstanceStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc, exists := r.services[serviceID]
	if !exists {
		return false, domain.ErrServiceNotFound
	}
	inst := desc.Instance(instanceID)
	if inst == nil {
		return false, domain.ErrInstanceNotFound
	}

	if len(expected) > 0 {
		allowed := false
		for _, from := range expected {
			if inst.Status == from {
				allowed = true
				break
			}
		}
		if !allowed {
			return false, nil
		}
	}

	if inst.Status == to {
		return false, nil
	}

	from := inst.Status
	inst.Status = to
	r.bus.Publish(Event{
		Type:       EventInstanceStatusChanged,
		ServiceID:  serviceID,
		InstanceID: instanceID,
		Detail:     map[string]string{"from": string(from), "to": string(to)},
	})
	return true, nil
}

func (r *Registry) UpdateInstanceUsage(instanceID string, usage domain.ResourceUsage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	serviceID, exists := r.owners[instanceID]
	if !exists {
		return domain.ErrInstanceNotFound
	}
	inst := r.services[serviceID].Instance(instanceID)
	if inst == nil {
		return domain.ErrInstanceNotFound
	}
	inst.Usage = usage
	return nil
}
