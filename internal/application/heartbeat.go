package application

import (
	"time"

	"github.com/apascualco/maestro/internal/domain"
)

// Heartbeat refreshes the liveness timestamp of an instance and records the
// advisory usage snapshot carried on the beat.
func (r *Registry) Heartbeat(instanceID string, usage domain.ResourceUsage) error {
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

	inst.LastHeartbeat = time.Now()
	inst.Usage = usage
	return nil
}
