package domain

import "time"

type InstanceStatus string

const (
	InstanceStarting InstanceStatus = "starting"
	InstanceRunning  InstanceStatus = "running"
	InstanceDraining InstanceStatus = "draining"
	InstanceStopped  InstanceStatus = "stopped"
	InstanceErrored  InstanceStatus = "errored"
)

type ServiceStatus string

const (
	ServiceHealthy   ServiceStatus = "healthy"
	ServiceDegraded  ServiceStatus = "degraded"
	ServiceUnhealthy ServiceStatus = "unhealthy"
	ServiceUnknown   ServiceStatus = "unknown"
)

// ResourceUsage is an advisory snapshot reported by the instance itself.
// It only influences the least-loaded selection policy.
type ResourceUsage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

func (u ResourceUsage) Load() float64 {
	return (u.CPUPercent + u.MemoryPercent) / 2
}

type ServiceInstance struct {
	ID            string         `json:"id"`
	ServiceID     string         `json:"service_id"`
	Endpoint      string         `json:"endpoint"`
	Status        InstanceStatus `json:"status"`
	Usage         ResourceUsage  `json:"usage"`
	RegisteredAt  time.Time      `json:"registered_at"`
	LastHeartbeat time.Time      `json:"last_heartbeat"`
}

func (i *ServiceInstance) Healthy() bool {
	return i.Status == InstanceRunning
}

type ServiceDescriptor struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Version      string             `json:"version"`
	Dependencies []string           `json:"dependencies,omitempty"`
	Metadata     map[string]string  `json:"metadata,omitempty"`
	Instances    []*ServiceInstance `json:"instances"`
	RegisteredAt time.Time          `json:"registered_at"`
}

// Clone returns a deep copy. The registry hands out clones only, so callers
// never observe a half-updated instance list.
func (d *ServiceDescriptor) Clone() *ServiceDescriptor {
	c := &ServiceDescriptor{
		ID:           d.ID,
		Name:         d.Name,
		Version:      d.Version,
		RegisteredAt: d.RegisteredAt,
	}
	if d.Dependencies != nil {
		c.Dependencies = make([]string, len(d.Dependencies))
		copy(c.Dependencies, d.Dependencies)
	}
	if d.Metadata != nil {
		c.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			c.Metadata[k] = v
		}
	}
	c.Instances = make([]*ServiceInstance, 0, len(d.Instances))
	for _, inst := range d.Instances {
		instCopy := *inst
		c.Instances = append(c.Instances, &instCopy)
	}
	return c
}

func (d *ServiceDescriptor) Instance(instanceID string) *ServiceInstance {
	for _, inst := range d.Instances {
		if inst.ID == instanceID {
			return inst
		}
	}
	return nil
}

func (d *ServiceDescriptor) HealthyInstances() []*ServiceInstance {
	var healthy []*ServiceInstance
	for _, inst := range d.Instances {
		if inst.Healthy() {
			healthy = append(healthy, inst)
		}
	}
	return healthy
}
