package domain

import "time"

// BreakerHealth is a read-only view of a service's circuit breaker.
type BreakerHealth struct {
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	FailureRate         float64   `json:"failure_rate"`
	LastFailure         time.Time `json:"last_failure,omitzero"`
}

// DependencyHealth summarizes one declared dependency, resolved exactly one
// hop deep so that dependency cycles cannot recurse.
type DependencyHealth struct {
	ServiceID   string        `json:"service_id"`
	Registered  bool          `json:"registered"`
	Status      ServiceStatus `json:"status"`
	HealthRatio float64       `json:"health_ratio"`
}

type HealthReport struct {
	ServiceID        string             `json:"service_id"`
	Status           ServiceStatus      `json:"status"`
	Instances        int                `json:"instances"`
	HealthyInstances int                `json:"healthy_instances"`
	HealthRatio      float64            `json:"health_ratio"`
	Breaker          BreakerHealth      `json:"breaker"`
	Dependencies     []DependencyHealth `json:"dependencies,omitempty"`
	CheckedAt        time.Time          `json:"checked_at"`
}
