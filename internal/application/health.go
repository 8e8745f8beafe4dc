package application

import (
	"time"

	"github.com/apascualco/maestro/internal/domain"
)

// GetServiceHealth combines the instance health ratio, the breaker view and
// the health of declared dependencies. Dependencies are resolved exactly one
// hop deep, so a dependency cycle cannot recurse.
func (o *Orchestrator) GetServiceHealth(serviceID string) (*domain.HealthReport, error) {
	desc, err := o.registry.GetService(serviceID)
	if err != nil {
		return nil, err
	}

	br := o.breakerFor(serviceID).Snapshot()
	total := len(desc.Instances)
	healthy := len(desc.HealthyInstances())

	report := &domain.HealthReport{
		ServiceID:        serviceID,
		Status:           aggregateStatus(total, healthy, BreakerState(br.State)),
		Instances:        total,
		HealthyInstances: healthy,
		HealthRatio:      ratio(healthy, total),
		Breaker:          br,
		CheckedAt:        time.Now(),
	}

	for _, depID := range desc.Dependencies {
		report.Dependencies = append(report.Dependencies, o.dependencyHealth(depID))
	}

	return report, nil
}

func (o *Orchestrator) dependencyHealth(serviceID string) domain.DependencyHealth {
	desc, err := o.registry.GetService(serviceID)
	if err != nil {
		return domain.DependencyHealth{
			ServiceID:  serviceID,
			Registered: false,
			Status:     domain.ServiceUnknown,
		}
	}

	total := len(desc.Instances)
	healthy := len(desc.HealthyInstances())

	return domain.DependencyHealth{
		ServiceID:   serviceID,
		Registered:  true,
		Status:      aggregateStatus(total, healthy, o.breakerFor(serviceID).State()),
		HealthRatio: ratio(healthy, total),
	}
}

func aggregateStatus(total, healthy int, breaker BreakerState) domain.ServiceStatus {
	switch {
	case breaker == BreakerOpen, healthy == 0:
		return domain.ServiceUnhealthy
	case breaker == BreakerHalfOpen, healthy < total:
		return domain.ServiceDegraded
	default:
		return domain.ServiceHealthy
	}
}

func ratio(healthy, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(healthy) / float64(total)
}
