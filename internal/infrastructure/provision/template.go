package provision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/apascualco/maestro/internal/domain"
	"github.com/google/uuid"
)

// TemplateProvisioner derives instance endpoints from a template string,
// e.g. "{service}-{ordinal}.svc.local:9000". It fits deployments where an
// external scheduler (compose, nomad, static fleet) exposes instances at
// predictable addresses; real lifecycle management stays outside the control
// plane.
type TemplateProvisioner struct {
	template string

	mu       sync.Mutex
	ordinals map[string]int
}

func NewTemplateProvisioner(template string) *TemplateProvisioner {
	if template == "" {
		template = "{service}-{ordinal}.local:9000"
	}
	return &TemplateProvisioner{
		template: template,
		ordinals: make(map[string]int),
	}
}

func (p *TemplateProvisioner) Provision(ctx context.Context, desc domain.ServiceDescriptor, count int) ([]domain.ServiceInstance, error) {
	if count <= 0 {
		return nil, nil
	}

	p.mu.Lock()
	base := p.ordinals[desc.ID]
	p.ordinals[desc.ID] = base + count
	p.mu.Unlock()

	instances := make([]domain.ServiceInstance, 0, count)
	for i := 0; i < count; i++ {
		endpoint := p.expand(desc.ID, base+i)
		instances = append(instances, domain.ServiceInstance{
			ID:       uuid.New().String(),
			Endpoint: endpoint,
		})
		slog.Info("instance provisioned",
			"service_id", desc.ID,
			"endpoint", endpoint,
		)
	}
	return instances, nil
}

func (p *TemplateProvisioner) Teardown(ctx context.Context, inst domain.ServiceInstance) error {
	slog.Info("instance torn down",
		"service_id", inst.ServiceID,
		"instance_id", inst.ID,
		"endpoint", inst.Endpoint,
	)
	return nil
}

func (p *TemplateProvisioner) expand(serviceID string, ordinal int) string {
	out := strings.ReplaceAll(p.template, "{service}", serviceID)
	return strings.ReplaceAll(out, "{ordinal}", fmt.Sprintf("%d", ordinal))
}
