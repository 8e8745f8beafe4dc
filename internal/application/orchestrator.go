package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/apascualco/maestro/internal/domain"
)

// ActionInvoker is the transport collaborator that reaches an instance
// endpoint. The orchestration core never dials the network itself.
type ActionInvoker interface {
	Invoke(ctx context.Context, instance domain.ServiceInstance, action string, params json.RawMessage) (json.RawMessage, error)
}

// Provisioner is the external collaborator that creates and tears down
// instances for the scaling path.
type Provisioner interface {
	Provision(ctx context.Context, desc domain.ServiceDescriptor, count int) ([]domain.ServiceInstance, error)
	Teardown(ctx context.Context, instance domain.ServiceInstance) error
}

type OrchestratorConfig struct {
	CallTimeout       time.Duration
	DrainGrace        time.Duration
	ReadyTimeout      time.Duration
	ReadyPollInterval time.Duration
	Breaker           BreakerConfig
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.DrainGrace <= 0 {
		c.DrainGrace = 30 * time.Second
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 30 * time.Second
	}
	if c.ReadyPollInterval <= 0 {
		c.ReadyPollInterval = 250 * time.Millisecond
	}
	return c
}

// Orchestrator composes the registry, one breaker and one balancer per
// service, and the external collaborators into the call, scale and health
// operations.
type Orchestrator struct {
	registry    *Registry
	invoker     ActionInvoker
	provisioner Provisioner
	readiness   Probe
	bus         *EventBus
	config      OrchestratorConfig

	mu        sync.Mutex
	breakers  map[string]*CircuitBreaker
	balancers map[string]*Balancer
	inflight  map[string]int
}

func NewOrchestrator(registry *Registry, invoker ActionInvoker, provisioner Provisioner, readiness Probe, bus *EventBus, cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		invoker:     invoker,
		provisioner: provisioner,
		readiness:   readiness,
		bus:         bus,
		config:      cfg.withDefaults(),
		breakers:    make(map[string]*CircuitBreaker),
		balancers:   make(map[string]*Balancer),
		inflight:    make(map[string]int),
	}
}

// RegisterService registers the descriptor and sets up the matching breaker
// and balancer.
func (o *Orchestrator) RegisterService(req *domain.RegisterServiceRequest) (*domain.ServiceDescriptor, error) {
	desc, err := o.registry.Register(req)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.breakers[desc.ID] = o.newBreaker(desc.ID)
	o.balancers[desc.ID] = NewBalancerFor(desc)
	o.mu.Unlock()

	return desc, nil
}

// UnregisterService removes the service, its instances, and tears down the
// associated breaker and balancer state.
func (o *Orchestrator) UnregisterService(serviceID string) error {
	if err := o.registry.Unregister(serviceID); err != nil {
		return err
	}

	o.mu.Lock()
	delete(o.breakers, serviceID)
	delete(o.balancers, serviceID)
	o.mu.Unlock()

	return nil
}

func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

func (o *Orchestrator) newBreaker(serviceID string) *CircuitBreaker {
	cfg := o.config.Breaker
	userHook := cfg.OnStateChange
	cfg.OnStateChange = func(from, to BreakerState) {
		o.bus.Publish(Event{
			Type:      EventBreakerStateChanged,
			ServiceID: serviceID,
			Detail:    map[string]string{"from": string(from), "to": string(to)},
		})
		if userHook != nil {
			userHook(from, to)
		}
	}
	return NewCircuitBreaker(serviceID, cfg)
}

// breakerFor lazily creates breaker state for services that were registered
// directly against the registry, such as in tests.
func (o *Orchestrator) breakerFor(serviceID string) *CircuitBreaker {
	o.mu.Lock()
	defer o.mu.Unlock()

	br, ok := o.breakers[serviceID]
	if !ok {
		br = o.newBreaker(serviceID)
		o.breakers[serviceID] = br
	}
	return br
}

func (o *Orchestrator) balancerFor(serviceID string) *Balancer {
	o.mu.Lock()
	defer o.mu.Unlock()

	lb, ok := o.balancers[serviceID]
	if !ok {
		lb = NewBalancer(NewRoundRobinPolicy())
		o.balancers[serviceID] = lb
	}
	return lb
}

func (o *Orchestrator) acquire(instanceID string) {
	o.mu.Lock()
	o.inflight[instanceID]++
	o.mu.Unlock()
}

func (o *Orchestrator) release(instanceID string) {
	o.mu.Lock()
	if o.inflight[instanceID] <= 1 {
		delete(o.inflight, instanceID)
	} else {
		o.inflight[instanceID]--
	}
	o.mu.Unlock()
}

func (o *Orchestrator) inflightCalls(instanceID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inflight[instanceID]
}

func (o *Orchestrator) logCall(serviceID, instanceID, action string, start time.Time, err error) {
	attrs := []any{
		"service_id", serviceID,
		"instance_id", instanceID,
		"action", action,
		"duration", time.Since(start).String(),
	}
	if err != nil {
		attrs = append(attrs, "error", err)
		slog.Warn("service call failed", attrs...)
		return
	}
	slog.Debug("service call completed", attrs...)
}
