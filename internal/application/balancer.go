package application

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/apascualco/maestro/internal/domain"
)

const (
	PolicyRoundRobin  = "round_robin"
	PolicyRandom      = "random"
	PolicyLeastLoaded = "least_loaded"
)

// MetadataPolicyKey selects the balancing policy at service registration.
const MetadataPolicyKey = "lb_policy"

// SelectionPolicy picks one instance out of a non-empty healthy subset.
// The subset is recomputed by the Balancer on every call, so a policy never
// sees instances that stopped being healthy since the last pick.
type SelectionPolicy interface {
	Select(healthy []*domain.ServiceInstance) *domain.ServiceInstance
	Reset()
	Name() string
}

type RoundRobinPolicy struct {
	counter uint64
}

func NewRoundRobinPolicy() *RoundRobinPolicy {
	return &RoundRobinPolicy{}
}

func (p *RoundRobinPolicy) Select(healthy []*domain.ServiceInstance) *domain.ServiceInstance {
	if len(healthy) == 0 {
		return nil
	}
	n := atomic.AddUint64(&p.counter, 1)
	return healthy[(n-1)%uint64(len(healthy))]
}

func (p *RoundRobinPolicy) Reset() {
	atomic.StoreUint64(&p.counter, 0)
}

func (p *RoundRobinPolicy) Name() string { return PolicyRoundRobin }

type RandomPolicy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomPolicy(seed int64) *RandomPolicy {
	return &RandomPolicy{rng: rand.New(rand.NewSource(seed))}
}

func (p *RandomPolicy) Select(healthy []*domain.ServiceInstance) *domain.ServiceInstance {
	if len(healthy) == 0 {
		return nil
	}
	p.mu.Lock()
	idx := p.rng.Intn(len(healthy))
	p.mu.Unlock()
	return healthy[idx]
}

func (p *RandomPolicy) Reset() {}

func (p *RandomPolicy) Name() string { return PolicyRandom }

// LeastLoadedPolicy picks the instance with the lowest advisory cpu/memory
// load, first match on ties.
type LeastLoadedPolicy struct{}

func NewLeastLoadedPolicy() *LeastLoadedPolicy {
	return &LeastLoadedPolicy{}
}

func (p *LeastLoadedPolicy) Select(healthy []*domain.ServiceInstance) *domain.ServiceInstance {
	if len(healthy) == 0 {
		return nil
	}
	best := healthy[0]
	for _, inst := range healthy[1:] {
		if inst.Usage.Load() < best.Usage.Load() {
			best = inst
		}
	}
	return best
}

func (p *LeastLoadedPolicy) Reset() {}

func (p *LeastLoadedPolicy) Name() string { return PolicyLeastLoaded }

// Balancer wraps one selection policy for one service. The healthy subset is
// filtered on every Pick rather than cached, so an instance that just turned
// unhealthy is never selected twice in a row.
type Balancer struct {
	policy SelectionPolicy
}

func NewBalancer(policy SelectionPolicy) *Balancer {
	return &Balancer{policy: policy}
}

// NewBalancerFor builds the balancer for a service from its metadata,
// defaulting to round-robin for unknown or absent policies.
func NewBalancerFor(desc *domain.ServiceDescriptor) *Balancer {
	switch desc.Metadata[MetadataPolicyKey] {
	case PolicyRandom:
		return NewBalancer(NewRandomPolicy(rand.Int63()))
	case PolicyLeastLoaded:
		return NewBalancer(NewLeastLoadedPolicy())
	default:
		return NewBalancer(NewRoundRobinPolicy())
	}
}

func (b *Balancer) Pick(instances []*domain.ServiceInstance) (*domain.ServiceInstance, error) {
	healthy := make([]*domain.ServiceInstance, 0, len(instances))
	for _, inst := range instances {
		if inst.Healthy() {
			healthy = append(healthy, inst)
		}
	}
	if len(healthy) == 0 {
		return nil, domain.ErrNoHealthyInstance
	}
	return b.policy.Select(healthy), nil
}

// Reset clears policy state after a scaling event so the rotation does not
// skew toward surviving instances.
func (b *Balancer) Reset() {
	b.policy.Reset()
}

func (b *Balancer) PolicyName() string {
	return b.policy.Name()
}
