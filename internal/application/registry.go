package application

import (
	"sync"
	"time"

	"github.com/apascualco/maestro/internal/domain"
)

type RegistryConfig struct {
	HeartbeatTTL time.Duration
}

// Registry is the in-memory catalog of services and their instances. It is
// pure bookkeeping: no network calls, no blocking I/O. All mutation goes
// through one writer lock; every read hands out deep copies.
type Registry struct {
	config RegistryConfig
	mu     sync.RWMutex
	// services is keyed by service id; owners indexes instance id back to
	// its owning service so heartbeats can resolve by instance alone.
	services map[string]*domain.ServiceDescriptor
	owners   map[string]string
	bus      *EventBus
}

func NewRegistry(cfg RegistryConfig, bus *EventBus) *Registry {
	return &Registry{
		config:   cfg,
		services: make(map[string]*domain.ServiceDescriptor),
		owners:   make(map[string]string),
		bus:      bus,
	}
}

func (r *Registry) HeartbeatTTL() time.Duration {
	return r.config.HeartbeatTTL
}
