package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/apascualco/maestro/internal/domain"
)

// Probe is the external health-check collaborator. The concrete mechanism
// (HTTP, TCP, exec) lives in infrastructure.
type Probe interface {
	Check(ctx context.Context, instance domain.ServiceInstance) error
}

// ProbeFunc adapts a plain function to the Probe interface.
type ProbeFunc func(ctx context.Context, instance domain.ServiceInstance) error

func (f ProbeFunc) Check(ctx context.Context, instance domain.ServiceInstance) error {
	return f(ctx, instance)
}

type MonitorConfig struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	HeartbeatTTL  time.Duration
}

// HealthMonitor probes every registered instance on a fixed interval,
// independent of call traffic. Probes for different instances run in their
// own goroutines under a per-probe timeout, so a hanging probe cannot delay
// the others. A failed probe flips running to errored; a later success flips
// it back. Starting, draining and stopped instances are left alone.
type HealthMonitor struct {
	registry *Registry
	probe    Probe
	config   MonitorConfig
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewHealthMonitor(registry *Registry, probe Probe, cfg MonitorConfig) *HealthMonitor {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 10 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	return &HealthMonitor{
		registry: registry,
		probe:    probe,
		config:   cfg,
		stopCh:   make(chan struct{}),
	}
}

func (m *HealthMonitor) Start() {
	m.wg.Add(1)
	go m.loop()
}

func (m *HealthMonitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *HealthMonitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stopCh:
			return
		}
	}
}

// Sweep probes every running or errored instance once and waits for all
// probes to finish.
func (m *HealthMonitor) Sweep() {
	var wg sync.WaitGroup

	for desc := range m.registry.Snapshot() {
		for _, inst := range desc.Instances {
			if inst.Status != domain.InstanceRunning && inst.Status != domain.InstanceErrored {
				continue
			}

			wg.Add(1)
			go func(inst domain.ServiceInstance) {
				defer wg.Done()
				m.probeOne(inst)
			}(*inst)
		}
	}

	wg.Wait()
}

func (m *HealthMonitor) probeOne(inst domain.ServiceInstance) {
	if m.config.HeartbeatTTL > 0 && time.Since(inst.LastHeartbeat) > m.config.HeartbeatTTL {
		m.markErrored(inst, "heartbeat expired")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.ProbeTimeout)
	defer cancel()

	if err := m.probe.Check(ctx, inst); err != nil {
		m.markErrored(inst, err.Error())
		return
	}

	changed, err := m.registry.UpdateInstanceStatus(inst.ServiceID, inst.ID,
		domain.InstanceRunning, domain.InstanceErrored)
	if err == nil && changed {
		slog.Info("instance recovered",
			"service_id", inst.ServiceID,
			"instance_id", inst.ID,
		)
	}
}

func (m *HealthMonitor) markErrored(inst domain.ServiceInstance, reason string) {
	changed, err := m.registry.UpdateInstanceStatus(inst.ServiceID, inst.ID,
		domain.InstanceErrored, domain.InstanceRunning)
	if err != nil {
		return
	}
	if changed {
		slog.Warn("instance marked errored",
			"service_id", inst.ServiceID,
			"instance_id", inst.ID,
			"reason", reason,
		)
	}
}
