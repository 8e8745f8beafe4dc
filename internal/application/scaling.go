package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/apascualco/maestro/internal/domain"
)

// ScaleService grows or shrinks a service to the target instance count.
// Growth provisions instances in status starting and promotes them to
// running once a readiness probe succeeds. Shrinkage drains in two phases:
// mark draining (out of rotation immediately), wait for in-flight calls or
// the grace timeout, then stop, tear down and remove.
func (o *Orchestrator) ScaleService(ctx context.Context, serviceID string, target int) error {
	if target < 0 {
		return fmt.Errorf("%w: target_instances must not be negative", domain.ErrInvalidRequest)
	}

	desc, err := o.registry.GetService(serviceID)
	if err != nil {
		return err
	}

	current := len(desc.Instances)
	slog.Info("scaling service",
		"service_id", serviceID,
		"current", current,
		"target", target,
	)

	switch {
	case target > current:
		err = o.scaleUp(ctx, desc, target-current)
	case target < current:
		err = o.scaleDown(ctx, desc, current-target)
	default:
		return nil
	}

	// rotation restarts from a clean cursor after any membership change
	o.balancerFor(serviceID).Reset()
	return err
}

func (o *Orchestrator) scaleUp(ctx context.Context, desc *domain.ServiceDescriptor, count int) error {
	instances, err := o.provisioner.Provision(ctx, *desc, count)
	if err != nil {
		return fmt.Errorf("provisioning failed: %w", err)
	}

	// an attach failure mid-loop must not leak promotion goroutines past the
	// scale call and its balancer reset
	var wg sync.WaitGroup
	defer wg.Wait()

	for i := range instances {
		inst := instances[i]
		inst.ServiceID = desc.ID
		inst.Status = domain.InstanceStarting
		now := time.Now()
		inst.RegisteredAt = now
		inst.LastHeartbeat = now

		if err := o.registry.attach(&inst); err != nil {
			return err
		}

		wg.Add(1)
		go func(inst domain.ServiceInstance) {
			defer wg.Done()
			o.promoteWhenReady(ctx, inst)
		}(inst)
	}

	return nil
}

// promoteWhenReady polls the readiness probe until it succeeds or the ready
// timeout expires. On expiry the instance is left errored for the health
// monitor to recover later.
func (o *Orchestrator) promoteWhenReady(ctx context.Context, inst domain.ServiceInstance) {
	if o.readiness == nil {
		_, _ = o.registry.UpdateInstanceStatus(inst.ServiceID, inst.ID,
			domain.InstanceRunning, domain.InstanceStarting)
		return
	}

	deadline := time.Now().Add(o.config.ReadyTimeout)
	ticker := time.NewTicker(o.config.ReadyPollInterval)
	defer ticker.Stop()

	for {
		probeCtx, cancel := context.WithTimeout(ctx, o.config.ReadyPollInterval)
		err := o.readiness.Check(probeCtx, inst)
		cancel()

		if err == nil {
			changed, upErr := o.registry.UpdateInstanceStatus(inst.ServiceID, inst.ID,
				domain.InstanceRunning, domain.InstanceStarting)
			if upErr == nil && changed {
				slog.Info("instance ready",
					"service_id", inst.ServiceID,
					"instance_id", inst.ID,
				)
			}
			return
		}

		if time.Now().After(deadline) || ctx.Err() != nil {
			_, _ = o.registry.UpdateInstanceStatus(inst.ServiceID, inst.ID,
				domain.InstanceErrored, domain.InstanceStarting)
			slog.Warn("instance did not become ready",
				"service_id", inst.ServiceID,
				"instance_id", inst.ID,
				"timeout", o.config.ReadyTimeout.String(),
			)
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
		}
	}
}

func (o *Orchestrator) scaleDown(ctx context.Context, desc *domain.ServiceDescriptor, count int) error {
	victims := scaleDownVictims(desc.Instances, count)

	var wg sync.WaitGroup
	for _, victim := range victims {
		wg.Add(1)
		go func(inst domain.ServiceInstance) {
			defer wg.Done()
			o.drain(ctx, inst)
		}(*victim)
	}
	wg.Wait()

	return nil
}

// scaleDownVictims orders removal candidates: errored first, then starting,
// then running from newest to oldest.
func scaleDownVictims(instances []*domain.ServiceInstance, count int) []*domain.ServiceInstance {
	ranked := make([]*domain.ServiceInstance, len(instances))
	copy(ranked, instances)

	rank := func(s domain.InstanceStatus) int {
		switch s {
		case domain.InstanceErrored:
			return 0
		case domain.InstanceStarting:
			return 1
		default:
			return 2
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		ri, rj := rank(ranked[i].Status), rank(ranked[j].Status)
		if ri != rj {
			return ri < rj
		}
		return ranked[i].RegisteredAt.After(ranked[j].RegisteredAt)
	})

	if count > len(ranked) {
		count = len(ranked)
	}
	return ranked[:count]
}

func (o *Orchestrator) drain(ctx context.Context, inst domain.ServiceInstance) {
	if _, err := o.registry.UpdateInstanceStatus(inst.ServiceID, inst.ID, domain.InstanceDraining); err != nil {
		return
	}

	slog.Info("draining instance",
		"service_id", inst.ServiceID,
		"instance_id", inst.ID,
		"inflight", o.inflightCalls(inst.ID),
	)

	deadline := time.Now().Add(o.config.DrainGrace)
	for o.inflightCalls(inst.ID) > 0 && time.Now().Before(deadline) && ctx.Err() == nil {
		time.Sleep(50 * time.Millisecond)
	}

	_, _ = o.registry.UpdateInstanceStatus(inst.ServiceID, inst.ID, domain.InstanceStopped)

	if o.provisioner != nil {
		if err := o.provisioner.Teardown(ctx, inst); err != nil {
			slog.Warn("instance teardown failed",
				"service_id", inst.ServiceID,
				"instance_id", inst.ID,
				"error", err,
			)
		}
	}

	_ = o.registry.RemoveInstance(inst.ServiceID, inst.ID)
}
