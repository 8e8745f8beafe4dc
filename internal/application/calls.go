package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/apascualco/maestro/internal/domain"
)

// CallService routes one call to a healthy instance of the service: breaker
// check first, then instance selection, then the bounded invocation, then
// outcome accounting. It never retries; retry policy belongs to workflows so
// direct callers get fast, explicit failure.
func (o *Orchestrator) CallService(ctx context.Context, serviceID, action string, params json.RawMessage) (json.RawMessage, error) {
	return o.callService(ctx, serviceID, action, params, false)
}

func (o *Orchestrator) callService(ctx context.Context, serviceID, action string, params json.RawMessage, bypassBreaker bool) (json.RawMessage, error) {
	desc, err := o.registry.GetService(serviceID)
	if err != nil {
		return nil, err
	}

	br := o.breakerFor(serviceID)
	if !bypassBreaker && !br.Allow() {
		return nil, &domain.CircuitOpenError{
			ServiceID:  serviceID,
			RetryAfter: br.RetryAfter(),
		}
	}

	// No breaker accounting on selection failure: no downstream call was
	// attempted, so the outcome says nothing about the service itself. The
	// half-open admission is refunded so a half-open breaker with no healthy
	// instances keeps admitting trials once instances come back.
	inst, err := o.balancerFor(serviceID).Pick(desc.Instances)
	if err != nil {
		if !bypassBreaker {
			br.Refund()
		}
		return nil, err
	}

	o.acquire(inst.ID)
	defer o.release(inst.ID)

	callCtx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
	defer cancel()

	start := time.Now()
	result, err := o.invoker.Invoke(callCtx, *inst, action, params)
	o.logCall(serviceID, inst.ID, action, start, err)

	if err != nil {
		br.RecordFailure()
		return nil, &domain.ServiceCallError{
			ServiceID:  serviceID,
			InstanceID: inst.ID,
			Action:     action,
			Err:        err,
		}
	}

	br.RecordSuccess()
	return result, nil
}
