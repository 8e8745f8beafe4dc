package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/apascualco/maestro/internal/domain"
	"github.com/apascualco/maestro/internal/infrastructure/jwt"
	"github.com/apascualco/maestro/internal/infrastructure/observability"
	"github.com/apascualco/maestro/internal/infrastructure/tracing"
)

const (
	HeaderCallToken = "X-Call-Token"
	HeaderRequestID = "X-Request-ID"
)

// HTTPInvoker reaches instances over HTTP JSON: POST {endpoint}/actions/{action}
// with the params as body. Every invocation gets a client span and, when
// signing keys are configured, a short-lived call token.
type HTTPInvoker struct {
	client   *http.Client
	tokens   *jwt.Service
	exporter tracing.SpanExporter
	calls    observability.Counter
}

func NewHTTPInvoker(tokens *jwt.Service, exporter tracing.SpanExporter, calls observability.Counter) *HTTPInvoker {
	if exporter == nil {
		exporter = &tracing.NoopExporter{}
	}
	if calls == nil {
		calls = observability.Noop{}
	}
	return &HTTPInvoker{
		// per-call deadlines come from the caller's context
		client:   &http.Client{},
		tokens:   tokens,
		exporter: exporter,
		calls:    calls,
	}
}

func (i *HTTPInvoker) Invoke(ctx context.Context, inst domain.ServiceInstance, action string, params json.RawMessage) (json.RawMessage, error) {
	url := actionURL(inst.Endpoint, action)

	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(params))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if i.tokens.CanSign() {
		token, err := i.tokens.MintCallToken(inst.ServiceID, action)
		if err != nil {
			return nil, fmt.Errorf("mint call token: %w", err)
		}
		req.Header.Set(HeaderCallToken, token)
	}

	start := time.Now()
	resp, err := i.client.Do(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	defer i.exportSpan(inst, action, start, status, err)

	tags := map[string]string{"service": inst.ServiceID, "action": action}
	if err != nil {
		i.calls.Incr("maestro.invoke.transport_error", tags)
		return nil, fmt.Errorf("invoke %s on %s: %w", action, inst.ID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", inst.ID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		i.calls.Incr("maestro.invoke.downstream_error", tags)
		return nil, fmt.Errorf("instance %s returned %d for action %s: %s",
			inst.ID, resp.StatusCode, action, truncate(body, 256))
	}

	i.calls.Incr("maestro.invoke.ok", tags)
	return body, nil
}

func (i *HTTPInvoker) exportSpan(inst domain.ServiceInstance, action string, start time.Time, status int, err error) {
	if err != nil && status == 0 {
		status = 502
	}
	i.exporter.Export(context.Background(), tracing.SpanData{
		TraceID:    tracing.NewTraceID(),
		SpanID:     tracing.NewSpanID(),
		Name:       fmt.Sprintf("call %s/%s", inst.ServiceID, action),
		Kind:       tracing.SpanKindClient,
		StartTime:  start,
		EndTime:    time.Now(),
		StatusCode: status,
		Attributes: map[string]string{
			"service.id":  inst.ServiceID,
			"instance.id": inst.ID,
			"action":      action,
		},
	})
}

func actionURL(endpoint, action string) string {
	base := endpoint
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return strings.TrimSuffix(base, "/") + "/actions/" + action
}

func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
