package probe

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/apascualco/maestro/internal/domain"
)

// HTTPProbe checks instance liveness with GET {endpoint}/health. Any 2xx
// response counts as healthy; timeouts come from the caller's context.
type HTTPProbe struct {
	client *http.Client
	path   string
}

func NewHTTPProbe() *HTTPProbe {
	return &HTTPProbe{
		client: &http.Client{},
		path:   "/health",
	}
}

func (p *HTTPProbe) Check(ctx context.Context, inst domain.ServiceInstance) error {
	url := healthURL(inst.Endpoint, p.path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", inst.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe %s: unexpected status %d", inst.ID, resp.StatusCode)
	}
	return nil
}

func healthURL(endpoint, path string) string {
	base := endpoint
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return strings.TrimSuffix(base, "/") + path
}
