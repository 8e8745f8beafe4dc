package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/apascualco/maestro/pkg/auth"
)

// OrchestratorClient joins a service instance to the orchestrator's control
// plane and keeps it alive with heartbeats. The service itself must already
// be registered; the client manages one instance of it.
type OrchestratorClient struct {
	baseURL   string
	serviceID string
	endpoint  string

	generator   *auth.Generator
	staticToken string
	usageFunc   func() Usage

	httpClient        *http.Client
	heartbeatInterval time.Duration
	stopCh            chan struct{}
	stopCancel        context.CancelFunc
	wg                sync.WaitGroup
	mu                sync.RWMutex
	instanceID        string
	joined            bool
	stopped           bool

	logger *slog.Logger
}

type Option func(*OrchestratorClient) error

func WithLogger(logger *slog.Logger) Option {
	return func(c *OrchestratorClient) error {
		c.logger = logger
		return nil
	}
}

// WithStaticToken authenticates control-plane requests with the shared
// X-Service-Token credential.
func WithStaticToken(token string) Option {
	return func(c *OrchestratorClient) error {
		c.staticToken = token
		return nil
	}
}

// WithPrivateKey authenticates control-plane requests with RS256 bearer
// tokens minted from the given PEM-encoded private key.
func WithPrivateKey(pemStr string) Option {
	return func(c *OrchestratorClient) error {
		generator, err := auth.NewGenerator(
			auth.WithPrivateKey(pemStr),
			auth.WithServiceID(c.serviceID),
		)
		if err != nil {
			return err
		}
		c.generator = generator
		return nil
	}
}

// WithUsageFunc supplies the resource snapshot attached to each heartbeat.
func WithUsageFunc(fn func() Usage) Option {
	return func(c *OrchestratorClient) error {
		c.usageFunc = fn
		return nil
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *OrchestratorClient) error {
		c.httpClient = httpClient
		return nil
	}
}

func NewOrchestratorClient(baseURL, serviceID, endpoint string, opts ...Option) (*OrchestratorClient, error) {
	if baseURL == "" || serviceID == "" || endpoint == "" {
		return nil, fmt.Errorf("baseURL, serviceID and endpoint are required")
	}

	c := &OrchestratorClient{
		baseURL:   baseURL,
		serviceID: serviceID,
		endpoint:  endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		stopCh: make(chan struct{}),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Join registers this instance and starts the heartbeat loop.
func (c *OrchestratorClient) Join(ctx context.Context) (*JoinResponse, error) {
	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		return nil, fmt.Errorf("already joined, call Shutdown first")
	}
	c.mu.Unlock()

	var resp *JoinResponse
	var err error

	err = c.retryWithBackoff(ctx, 5, func() error {
		resp, err = c.doJoin(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.instanceID = resp.InstanceID
	c.heartbeatInterval = time.Duration(resp.HeartbeatInterval) * time.Second
	c.joined = true
	c.mu.Unlock()

	c.startHeartbeat()

	c.logger.Info("instance joined",
		"service_id", c.serviceID,
		"instance_id", resp.InstanceID,
		"heartbeat_interval", resp.HeartbeatInterval,
	)

	return resp, nil
}

func (c *OrchestratorClient) doJoin(ctx context.Context) (*JoinResponse, error) {
	body, err := json.Marshal(JoinRequest{
		Endpoint: c.endpoint,
		Usage:    c.usage(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/services/"+c.serviceID+"/instances", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.authorize(httpReq); err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, c.serviceID)
	}
	if httpResp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("join failed with status %d: %s",
			httpResp.StatusCode, string(respBody))
	}

	var resp JoinResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &resp, nil
}

// rejoin re-registers the instance after the orchestrator forgot it, which
// happens when heartbeats were missed past the TTL.
func (c *OrchestratorClient) rejoin(ctx context.Context) error {
	var resp *JoinResponse
	var err error

	err = c.retryWithBackoff(ctx, 5, func() error {
		resp, err = c.doJoin(ctx)
		return err
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.instanceID = resp.InstanceID
	c.heartbeatInterval = time.Duration(resp.HeartbeatInterval) * time.Second
	c.mu.Unlock()

	c.logger.Info("instance rejoined",
		"service_id", c.serviceID,
		"instance_id", resp.InstanceID,
	)

	return nil
}

// Leave removes the instance from the orchestrator.
func (c *OrchestratorClient) Leave(ctx context.Context) error {
	c.mu.RLock()
	instanceID := c.instanceID
	c.mu.RUnlock()

	if instanceID == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/v1/services/"+c.serviceID+"/instances/"+instanceID, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send leave: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("leave failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.Info("instance left", "service_id", c.serviceID, "instance_id", instanceID)
	return nil
}

// Shutdown stops the heartbeat loop and removes the instance.
func (c *OrchestratorClient) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	close(c.stopCh)
	if c.stopCancel != nil {
		c.stopCancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out waiting for heartbeat to stop")
	}

	return c.Leave(ctx)
}

func (c *OrchestratorClient) InstanceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instanceID
}

func (c *OrchestratorClient) usage() Usage {
	if c.usageFunc != nil {
		return c.usageFunc()
	}
	return Usage{}
}

func (c *OrchestratorClient) authorize(req *http.Request) error {
	if c.generator != nil {
		token, err := c.generator.GenerateServiceToken()
		if err != nil {
			return fmt.Errorf("failed to generate service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
	if c.staticToken != "" {
		req.Header.Set("X-Service-Token", c.staticToken)
	}
	return nil
}

func (c *OrchestratorClient) retryWithBackoff(ctx context.Context, maxRetries int, fn func() error) error {
	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := fn(); err != nil {
			lastErr = err

			// an unknown service will not appear by retrying
			if errors.Is(err, ErrServiceNotFound) {
				return err
			}

			if attempt < maxRetries {
				c.logger.Warn("operation failed, retrying",
					"attempt", attempt+1,
					"max_retries", maxRetries,
					"backoff", backoff,
					"error", err,
				)

				select {
				case <-time.After(backoff):
					backoff *= 2
					if backoff > 30*time.Second {
						backoff = 30 * time.Second
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		} else {
			return nil
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
}
