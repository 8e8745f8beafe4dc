package client

import "errors"

var (
	ErrServiceNotFound  = errors.New("service not found")
	ErrInstanceNotFound = errors.New("instance not found")
)

// Usage is the advisory resource snapshot carried on join and heartbeat
// requests. It influences the orchestrator's least-loaded selection only.
type Usage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

type JoinRequest struct {
	Endpoint string `json:"endpoint"`
	Usage    Usage  `json:"usage"`
}

type JoinResponse struct {
	InstanceID        string `json:"instance_id"`
	HeartbeatInterval int    `json:"heartbeat_interval"`
	HeartbeatURL      string `json:"heartbeat_url"`
}

type heartbeatRequest struct {
	InstanceID string `json:"instance_id"`
	Usage      Usage  `json:"usage"`
}
