package domain

import (
	"encoding/json"
	"errors"
)

type RegisterServiceRequest struct {
	ID           string            `json:"id" binding:"required"`
	Name         string            `json:"name" binding:"required"`
	Version      string            `json:"version"`
	Dependencies []string          `json:"dependencies"`
	Metadata     map[string]string `json:"metadata"`
}

func (r *RegisterServiceRequest) Validate() error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.Version == "" {
		r.Version = "0.0.0"
	}
	for _, dep := range r.Dependencies {
		if dep == r.ID {
			return errors.New("service cannot depend on itself")
		}
	}
	return nil
}

type AddInstanceRequest struct {
	Endpoint string        `json:"endpoint" binding:"required"`
	Usage    ResourceUsage `json:"usage"`
}

func (r *AddInstanceRequest) Validate() error {
	if r.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	return nil
}

type AddInstanceResponse struct {
	InstanceID        string `json:"instance_id"`
	HeartbeatInterval int    `json:"heartbeat_interval"`
	HeartbeatURL      string `json:"heartbeat_url"`
}

type ScaleRequest struct {
	TargetInstances int `json:"target_instances"`
}

type CallRequest struct {
	Action string          `json:"action" binding:"required"`
	Params json.RawMessage `json:"params"`
}

type CallResponse struct {
	ServiceID string          `json:"service_id"`
	Action    string          `json:"action"`
	Result    json.RawMessage `json:"result"`
}

type HeartbeatRequest struct {
	InstanceID string        `json:"instance_id" binding:"required"`
	Usage      ResourceUsage `json:"usage"`
}

type HeartbeatResponse struct {
	Status string `json:"status"`
}
