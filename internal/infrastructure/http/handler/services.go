package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apascualco/maestro/internal/application"
	"github.com/apascualco/maestro/internal/domain"
)

const heartbeatPath = "/v1/instances/heartbeat"

// ServiceHandler exposes the registry, call, scale and health operations.
type ServiceHandler struct {
	orchestrator *application.Orchestrator
}

func NewServiceHandler(orchestrator *application.Orchestrator) *ServiceHandler {
	return &ServiceHandler{orchestrator: orchestrator}
}

func (h *ServiceHandler) registry() *application.Registry {
	return h.orchestrator.Registry()
}

func (h *ServiceHandler) Register(c *gin.Context) {
	var req domain.RegisterServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	desc, err := h.orchestrator.RegisterService(&req)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateService) {
			respondError(c, err)
			return
		}
		// anything else from Register is a validation failure
		badRequest(c, err)
		return
	}

	c.JSON(http.StatusCreated, desc)
}

func (h *ServiceHandler) List(c *gin.Context) {
	services := make([]domain.ServiceDescriptor, 0)
	for desc := range h.registry().Snapshot() {
		services = append(services, desc)
	}

	c.JSON(http.StatusOK, gin.H{
		"services": services,
		"count":    len(services),
	})
}

func (h *ServiceHandler) Get(c *gin.Context) {
	desc, err := h.registry().GetService(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, desc)
}

func (h *ServiceHandler) Unregister(c *gin.Context) {
	if err := h.orchestrator.UnregisterService(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unregistered"})
}

func (h *ServiceHandler) AddInstance(c *gin.Context) {
	var req domain.AddInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	inst, err := h.registry().AddInstance(c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, domain.AddInstanceResponse{
		InstanceID:        inst.ID,
		HeartbeatInterval: int(h.registry().HeartbeatTTL().Seconds() / 3),
		HeartbeatURL:      heartbeatPath,
	})
}

func (h *ServiceHandler) RemoveInstance(c *gin.Context) {
	if err := h.registry().RemoveInstance(c.Param("id"), c.Param("instanceID")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (h *ServiceHandler) Scale(c *gin.Context) {
	var req domain.ScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.orchestrator.ScaleService(c.Request.Context(), c.Param("id"), req.TargetInstances); err != nil {
		respondError(c, err)
		return
	}

	desc, err := h.registry().GetService(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, desc)
}

func (h *ServiceHandler) Call(c *gin.Context) {
	var req domain.CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	serviceID := c.Param("id")
	result, err := h.orchestrator.CallService(c.Request.Context(), serviceID, req.Action, req.Params)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, domain.CallResponse{
		ServiceID: serviceID,
		Action:    req.Action,
		Result:    result,
	})
}

func (h *ServiceHandler) Health(c *gin.Context) {
	report, err := h.orchestrator.GetServiceHealth(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *ServiceHandler) Heartbeat(c *gin.Context) {
	var req domain.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.registry().Heartbeat(req.InstanceID, req.Usage); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, domain.HeartbeatResponse{Status: "ok"})
}
