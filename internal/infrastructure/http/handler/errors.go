package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apascualco/maestro/internal/domain"
)

// respondError maps domain errors onto the wire. Unmatched errors become a
// 500 without leaking internals.
func respondError(c *gin.Context, err error) {
	var circuitErr *domain.CircuitOpenError
	if errors.As(err, &circuitErr) {
		c.Header("Retry-After", fmt.Sprintf("%.0f", circuitErr.RetryAfter.Seconds()))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":       "circuit_open",
			"message":     circuitErr.Error(),
			"retry_after": circuitErr.RetryAfter.String(),
		})
		return
	}

	var callErr *domain.ServiceCallError
	if errors.As(err, &callErr) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "call_failed",
			"message": callErr.Error(),
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrServiceNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "service_not_found",
			"message": "the specified service does not exist",
		})
	case errors.Is(err, domain.ErrInstanceNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "instance_not_found",
			"message": "the specified instance does not exist",
		})
	case errors.Is(err, domain.ErrWorkflowNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "workflow_not_found",
			"message": "the specified workflow does not exist",
		})
	case errors.Is(err, domain.ErrDuplicateService):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "service_exists",
			"message": "a service with this id is already registered",
		})
	case errors.Is(err, domain.ErrWorkflowFinished):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "workflow_finished",
			"message": "the workflow has already reached a terminal status",
		})
	case errors.Is(err, domain.ErrNoHealthyInstance):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "no_healthy_instance",
			"message": "the service has no instance able to take the call",
		})
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": err.Error(),
	})
}
