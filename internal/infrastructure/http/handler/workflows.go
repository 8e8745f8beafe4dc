package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apascualco/maestro/internal/application"
	"github.com/apascualco/maestro/internal/domain"
)

type WorkflowHandler struct {
	engine *application.WorkflowEngine
}

func NewWorkflowHandler(engine *application.WorkflowEngine) *WorkflowHandler {
	return &WorkflowHandler{engine: engine}
}

func (h *WorkflowHandler) Submit(c *gin.Context) {
	var spec domain.WorkflowSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		badRequest(c, err)
		return
	}

	id, err := h.engine.Submit(&spec)
	if err != nil {
		badRequest(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"workflow_id": id,
		"status":      domain.WorkflowPending,
	})
}

func (h *WorkflowHandler) Get(c *gin.Context) {
	wf, err := h.engine.Status(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (h *WorkflowHandler) Cancel(c *gin.Context) {
	if err := h.engine.Cancel(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "canceling"})
}
