package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// CreateDefinitionRequest is the body of POST /api/v1/definitions
type CreateDefinitionRequest struct {
	Name       string `json:"name" binding:"required"`
	Module     string `json:"module" binding:"required"`
	EntityType string `json:"entity_type" binding:"required"`
}

// AddStepsRequest is the body of POST /api/v1/definitions/:id/steps
type AddStepsRequest struct {
	Steps []service.StepInput `json:"steps" binding:"required"`
}

// InitiateRequest is the body of POST /api/v1/workflows
type InitiateRequest struct {
	EntityType string `json:"entity_type" binding:"required"`
	EntityID   string `json:"entity_id" binding:"required"`
}

// CloseRequest is the body of POST /api/v1/workflows/instances/:id/close
type CloseRequest struct {
	Status workflow.InstanceStatus `json:"status" binding:"required"`
}

// CreateDefinition handles POST /api/v1/definitions
func (h *Handlers) CreateDefinition(c *gin.Context) {
	var req CreateDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	def, err := h.services.Catalog.CreateDefinition(c.Request.Context(), req.Name, req.Module, req.EntityType, actorFrom(c).ID)
	if err != nil {
		h.respondError(c, "create_definition", err)
		return
	}
	created(c, def)
}

// GetDefinition handles GET /api/v1/definitions/:id
func (h *Handlers) GetDefinition(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	def, err := h.services.Catalog.GetDefinition(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "get_definition", err)
		return
	}
	ok(c, def)
}

// AddSteps handles POST /api/v1/definitions/:id/steps
func (h *Handlers) AddSteps(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	var req AddStepsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	steps, err := h.services.Catalog.AddSteps(c.Request.Context(), id, req.Steps, actorFrom(c).ID)
	if err != nil {
		h.respondError(c, "add_steps", err)
		return
	}
	created(c, steps)
}

// DeactivateDefinition handles POST /api/v1/definitions/:id/deactivate
func (h *Handlers) DeactivateDefinition(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	if err := h.services.Catalog.DeactivateDefinition(c.Request.Context(), id, actorFrom(c).ID); err != nil {
		h.respondError(c, "deactivate_definition", err)
		return
	}
	ok(c, gin.H{"id": id, "is_active": false})
}

// ListDomainHandlers handles GET /api/v1/dispatcher/handlers
func (h *Handlers) ListDomainHandlers(c *gin.Context) {
	if h.services.Registry == nil {
		ok(c, []any{})
		return
	}
	ok(c, h.services.Registry.ListHandlers())
}

// Initiate handles POST /api/v1/workflows
func (h *Handlers) Initiate(c *gin.Context) {
	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	instance, err := h.services.Workflows.Initiate(c.Request.Context(), req.EntityType, req.EntityID, actorFrom(c))
	if err != nil {
		h.respondError(c, "initiate", err)
		return
	}
	created(c, instance)
}

// PendingActions handles GET /api/v1/workflows/pending for the caller's role
func (h *Handlers) PendingActions(c *gin.Context) {
	pending, err := h.services.Workflows.GetPendingActions(c.Request.Context(), actorFrom(c).Role)
	if err != nil {
		h.respondError(c, "pending_actions", err)
		return
	}
	ok(c, pending)
}

// FindActive handles GET /api/v1/workflows/active?entity_type=&entity_id=
func (h *Handlers) FindActive(c *gin.Context) {
	entityType, entityID := c.Query("entity_type"), c.Query("entity_id")
	if entityType == "" || entityID == "" {
		badRequest(c, "entity_type and entity_id are required")
		return
	}
	instance, err := h.services.Workflows.FindActive(c.Request.Context(), entityType, entityID)
	if err != nil {
		h.respondError(c, "find_active", err)
		return
	}
	ok(c, instance)
}

// GetInstance handles GET /api/v1/workflows/instances/:id
func (h *Handlers) GetInstance(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	view, err := h.services.Workflows.GetInstance(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "get_instance", err)
		return
	}
	ok(c, view)
}

// ListActions handles GET /api/v1/workflows/instances/:id/actions
func (h *Handlers) ListActions(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	actions, err := h.services.Workflows.ListActions(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "list_actions", err)
		return
	}
	ok(c, actions)
}

// PerformAction handles POST /api/v1/workflows/instances/:id/actions
func (h *Handlers) PerformAction(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	var req service.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.services.Workflows.PerformAction(c.Request.Context(), id, req, actorFrom(c))
	if err != nil {
		h.respondError(c, "perform_action", err)
		return
	}
	ok(c, result)
}

// CloseWorkflow handles POST /api/v1/workflows/instances/:id/close
func (h *Handlers) CloseWorkflow(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	var req CloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	instance, err := h.services.Workflows.CloseWorkflow(c.Request.Context(), id, req.Status, actorFrom(c))
	if err != nil {
		h.respondError(c, "close_workflow", err)
		return
	}
	ok(c, instance)
}

// ExportTrail handles GET /api/v1/workflows/instances/:id/trail.xlsx
func (h *Handlers) ExportTrail(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	if h.services.Exporter == nil {
		c.JSON(http.StatusNotImplemented, Response{Success: false, Error: "trail export is not configured"})
		return
	}

	trail, err := h.services.Workflows.Trail(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "export_trail", err)
		return
	}
	data, err := h.services.Exporter.Export(trail)
	if err != nil {
		h.respondError(c, "export_trail", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="workflow-%d-trail.xlsx"`, id))
	c.Data(http.StatusOK, h.services.Exporter.ContentType(), data)
}
