package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/steiner385/MachShop-sub008/internal/application/service"
	appworkflow "github.com/steiner385/MachShop-sub008/internal/application/workflow"
	"github.com/steiner385/MachShop-sub008/internal/domain/entity"
	domainwf "github.com/steiner385/MachShop-sub008/internal/domain/workflow"
	"github.com/steiner385/MachShop-sub008/internal/infrastructure/export"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine            appworkflow.Engine
	definitionService service.DefinitionService
	auditExporter     *export.AuditExporter
	logger            Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	engine appworkflow.Engine,
	definitionService service.DefinitionService,
	auditExporter *export.AuditExporter,
	logger Logger,
) *Handlers {
	return &Handlers{
		engine:            engine,
		definitionService: definitionService,
		auditExporter:     auditExporter,
		logger:            logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ActionBody is the request body for submitting an approver decision
type ActionBody struct {
	Actor        string `json:"actor" binding:"required"`
	Outcome      string `json:"outcome" binding:"required"`
	Comment      string `json:"comment"`
	SignatureRef string `json:"signature_ref"`
}

// DelegateBody is the request body for delegating an assignment
type DelegateBody struct {
	Delegator string `json:"delegator" binding:"required"`
	Delegatee string `json:"delegatee" binding:"required"`
	Reason    string `json:"reason"`
}

// LifecycleBody is the request body for hold/resume/cancel operations
type LifecycleBody struct {
	Actor  string `json:"actor" binding:"required"`
	Reason string `json:"reason"`
}

// SignatureBody is the request body for completing a signature-gated stage
type SignatureBody struct {
	ExecutionOrder int    `json:"execution_order" binding:"required"`
	Actor          string `json:"actor" binding:"required"`
	SignatureRef   string `json:"signature_ref" binding:"required"`
}

// DeadlineBody is the request body for extending a stage deadline
type DeadlineBody struct {
	Hours int    `json:"hours" binding:"required"`
	Actor string `json:"actor" binding:"required"`
}

// ListQuery represents pagination query parameters
type ListQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

func (q *ListQuery) normalize() {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// PublishDefinition handles POST /api/v1/definitions
func (h *Handlers) PublishDefinition(c *gin.Context) {
	var def entity.WorkflowDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		h.badRequest(c, "invalid definition payload", err)
		return
	}

	published, err := h.definitionService.Publish(c.Request.Context(), &def)
	if err != nil {
		h.logger.Error("Failed to publish definition", "workflow_type", def.WorkflowType, "error", err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: published})
}

// ListDefinitions handles GET /api/v1/definitions
func (h *Handlers) ListDefinitions(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}
	q.normalize()

	defs, err := h.definitionService.ListDefinitions(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		h.logger.Error("Failed to list definitions", "error", err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: defs})
}

// GetDefinition handles GET /api/v1/definitions/:id
func (h *Handlers) GetDefinition(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	def, err := h.definitionService.GetDefinition(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "definition not found"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// StartInstance handles POST /api/v1/instances
func (h *Handlers) StartInstance(c *gin.Context) {
	var req appworkflow.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid start payload", err)
		return
	}
	if req.EntityType == "" || req.EntityID == "" || req.WorkflowType == "" || req.StartedBy == "" {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "entity_type, entity_id, workflow_type and started_by are required",
		})
		return
	}

	instance, err := h.engine.StartInstance(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("Failed to start instance",
			"entity_type", req.EntityType, "entity_id", req.EntityID, "error", err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: instance})
}

// GetInstance handles GET /api/v1/instances/:id
func (h *Handlers) GetInstance(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	view, err := h.engine.GetView(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "instance not found"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// GetHistory handles GET /api/v1/instances/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	events, err := h.engine.History(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load history", "instance_id", id, "error", err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: events})
}

// ExportHistory handles GET /api/v1/instances/:id/history/export
func (h *Handlers) ExportHistory(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	workbook, err := h.auditExporter.Build(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to build audit workbook", "instance_id", id, "error", err)
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "instance not found"})
		return
	}
	defer workbook.Close()

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="audit-instance-%d.xlsx"`, id))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := workbook.Write(c.Writer); err != nil {
		h.logger.Error("Failed to stream audit workbook", "instance_id", id, "error", err)
	}
}

// SubmitAction handles POST /api/v1/assignments/:id/action
func (h *Handlers) SubmitAction(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var body ActionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid action payload", err)
		return
	}

	view, err := h.engine.SubmitAction(c.Request.Context(), appworkflow.ActionRequest{
		AssignmentID: id,
		Actor:        body.Actor,
		Outcome:      body.Outcome,
		Comment:      body.Comment,
		SignatureRef: body.SignatureRef,
	})
	if err != nil {
		h.logger.Error("Failed to submit action", "assignment_id", id, "actor", body.Actor, "error", err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// Delegate handles POST /api/v1/assignments/:id/delegate
func (h *Handlers) Delegate(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var body DelegateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid delegate payload", err)
		return
	}

	replacement, err := h.engine.Delegate(c.Request.Context(), appworkflow.DelegateRequest{
		AssignmentID: id,
		Delegator:    body.Delegator,
		Delegatee:    body.Delegatee,
		Reason:       body.Reason,
	})
	if err != nil {
		h.logger.Error("Failed to delegate assignment", "assignment_id", id, "error", err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: replacement})
}

// HoldInstance handles POST /api/v1/instances/:id/hold
func (h *Handlers) HoldInstance(c *gin.Context) {
	h.lifecycle(c, h.engine.Hold)
}

// ResumeInstance handles POST /api/v1/instances/:id/resume
func (h *Handlers) ResumeInstance(c *gin.Context) {
	h.lifecycle(c, func(ctx context.Context, id int64, actor, _ string) error {
		return h.engine.Resume(ctx, id, actor)
	})
}

// CancelInstance handles POST /api/v1/instances/:id/cancel
func (h *Handlers) CancelInstance(c *gin.Context) {
	h.lifecycle(c, h.engine.Cancel)
}

// lifecycle handles the shared shape of hold/resume/cancel requests.
func (h *Handlers) lifecycle(c *gin.Context, op func(ctx context.Context, id int64, actor, reason string) error) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var body LifecycleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid lifecycle payload", err)
		return
	}

	if err := op(c.Request.Context(), id, body.Actor, body.Reason); err != nil {
		h.logger.Error("Lifecycle operation failed", "instance_id", id, "error", err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// CaptureSignature handles POST /api/v1/instances/:id/signature
func (h *Handlers) CaptureSignature(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var body SignatureBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid signature payload", err)
		return
	}

	view, err := h.engine.CaptureSignature(c.Request.Context(), appworkflow.SignatureRequest{
		InstanceID:     id,
		ExecutionOrder: body.ExecutionOrder,
		Actor:          body.Actor,
		SignatureRef:   body.SignatureRef,
	})
	if err != nil {
		h.logger.Error("Failed to capture signature", "instance_id", id, "error", err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// ExtendDeadline handles POST /api/v1/instances/:id/stages/:order/deadline
func (h *Handlers) ExtendDeadline(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	order, err := strconv.Atoi(c.Param("order"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid stage order"})
		return
	}

	var body DeadlineBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid deadline payload", err)
		return
	}
	if body.Hours <= 0 {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "hours must be positive"})
		return
	}

	if err := h.engine.ExtendDeadline(c.Request.Context(), id, order, body.Hours, body.Actor); err != nil {
		h.logger.Error("Failed to extend deadline", "instance_id", id, "stage_order", order, "error", err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// pathID parses an int64 path parameter, writing a 400 response on failure.
func (h *Handlers) pathID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid " + name})
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, "error", err)
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

// writeError maps domain sentinels to HTTP status codes.
func (h *Handlers) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domainwf.ErrDuplicateActiveInstance),
		errors.Is(err, domainwf.ErrAssignmentAlreadyClosed),
		errors.Is(err, domainwf.ErrConcurrentModification):
		status = http.StatusConflict
	case errors.Is(err, domainwf.ErrUnknownAssignment):
		status = http.StatusNotFound
	case errors.Is(err, domainwf.ErrInstanceTerminated):
		status = http.StatusGone
	case errors.Is(err, domainwf.ErrInstanceOnHold),
		errors.Is(err, domainwf.ErrDelegationNotAllowed),
		errors.Is(err, domainwf.ErrInvalidRuleCondition),
		errors.Is(err, domainwf.ErrInvalidTransition),
		errors.Is(err, entity.ErrInvalidDefinition):
		status = http.StatusUnprocessableEntity
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(status, Response{Success: false, Error: msg})
}
