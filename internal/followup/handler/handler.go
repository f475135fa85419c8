package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"loancrm_backend/internal/followup"
	"loancrm_backend/internal/followup/transport"
	"loancrm_backend/platform/httpkit"
	"loancrm_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Processor runs one follow-up pass for an application.
type Processor interface {
	ProcessApplication(ctx context.Context, applicationID uuid.UUID, trigger followup.Trigger) (*followup.Outcome, error)
}

// Handler handles HTTP requests for follow-up triggers.
type Handler struct {
	processor Processor
	val       *validator.Validator
}

// New creates a new follow-up handler.
func New(processor Processor, val *validator.Validator) *Handler {
	return &Handler{processor: processor, val: val}
}

// RegisterRoutes registers the trigger routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/:id/events", h.ProcessEvent)
}

// ProcessEvent handles POST /api/v1/applications/:id/events.
func (h *Handler) ProcessEvent(c *gin.Context) {
	applicationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid application id")
		return
	}

	var req transport.ProcessEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	outcome, err := h.processor.ProcessApplication(c.Request.Context(), applicationID, followup.Trigger(req.Event))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, outcome)
}
