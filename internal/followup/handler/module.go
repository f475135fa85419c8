package handler

import (
	apphttp "loancrm_backend/internal/http"
	"loancrm_backend/platform/httpkit"
	"loancrm_backend/platform/validator"
)

// RoleAgent is required to post processing events. Tokens for portal service
// accounts carry it alongside their user roles.
const RoleAgent = "agent"

// Module exposes the follow-up trigger API as an HTTP module.
type Module struct {
	handler *Handler
}

// NewModule creates the follow-up HTTP module with all dependencies wired.
func NewModule(processor Processor, val *validator.Validator) *Module {
	return &Module{handler: New(processor, val)}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "followup"
}

// RegisterRoutes registers the module's routes under /api/v1/applications.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	applications := ctx.Protected.Group("/applications")
	applications.Use(httpkit.RequireRole(RoleAgent))
	m.handler.RegisterRoutes(applications)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
