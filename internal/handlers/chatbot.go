package handlers

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/provisioning"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/utils"
	"github.com/Ramsey-B/fern/pkg/workflow"
)

// ChatbotHandler handles chatbot integration API requests
type ChatbotHandler struct {
	repo          repositories.ChatbotRepo
	orchestrator  *provisioning.Orchestrator
	deprovisioner *provisioning.Deprovisioner
	reconciler    *provisioning.StateReconciler
	engine        provisioning.Engine
	builder       *workflow.Builder
	validators    provisioning.ValidatorSource
}

// NewChatbotHandler creates a new chatbot handler
func NewChatbotHandler(
	repo repositories.ChatbotRepo,
	orchestrator *provisioning.Orchestrator,
	deprovisioner *provisioning.Deprovisioner,
	reconciler *provisioning.StateReconciler,
	eng provisioning.Engine,
	builder *workflow.Builder,
	validatorSource provisioning.ValidatorSource,
) *ChatbotHandler {
	return &ChatbotHandler{
		repo:          repo,
		orchestrator:  orchestrator,
		deprovisioner: deprovisioner,
		reconciler:    reconciler,
		engine:        eng,
		builder:       builder,
		validators:    validatorSource,
	}
}

// CreateChatbotRequest is the request body for provisioning a chatbot
type CreateChatbotRequest struct {
	Platform       string         `json:"platform" validate:"required"`
	PlatformConfig map[string]any `json:"platform_config" validate:"required"`
	AIModel        string         `json:"ai_model" validate:"required"`
	AITemperature  float64        `json:"ai_temperature"`
	SystemPrompt   string         `json:"system_prompt" validate:"required"`
}

// UpdateChatbotRequest is the request body for updating a chatbot's AI settings
type UpdateChatbotRequest struct {
	AIModel       *string  `json:"ai_model,omitempty"`
	AITemperature *float64 `json:"ai_temperature,omitempty"`
	SystemPrompt  *string  `json:"system_prompt,omitempty"`
}

// SetStateRequest is the request body for an explicit activate/deactivate
type SetStateRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// RegisterRoutes registers the chatbot routes
func (h *ChatbotHandler) RegisterRoutes(g *echo.Group) {
	chatbots := g.Group("/chatbots")
	chatbots.POST("", h.Create)
	chatbots.GET("", h.List)
	chatbots.GET("/:id", h.Get)
	chatbots.PUT("/:id", h.Update)
	chatbots.PUT("/:id/state", h.SetState)
	chatbots.DELETE("/:id", h.Delete)
}

// Create handles POST /chatbots
func (h *ChatbotHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[CreateChatbotRequest](c)
	if err != nil {
		return err
	}

	platform, err := models.ParsePlatform(req.Platform)
	if err != nil {
		return BadRequest(err.Error())
	}
	if !models.TemperatureInRange(req.AITemperature) {
		return BadRequest("ai_temperature must be between 0.0 and 2.0")
	}

	record, err := h.orchestrator.Provision(ctx, provisioning.ProvisionInput{
		Platform:       platform,
		PlatformConfig: req.PlatformConfig,
		AIModel:        req.AIModel,
		AITemperature:  req.AITemperature,
		SystemPrompt:   req.SystemPrompt,
	})
	if err != nil {
		return err
	}

	return CreatedResponse(c, record)
}

// List handles GET /chatbots
func (h *ChatbotHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	chatbots, err := h.repo.List(ctx)
	if err != nil {
		return err
	}

	return SuccessResponse(c, chatbots)
}

// Get handles GET /chatbots/:id
func (h *ChatbotHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	chatbot, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, chatbot)
}

// Update handles PUT /chatbots/:id. Only AI settings are updatable; changing
// platform credentials means deprovisioning and provisioning again.
func (h *ChatbotHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	existing, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[UpdateChatbotRequest](c)
	if err != nil {
		return err
	}

	if req.AIModel != nil {
		existing.AIModel = *req.AIModel
	}
	if req.AITemperature != nil {
		if !models.TemperatureInRange(*req.AITemperature) {
			return BadRequest("ai_temperature must be between 0.0 and 2.0")
		}
		existing.AITemperature = *req.AITemperature
	}
	if req.SystemPrompt != nil {
		existing.SystemPrompt = *req.SystemPrompt
	}

	// Keep the engine's copy in step with the stored settings.
	if err := h.resubmitWorkflow(c, existing); err != nil {
		return err
	}

	if err := h.repo.Update(ctx, existing); err != nil {
		return err
	}

	return SuccessResponse(c, existing)
}

// resubmitWorkflow rebuilds the workflow definition from the updated record
// and re-submits it, so the agent picks up the new prompt settings.
func (h *ChatbotHandler) resubmitWorkflow(c echo.Context, record *models.ChatbotIntegration) error {
	if record.RemoteWorkflowID == nil || record.RemotePlatformCredentialID == nil || record.RemoteAuthCredentialID == nil {
		return nil
	}
	ctx := c.Request().Context()

	validator, err := h.validators.Get(record.Platform)
	if err != nil {
		return BadRequest(err.Error())
	}

	definition, err := h.builder.Build(workflow.BuildInput{
		TenantID:             record.TenantID,
		Platform:             record.Platform,
		AIModel:              record.AIModel,
		Temperature:          record.AITemperature,
		SystemPrompt:         record.SystemPrompt,
		PlatformCredentialID: *record.RemotePlatformCredentialID,
		AuthCredentialID:     *record.RemoteAuthCredentialID,
		CredentialType:       validator.CredentialType(),
	})
	if err != nil {
		return BadRequest(err.Error())
	}

	if _, err := h.engine.UpdateWorkflow(ctx, *record.RemoteWorkflowID, definition); err != nil {
		return httperror.WrapError(http.StatusBadGateway, err)
	}
	return nil
}

// SetState handles PUT /chatbots/:id/state
func (h *ChatbotHandler) SetState(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[SetStateRequest](c)
	if err != nil {
		return err
	}

	record, err := h.reconciler.SetActive(ctx, id, *req.Active)
	if err != nil {
		if record != nil {
			// Partial failure: surface the error together with the
			// best-known record.
			return httperror.WrapError(http.StatusBadGateway, err).AddMetaValue("chatbot", record)
		}
		return err
	}

	return SuccessResponse(c, record)
}

// Delete handles DELETE /chatbots/:id
func (h *ChatbotHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.deprovisioner.Deprovision(ctx, id); err != nil {
		return err
	}

	return NoContentResponse(c)
}
