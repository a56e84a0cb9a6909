package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const chatbotsTable = "chatbot_integrations"

// uniqueViolation is the Postgres error code for a unique constraint violation.
const uniqueViolation = "23505"

var chatbotStruct = database.NewStruct(new(models.ChatbotIntegration))

// ChatbotRepository handles database operations for chatbot integrations.
// Rows are soft-deleted; every read filters on deleted_at IS NULL.
type ChatbotRepository struct {
	*Repository
}

// NewChatbotRepository creates a new chatbot integration repository
func NewChatbotRepository(db database.DB, logger ectologger.Logger) *ChatbotRepository {
	return &ChatbotRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create inserts a new chatbot integration. The partial unique index on
// (tenant_id, platform) is the final safety net for the provisioning race;
// a violation surfaces as a 409.
func (r *ChatbotRepository) Create(ctx context.Context, chatbot *models.ChatbotIntegration) error {
	ctx, span := tracing.StartSpan(ctx, "ChatbotRepository.Create")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}
	chatbot.TenantID = tenantID

	if chatbot.ID == uuid.Nil {
		chatbot.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(chatbotsTable).
		Cols("id", "tenant_id", "platform", "platform_config",
			"remote_workflow_id", "remote_platform_credential_id", "remote_auth_credential_id",
			"ai_model", "ai_temperature", "system_prompt",
			"active", "last_error", "created_at", "updated_at").
		Values(chatbot.ID, chatbot.TenantID, chatbot.Platform, chatbot.PlatformConfig,
			chatbot.RemoteWorkflowID, chatbot.RemotePlatformCredentialID, chatbot.RemoteAuthCredentialID,
			chatbot.AIModel, chatbot.AITemperature, chatbot.SystemPrompt,
			chatbot.Active, chatbot.LastError,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&chatbot.CreatedAt, &chatbot.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return Conflict("a %s chatbot already exists for this tenant", chatbot.Platform)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"chatbot_id": chatbot.ID,
			"platform":   chatbot.Platform,
		}).Error("failed to create chatbot integration")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create chatbot integration")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"chatbot_id": chatbot.ID,
		"platform":   chatbot.Platform,
	}).Debugf("Created %s", chatbotsTable)
	return nil
}

// GetByID retrieves a non-deleted chatbot integration by ID (tenant-scoped)
func (r *ChatbotRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ChatbotIntegration, error) {
	ctx, span := tracing.StartSpan(ctx, "ChatbotRepository.GetByID")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := chatbotStruct.SelectFrom(chatbotsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("id", id), sb.IsNull("deleted_at"))

	query, args := sb.Build()
	var chatbot models.ChatbotIntegration
	err = r.DB().GetContext(ctx, &chatbot, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("chatbot integration %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"chatbot_id": id,
		}).Error("failed to get chatbot integration by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get chatbot integration by ID")
	}

	return &chatbot, nil
}

// GetByTenantAndPlatform retrieves the tenant's non-deleted integration for a
// platform. Used as the provisioning uniqueness pre-check.
func (r *ChatbotRepository) GetByTenantAndPlatform(ctx context.Context, platform models.Platform) (*models.ChatbotIntegration, error) {
	ctx, span := tracing.StartSpan(ctx, "ChatbotRepository.GetByTenantAndPlatform")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := chatbotStruct.SelectFrom(chatbotsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("platform", platform), sb.IsNull("deleted_at"))

	query, args := sb.Build()
	var chatbot models.ChatbotIntegration
	err = r.DB().GetContext(ctx, &chatbot, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("no %s chatbot integration exists for this tenant", platform)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"platform": platform,
		}).Error("failed to get chatbot integration by platform")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get chatbot integration by platform")
	}

	return &chatbot, nil
}

// List retrieves all non-deleted chatbot integrations for the current tenant
func (r *ChatbotRepository) List(ctx context.Context) ([]models.ChatbotIntegration, error) {
	ctx, span := tracing.StartSpan(ctx, "ChatbotRepository.List")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := chatbotStruct.SelectFrom(chatbotsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.IsNull("deleted_at"))
	sb.OrderBy("platform")

	query, args := sb.Build()
	var chatbots []models.ChatbotIntegration
	err = r.DB().SelectContext(ctx, &chatbots, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list chatbot integrations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list chatbot integrations")
	}

	return chatbots, nil
}

// Update updates configuration fields of an existing chatbot integration
func (r *ChatbotRepository) Update(ctx context.Context, chatbot *models.ChatbotIntegration) error {
	ctx, span := tracing.StartSpan(ctx, "ChatbotRepository.Update")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(chatbotsTable).
		Set(
			ub.Assign("platform_config", chatbot.PlatformConfig),
			ub.Assign("ai_model", chatbot.AIModel),
			ub.Assign("ai_temperature", chatbot.AITemperature),
			ub.Assign("system_prompt", chatbot.SystemPrompt),
			ub.Assign("remote_workflow_id", chatbot.RemoteWorkflowID),
			ub.Assign("remote_platform_credential_id", chatbot.RemotePlatformCredentialID),
			ub.Assign("remote_auth_credential_id", chatbot.RemoteAuthCredentialID),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("tenant_id", tenantID), ub.Equal("id", chatbot.ID), ub.IsNull("deleted_at"))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&chatbot.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound("chatbot integration %s does not exist", chatbot.ID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"chatbot_id": chatbot.ID,
		}).Error("failed to update chatbot integration")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update chatbot integration")
	}

	return nil
}

// UpdateFlags persists the activity flag and error message. A nil lastError
// clears any stored error.
func (r *ChatbotRepository) UpdateFlags(ctx context.Context, id uuid.UUID, active bool, lastError *string) error {
	ctx, span := tracing.StartSpan(ctx, "ChatbotRepository.UpdateFlags")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(chatbotsTable).
		Set(
			ub.Assign("active", active),
			ub.Assign("last_error", lastError),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("tenant_id", tenantID), ub.Equal("id", id), ub.IsNull("deleted_at"))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	var updatedAt sql.NullTime
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound("chatbot integration %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"chatbot_id": id,
			"active":     active,
		}).Error("failed to update chatbot integration flags")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update chatbot integration flags")
	}

	return nil
}

// SoftDelete marks a chatbot integration as deleted
func (r *ChatbotRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "ChatbotRepository.SoftDelete")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(chatbotsTable).
		Set(
			ub.Assign("deleted_at", sqlbuilder.Raw("NOW()")),
			ub.Assign("active", false),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("tenant_id", tenantID), ub.Equal("id", id), ub.IsNull("deleted_at"))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	var updatedAt sql.NullTime
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound("chatbot integration %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"chatbot_id": id,
		}).Error("failed to soft delete chatbot integration")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to soft delete chatbot integration")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"chatbot_id": id,
	}).Debugf("Soft deleted %s", chatbotsTable)
	return nil
}

// CountForTenant counts the tenant's non-deleted integrations. Used to decide
// whether a deprovisioning removes the last reference to the shared auth
// credential.
func (r *ChatbotRepository) CountForTenant(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "ChatbotRepository.CountForTenant")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return 0, err
	}

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(chatbotsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.IsNull("deleted_at"))

	query, args := sb.Build()
	var count int64
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to count chatbot integrations")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count chatbot integrations")
	}

	return count, nil
}
