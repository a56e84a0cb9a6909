package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ChatbotRepo defines the interface for chatbot integration repository operations
type ChatbotRepo interface {
	Create(ctx context.Context, chatbot *models.ChatbotIntegration) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ChatbotIntegration, error)
	GetByTenantAndPlatform(ctx context.Context, platform models.Platform) (*models.ChatbotIntegration, error)
	List(ctx context.Context) ([]models.ChatbotIntegration, error)
	Update(ctx context.Context, chatbot *models.ChatbotIntegration) error
	UpdateFlags(ctx context.Context, id uuid.UUID, active bool, lastError *string) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	CountForTenant(ctx context.Context) (int64, error)
}

// TenantRepo defines the interface for tenant repository operations
type TenantRepo interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	SetSharedAuthCredentialID(ctx context.Context, id uuid.UUID, credentialID *string) error
}
