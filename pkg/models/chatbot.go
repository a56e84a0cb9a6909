package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
)

// ChatbotIntegration is the tenant's record of one provisioned messaging bot.
// The remote_* columns hold identifiers into the workflow engine, never secrets.
// active mirrors the remote workflow's activation flag 1:1; drift between the
// two is tolerated transiently and corrected before any explicit state change.
type ChatbotIntegration struct {
	ID       uuid.UUID `db:"id" json:"id"`
	TenantID uuid.UUID `db:"tenant_id" json:"tenant_id"`
	Platform Platform  `db:"platform" json:"platform"`
	// PlatformConfig is an opaque platform-specific blob (secrets, handles).
	PlatformConfig database.JSONB[map[string]any] `db:"platform_config" json:"platform_config,omitempty"`

	RemoteWorkflowID           *string `db:"remote_workflow_id" json:"remote_workflow_id,omitempty"`
	RemotePlatformCredentialID *string `db:"remote_platform_credential_id" json:"remote_platform_credential_id,omitempty"`
	RemoteAuthCredentialID     *string `db:"remote_auth_credential_id" json:"remote_auth_credential_id,omitempty"`

	AIModel       string  `db:"ai_model" json:"ai_model"`
	AITemperature float64 `db:"ai_temperature" json:"ai_temperature"`
	SystemPrompt  string  `db:"system_prompt" json:"system_prompt"`

	Active    bool       `db:"active" json:"active"`
	LastError *string    `db:"last_error" json:"last_error,omitempty"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (ChatbotIntegration) TableName() string {
	return "chatbot_integrations"
}

const (
	// MinTemperature and MaxTemperature bound ai_temperature (inclusive).
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// TemperatureInRange reports whether t is a legal ai_temperature.
func TemperatureInRange(t float64) bool {
	return t >= MinTemperature && t <= MaxTemperature
}
