package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant holds the pieces of the tenant record this service owns. The shared
// auth credential is one bearer-token credential in the workflow engine,
// referenced by every integration of the tenant and reference-counted at
// deprovisioning time.
type Tenant struct {
	ID                     uuid.UUID `db:"id" json:"id"`
	Name                   string    `db:"name" json:"name"`
	SharedAuthCredentialID *string   `db:"shared_auth_credential_id" json:"shared_auth_credential_id,omitempty"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Tenant) TableName() string {
	return "tenants"
}
