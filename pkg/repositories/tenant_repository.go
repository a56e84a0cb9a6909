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

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tenantsTable = "tenants"

var tenantStruct = database.NewStruct(new(models.Tenant))

// TenantRepository handles database operations for tenants
type TenantRepository struct {
	*Repository
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db database.DB, logger ectologger.Logger) *TenantRepository {
	return &TenantRepository{
		Repository: NewRepository(db, logger),
	}
}

// Get retrieves a tenant by ID
func (r *TenantRepository) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	ctx, span := tracing.StartSpan(ctx, "TenantRepository.Get")
	defer span.End()

	sb := tenantStruct.SelectFrom(tenantsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var tenant models.Tenant
	err := r.DB().GetContext(ctx, &tenant, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("tenant %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": id,
		}).Error("failed to get tenant")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get tenant")
	}

	return &tenant, nil
}

// SetSharedAuthCredentialID records (or clears, with nil) the tenant's shared
// engine auth credential reference.
func (r *TenantRepository) SetSharedAuthCredentialID(ctx context.Context, id uuid.UUID, credentialID *string) error {
	ctx, span := tracing.StartSpan(ctx, "TenantRepository.SetSharedAuthCredentialID")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(tenantsTable).
		Set(
			ub.Assign("shared_auth_credential_id", credentialID),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", id))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	var updatedAt sql.NullTime
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound("tenant %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": id,
		}).Error("failed to update tenant shared auth credential")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update tenant shared auth credential")
	}

	return nil
}
