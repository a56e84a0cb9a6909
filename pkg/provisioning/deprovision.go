package provisioning

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Deprovisioner removes one integration's remote footprint and soft-deletes
// its record. Remote deletes are best-effort and idempotent; the shared auth
// credential is reference-counted and only deleted with the tenant's last
// integration. Only the local soft-delete can fail the operation.
type Deprovisioner struct {
	chatbots repositories.ChatbotRepo
	tenants  repositories.TenantRepo
	engine   Engine
	events   EventPublisher
	logger   ectologger.Logger
}

// NewDeprovisioner creates a deprovisioning orchestrator
func NewDeprovisioner(chatbots repositories.ChatbotRepo, tenants repositories.TenantRepo, eng Engine, events EventPublisher, logger ectologger.Logger) *Deprovisioner {
	return &Deprovisioner{
		chatbots: chatbots,
		tenants:  tenants,
		engine:   eng,
		events:   events,
		logger:   logger,
	}
}

// Deprovision tears down the integration identified by id.
func (d *Deprovisioner) Deprovision(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "Deprovisioner.Deprovision")
	defer span.End()

	record, err := d.chatbots.GetByID(ctx, id)
	if err != nil {
		return err
	}

	// Count before deleting anything: the answer decides the shared
	// credential's fate and must reflect the state at teardown start.
	count, err := d.chatbots.CountForTenant(ctx)
	if err != nil {
		return err
	}
	lastIntegration := count <= 1

	if record.RemoteWorkflowID != nil {
		d.deleteRemote(ctx, "workflow", *record.RemoteWorkflowID, d.engine.DeleteWorkflow)
	}

	if record.RemotePlatformCredentialID != nil {
		d.deleteRemote(ctx, "platform_credential", *record.RemotePlatformCredentialID, d.engine.DeleteCredential)
	}

	// Sibling integrations of the same tenant reference the same auth
	// credential; it goes only when the last of them does.
	if lastIntegration && record.RemoteAuthCredentialID != nil {
		d.deleteRemote(ctx, "auth_credential", *record.RemoteAuthCredentialID, d.engine.DeleteCredential)
		if err := d.tenants.SetSharedAuthCredentialID(ctx, record.TenantID, nil); err != nil {
			d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"tenant_id": record.TenantID,
			}).Warn("Failed to clear shared auth credential reference")
		}
	}

	if err := d.chatbots.SoftDelete(ctx, id); err != nil {
		return err
	}

	if d.events != nil {
		record.Active = false
		if err := d.events.Publish(ctx, &kafka.ChatbotEvent{
			Type:       kafka.EventChatbotDeprovisioned,
			TenantID:   record.TenantID,
			ChatbotID:  record.ID,
			Platform:   record.Platform,
			WorkflowID: record.RemoteWorkflowID,
		}); err != nil {
			d.logger.WithContext(ctx).WithError(err).Warn("Failed to publish deprovisioned event")
		}
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"chatbot_id":       id,
		"platform":         record.Platform,
		"last_integration": lastIntegration,
	}).Info("Chatbot deprovisioned")
	return nil
}

// deleteRemote performs one best-effort idempotent remote delete: a resource
// that is already gone satisfies the intent.
func (d *Deprovisioner) deleteRemote(ctx context.Context, resource, id string, del func(context.Context, string) error) {
	err := del(ctx, id)
	if err != nil && !engine.IsNotFound(err) {
		metrics.RecordCompensation(resource, "error")
		d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"resource":    resource,
			"resource_id": id,
		}).Warn("Remote delete failed, continuing teardown")
		return
	}

	metrics.RecordCompensation(resource, "ok")
}
