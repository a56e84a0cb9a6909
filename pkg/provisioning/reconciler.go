package provisioning

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// StateReconciler honors explicit activate/deactivate requests, first
// correcting any drift between the stored activity flag and the engine's
// real state so the requested change always starts from ground truth.
type StateReconciler struct {
	chatbots  repositories.ChatbotRepo
	engine    Engine
	activator *ActivationRetrier
	events    EventPublisher
	logger    ectologger.Logger
}

// NewStateReconciler creates a state reconciler
func NewStateReconciler(chatbots repositories.ChatbotRepo, eng Engine, activator *ActivationRetrier, events EventPublisher, logger ectologger.Logger) *StateReconciler {
	return &StateReconciler{
		chatbots:  chatbots,
		engine:    eng,
		activator: activator,
		events:    events,
		logger:    logger,
	}
}

// SetActive reconciles then applies the requested state. On failure the
// previous flag stays, the error is recorded on the row, and the best-known
// record is returned alongside the error so callers can surface both.
func (r *StateReconciler) SetActive(ctx context.Context, id uuid.UUID, desired bool) (*models.ChatbotIntegration, error) {
	ctx, span := tracing.StartSpan(ctx, "StateReconciler.SetActive")
	defer span.End()

	record, err := r.chatbots.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if record.RemoteWorkflowID == nil {
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity,
			"chatbot has no workflow in the engine; re-provision it before changing its state")
	}
	workflowID := *record.RemoteWorkflowID

	r.reconcile(ctx, record, workflowID)

	if desired {
		err = r.activator.Activate(ctx, workflowID)
	} else {
		_, err = r.engine.Deactivate(ctx, workflowID)
	}

	if err != nil {
		// Keep the flag as reconciled; record what went wrong.
		msg := err.Error()
		record.LastError = &msg
		if updateErr := r.chatbots.UpdateFlags(ctx, id, record.Active, &msg); updateErr != nil {
			r.logger.WithContext(ctx).WithError(updateErr).Warn("Failed to record state change error")
		}
		return record, err
	}

	if err := r.chatbots.UpdateFlags(ctx, id, desired, nil); err != nil {
		return record, err
	}
	record.Active = desired
	record.LastError = nil

	if r.events != nil {
		if err := r.events.Publish(ctx, &kafka.ChatbotEvent{
			Type:       kafka.EventChatbotStateChanged,
			TenantID:   record.TenantID,
			ChatbotID:  record.ID,
			Platform:   record.Platform,
			WorkflowID: record.RemoteWorkflowID,
			Active:     desired,
		}); err != nil {
			r.logger.WithContext(ctx).WithError(err).Warn("Failed to publish state change event")
		}
	}

	return record, nil
}

// reconcile silently persists the engine's truth when it disagrees with the
// stored flag. Corrections are side effects, never errors: a missing or
// unreadable workflow leaves the flag alone and lets the explicit request
// fail downstream with a clearer message.
func (r *StateReconciler) reconcile(ctx context.Context, record *models.ChatbotIntegration, workflowID string) {
	remote, err := r.engine.GetWorkflow(ctx, workflowID)
	if err != nil {
		if engine.IsNotFound(err) {
			metrics.RecordStateReconciliation("workflow_missing")
		} else {
			metrics.RecordStateReconciliation("read_error")
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"workflow_id": workflowID,
			}).Warn("Failed to read workflow for drift check")
		}
		return
	}

	if remote.Active == record.Active {
		metrics.RecordStateReconciliation("in_sync")
		return
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"chatbot_id":    record.ID,
		"stored_active": record.Active,
		"remote_active": remote.Active,
	}).Info("Correcting activity flag drift from engine state")

	if err := r.chatbots.UpdateFlags(ctx, record.ID, remote.Active, nil); err != nil {
		metrics.RecordStateReconciliation("correction_failed")
		r.logger.WithContext(ctx).WithError(err).Warn("Failed to persist drift correction")
		return
	}

	record.Active = remote.Active
	record.LastError = nil
	metrics.RecordStateReconciliation("corrected")
}
