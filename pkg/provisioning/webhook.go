package provisioning

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const webhookAttempts = 3

// WebhookReconciler repairs a known engine defect where a freshly created
// trigger node is missing the webhook identifier it needs to receive traffic.
// The workflow looks complete but the trigger is inert until the identifier
// is assigned.
type WebhookReconciler struct {
	engine Engine
	logger ectologger.Logger
	timing Timing
}

// NewWebhookReconciler creates a webhook reconciler
func NewWebhookReconciler(eng Engine, timing Timing, logger ectologger.Logger) *WebhookReconciler {
	return &WebhookReconciler{
		engine: eng,
		logger: logger,
		timing: timing,
	}
}

// EnsureWebhook drives up to three check-and-repair attempts against the
// workflow's trigger node. Each attempt waits, reads the workflow back, and
// if the identifier is still missing applies an escalating repair:
//
//	attempt 1: re-save the workflow unchanged (forces identifier regeneration)
//	attempt 2: deactivate, pause, reactivate (a different assignment code path)
//	attempt 3: re-save again, against the latest server copy
//
// After the third repair the workflow is reported unrecoverable with the
// manual remediation. This is a known engine limitation.
func (r *WebhookReconciler) EnsureWebhook(ctx context.Context, workflowID string) error {
	ctx, span := tracing.StartSpan(ctx, "WebhookReconciler.EnsureWebhook")
	defer span.End()

	for attempt := 1; attempt <= webhookAttempts; attempt++ {
		if err := sleep(ctx, r.timing.webhookCheckDelay(attempt)); err != nil {
			return err
		}

		workflow, err := r.readWorkflow(ctx, workflowID)
		if err != nil {
			return err
		}

		trigger := workflow.FindTriggerNode()
		if trigger == nil {
			return httperror.NewHTTPError(http.StatusUnprocessableEntity,
				fmt.Sprintf("workflow %s has no webhook trigger node", workflowID))
		}

		if trigger.WebhookID != "" {
			r.logger.WithContext(ctx).WithFields(map[string]any{
				"workflow_id": workflowID,
				"webhook_id":  trigger.WebhookID,
				"attempt":     attempt,
			}).Debug("Webhook identifier present")
			metrics.RecordWebhookRepair(fmt.Sprintf("check_%d", attempt), "ok")
			return nil
		}

		r.logger.WithContext(ctx).WithFields(map[string]any{
			"workflow_id": workflowID,
			"attempt":     attempt,
		}).Warn("Webhook identifier missing, applying repair")

		if err := r.repair(ctx, attempt, workflowID, workflow); err != nil {
			// Repair failures are not fatal on their own: the next
			// attempt re-reads and may find the identifier anyway.
			metrics.RecordWebhookRepair(fmt.Sprintf("level_%d", attempt), "error")
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"workflow_id": workflowID,
				"attempt":     attempt,
			}).Warn("Webhook repair failed")
		} else {
			metrics.RecordWebhookRepair(fmt.Sprintf("level_%d", attempt), "applied")
		}
	}

	metrics.RecordWebhookRepair("exhausted", "error")
	return httperror.NewHTTPError(http.StatusBadGateway, fmt.Sprintf(
		"workflow %s never received a webhook identifier after %d repair attempts; "+
			"open the engine UI, delete the trigger node and recreate it, then reactivate the workflow",
		workflowID, webhookAttempts))
}

// readWorkflow reads the workflow back, retrying once on a transport error.
func (r *WebhookReconciler) readWorkflow(ctx context.Context, workflowID string) (*engine.Workflow, error) {
	workflow, err := r.engine.GetWorkflow(ctx, workflowID)
	if err == nil {
		return workflow, nil
	}

	r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
		"workflow_id": workflowID,
	}).Warn("Failed to read workflow during webhook check, retrying once")

	return r.engine.GetWorkflow(ctx, workflowID)
}

func (r *WebhookReconciler) repair(ctx context.Context, level int, workflowID string, workflow *engine.Workflow) error {
	switch level {
	case 2:
		// Deactivate/reactivate assigns identifiers through a different
		// engine code path than the update call.
		if _, err := r.engine.Deactivate(ctx, workflowID); err != nil {
			return err
		}
		if err := sleep(ctx, r.timing.WebhookRepairCyclePause); err != nil {
			return err
		}
		_, err := r.engine.Activate(ctx, workflowID)
		return err
	default:
		// Re-saving the workflow unchanged forces identifier regeneration.
		// The client scrubs server-assigned fields before submitting.
		_, err := r.engine.UpdateWorkflow(ctx, workflowID, workflow)
		return err
	}
}
