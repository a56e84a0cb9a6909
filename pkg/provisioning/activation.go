package provisioning

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const activationAttempts = 3

// ActivationRetrier absorbs a transient engine race: activating a workflow
// immediately after creation can be rejected while the engine finishes its
// post-creation bookkeeping.
type ActivationRetrier struct {
	engine Engine
	logger ectologger.Logger
	timing Timing
}

// NewActivationRetrier creates an activation retrier
func NewActivationRetrier(eng Engine, timing Timing, logger ectologger.Logger) *ActivationRetrier {
	return &ActivationRetrier{
		engine: eng,
		logger: logger,
		timing: timing,
	}
}

// Activate attempts activation up to three times. The first attempt runs
// immediately; attempts two and three wait attempt x base before running.
// An engine report that the workflow has no startable node is structural
// and never retried.
func (r *ActivationRetrier) Activate(ctx context.Context, workflowID string) error {
	ctx, span := tracing.StartSpan(ctx, "ActivationRetrier.Activate")
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= activationAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt) * r.timing.ActivationBaseDelay
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}

		_, err := r.engine.Activate(ctx, workflowID)
		if err == nil {
			metrics.RecordActivationAttempt("ok")
			r.logger.WithContext(ctx).WithFields(map[string]any{
				"workflow_id": workflowID,
				"attempt":     attempt,
			}).Debug("Workflow activated")
			return nil
		}

		if engine.IsStructuralActivation(err) {
			metrics.RecordActivationAttempt("structural")
			return httperror.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf(
				"workflow %s has no node capable of starting it; the workflow definition must be corrected before activation", workflowID))
		}

		metrics.RecordActivationAttempt("error")
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"workflow_id": workflowID,
			"attempt":     attempt,
		}).Warn("Workflow activation attempt failed")
		lastErr = err
	}

	return fmt.Errorf("workflow %s activation failed after %d attempts: %w", workflowID, activationAttempts, lastErr)
}
