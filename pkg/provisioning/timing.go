package provisioning

import (
	"context"
	"time"
)

// Timing holds every delay the provisioning flows sleep on. Tests inject
// near-zero values; production values come from config.
type Timing struct {
	// ActivationBaseDelay is the unit for the progressive activation
	// backoff: attempt two waits 2x, attempt three waits 3x.
	ActivationBaseDelay time.Duration

	// Webhook identifier checks wait progressively longer before each read.
	WebhookCheckShortDelay  time.Duration
	WebhookCheckMediumDelay time.Duration
	WebhookCheckLongDelay   time.Duration

	// WebhookRepairCyclePause separates the deactivate and reactivate calls
	// of a level-2 repair.
	WebhookRepairCyclePause time.Duration

	// CompensationTimeout bounds the detached rollback that runs even when
	// the request context is already cancelled.
	CompensationTimeout time.Duration
}

// DefaultTiming returns production delays.
func DefaultTiming() Timing {
	return Timing{
		ActivationBaseDelay:     2 * time.Second,
		WebhookCheckShortDelay:  2 * time.Second,
		WebhookCheckMediumDelay: 5 * time.Second,
		WebhookCheckLongDelay:   10 * time.Second,
		WebhookRepairCyclePause: 2 * time.Second,
		CompensationTimeout:     30 * time.Second,
	}
}

func (t Timing) webhookCheckDelay(attempt int) time.Duration {
	switch attempt {
	case 1:
		return t.WebhookCheckShortDelay
	case 2:
		return t.WebhookCheckMediumDelay
	default:
		return t.WebhookCheckLongDelay
	}
}

// sleep waits for d or until the context is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
