package syncer

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"teamsync/internal/logger"
)

// BillingNotifier receives aggregated seat-count changes. Failures are
// logged; billing consistency is reconciled out-of-band, never by
// retrying here.
type BillingNotifier interface {
	SeatsAdded(ctx context.Context, orgSlug string, count int) error
	SeatsRemoved(ctx context.Context, orgSlug string, count int) error
}

// SetupSender delivers one account-setup message to a resolved
// recipient. Its success or failure does not affect reconciliation
// correctness.
type SetupSender interface {
	SendSetup(ctx context.Context, externalID, name, setupToken string) error
}

// Coordinator fans out the side effects of a completed reconciliation:
// billing notifications and onboarding messages. Everything here is
// best-effort.
type Coordinator struct {
	billing BillingNotifier
	limiter *rate.Limiter
}

// NewCoordinator configures the fan-out. sendInterval is the fixed
// pause between onboarding sends, respecting external rate limits.
func NewCoordinator(billing BillingNotifier, sendInterval time.Duration) *Coordinator {
	return &Coordinator{
		billing: billing,
		limiter: rate.NewLimiter(rate.Every(sendInterval), 1),
	}
}

// Deliver fires the side effects for one run, mutating only the
// Onboarded/OnboardingErrors counts on the outcome.
func (c *Coordinator) Deliver(
	ctx context.Context,
	orgSlug string,
	sender SetupSender,
	out *Outcome,
	pending []PendingOnboarding,
) {
	c.notifyBilling(ctx, orgSlug, out)

	// Sequential, paced sends. A failed send is counted and skipped;
	// the remaining messages still go out.
	for i, p := range pending {
		if err := c.limiter.Wait(ctx); err != nil {
			out.OnboardingErrors += len(pending) - i
			logger.Warn("onboarding aborted", map[string]any{
				"org":       orgSlug,
				"remaining": len(pending) - i,
				"error":     err.Error(),
			})
			return
		}

		if err := sender.SendSetup(ctx, p.ExternalID, p.Name, p.SetupToken); err != nil {
			out.OnboardingErrors++
			logger.Warn("onboarding send failed", map[string]any{
				"org":         orgSlug,
				"external_id": p.ExternalID,
				"error":       err.Error(),
			})
			continue
		}

		out.Onboarded++
	}
}

func (c *Coordinator) notifyBilling(ctx context.Context, orgSlug string, out *Outcome) {
	if c.billing == nil {
		return
	}

	if added := out.Created + out.Reactivated; added > 0 {
		if err := c.billing.SeatsAdded(ctx, orgSlug, added); err != nil {
			logger.Error("billing addition notification failed", map[string]any{
				"org":   orgSlug,
				"count": added,
				"error": err.Error(),
			})
		}
	}

	if out.Deactivated > 0 {
		if err := c.billing.SeatsRemoved(ctx, orgSlug, out.Deactivated); err != nil {
			logger.Error("billing removal notification failed", map[string]any{
				"org":   orgSlug,
				"count": out.Deactivated,
				"error": err.Error(),
			})
		}
	}
}
