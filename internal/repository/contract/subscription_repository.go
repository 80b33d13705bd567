package contract

import (
	"context"
	"time"

	"cyberrange-billing-be/internal/entity"
	"cyberrange-billing-be/internal/repository/specification"

	"github.com/google/uuid"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, subscription *entity.Subscription) error
	Update(ctx context.Context, subscription *entity.Subscription) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Subscription, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Subscription, error)

	// Guarded transitions. Each issues a single row-level UPDATE whose WHERE
	// clause re-checks eligibility, so concurrent jobs (or a re-run within the
	// same window) cannot double-apply a transition. The bool result reports
	// whether the row actually changed.

	// MarkPastDue: trial/active -> past_due, stamping past_due_since.
	MarkPastDue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// MarkActive: any status -> active on the given plan with a fresh billing
	// period, clearing the grace clock and cancel flags. Guarded on orderId so
	// a replayed settlement webhook is a no-op.
	MarkActive(ctx context.Context, id uuid.UUID, planId uuid.UUID, orderId string, periodStart, periodEnd time.Time, enhancedExpiry *time.Time) (bool, error)

	// ApplyGraceDowngrade: past_due -> canceled on the free plan, clearing
	// enhanced access. Applies only while the row is still past_due.
	ApplyGraceDowngrade(ctx context.Context, id uuid.UUID, freePlanId uuid.UUID, now time.Time) (bool, error)

	// ApplyPlanDrop: a canceled subscription whose paid-for period elapsed
	// drops to the free plan; status stays canceled.
	ApplyPlanDrop(ctx context.Context, id uuid.UUID, freePlanId uuid.UUID, now time.Time) (bool, error)

	// ApplyRenewal: active subscription with an elapsed period gets a fresh
	// [now, now+renewal) period.
	ApplyRenewal(ctx context.Context, id uuid.UUID, periodStart, periodEnd time.Time) (bool, error)

	// ApplyTrialExpiry: trial whose period elapsed without a payment drops to
	// canceled on the free plan.
	ApplyTrialExpiry(ctx context.Context, id uuid.UUID, freePlanId uuid.UUID, now time.Time) (bool, error)

	// Dashboard / Admin Stats
	CountByStatus(ctx context.Context, status entity.SubscriptionStatus) (int, error)
}
