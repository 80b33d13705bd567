// Package entitlement resolves what a user can actually do right now from
// their subscription state and plan definition. Resolution is a pure
// function of its inputs plus a caller-supplied clock, so callers decide
// freshness and the resolver stays trivially testable.
package entitlement

import (
	"time"

	"cyberrange-billing-be/internal/entity"
)

// Effective is the flattened answer to "what does this user get right now".
// Nil limits mean unlimited.
type Effective struct {
	PlanSlug           string                    `json:"plan_slug"`
	Tier               entity.PlanTier           `json:"tier"`
	Status             entity.SubscriptionStatus `json:"status"`
	MissionsAccess     entity.MissionsAccess     `json:"missions_access"`
	AiCoachDailyLimit  *int                      `json:"ai_coach_daily_limit"`
	PortfolioItemLimit *int                      `json:"portfolio_item_limit"`
	MentorshipAccess   bool                      `json:"mentorship_access"`
	TalentscopeAccess  bool                      `json:"talentscope_access"`
	MarketplaceContact bool                      `json:"marketplace_contact"`
	Capabilities       []entity.Capability       `json:"capabilities"`
	// EnhancedMode reports the promotional window granted on paid activation.
	// It decays purely by comparing the stored expiry against now.
	EnhancedMode          bool       `json:"enhanced_mode"`
	EnhancedModeExpiresAt *time.Time `json:"enhanced_mode_expires_at,omitempty"`
}

// Resolve computes effective entitlements at the instant now.
//
// A subscription in any status other than active or trial resolves to the
// free plan immediately, regardless of what plan_id still points at. The
// scheduler's plan drop is bookkeeping; access is revoked here first.
func Resolve(sub *entity.Subscription, plan *entity.Plan, freePlan *entity.Plan, now time.Time) Effective {
	if sub == nil || plan == nil || !sub.HasPaidAccess() {
		return fromPlan(freePlan, entity.SubscriptionStatusCanceled, sub)
	}

	eff := fromPlan(plan, sub.Status, sub)

	// Enhanced mode requires a stored expiry in the future AND a plan that
	// actually grants a window. Plans with a zero-day window never enter it,
	// even if a stale expiry is still on the row. While the window is live
	// the numeric limits are lifted entirely; once it passes, the plan's
	// steady-state limits reapply with no stored transition.
	if sub.EnhancedAccessExpiresAt != nil &&
		sub.EnhancedAccessExpiresAt.After(now) &&
		plan.EnhancedAccessDays > 0 {
		eff.EnhancedMode = true
		eff.EnhancedModeExpiresAt = sub.EnhancedAccessExpiresAt
		eff.AiCoachDailyLimit = nil
		eff.PortfolioItemLimit = nil
	}

	return eff
}

func fromPlan(plan *entity.Plan, status entity.SubscriptionStatus, sub *entity.Subscription) Effective {
	if sub != nil {
		status = sub.Status
	}
	if plan == nil {
		// No free plan row at all. Grant nothing rather than guess.
		zero := 0
		return Effective{
			PlanSlug:           "free",
			Tier:               entity.PlanTierFree,
			Status:             status,
			MissionsAccess:     entity.MissionsAccessNone,
			AiCoachDailyLimit:  &zero,
			PortfolioItemLimit: &zero,
		}
	}
	return Effective{
		PlanSlug:           plan.Slug,
		Tier:               plan.Tier,
		Status:             status,
		MissionsAccess:     plan.MissionsAccess,
		AiCoachDailyLimit:  plan.AiCoachDailyLimit,
		PortfolioItemLimit: plan.PortfolioItemLimit,
		MentorshipAccess:   plan.HasCapability(entity.CapabilityMentorship),
		TalentscopeAccess:  plan.HasCapability(entity.CapabilityTalentScope),
		MarketplaceContact: plan.HasCapability(entity.CapabilityMarketplaceContact),
		Capabilities:       plan.Capabilities,
	}
}
