// FILE: internal/entity/subscription_entity.go
package entity

import (
	"time"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	SubscriptionStatusTrial    SubscriptionStatus = "trial"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription is the mutable core of the billing engine, exactly one per user.
// Status transitions are applied either by the gateway webhook mutators or by
// the enforcement scheduler; nothing ever deletes a subscription.
type Subscription struct {
	Id                 uuid.UUID
	UserId             uuid.UUID
	PlanId             uuid.UUID
	Status             SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	// EnhancedAccessExpiresAt bounds the promotional "enhanced access" window.
	// Decay is purely time-driven at read time, never swept by a job.
	EnhancedAccessExpiresAt *time.Time
	// PastDueSince is set only on the past_due transition and cleared on
	// recovery. It is the grace clock; updated_at is only a fallback for rows
	// written before this column existed.
	PastDueSince         *time.Time
	CancelRequested      bool
	CanceledAt           *time.Time
	GatewayTransactionId *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HasPaidAccess reports whether the subscription currently grants its plan's
// entitlements. Lapsed statuses never grant paid entitlements even while the
// stored plan reference still points at a paid tier.
func (s *Subscription) HasPaidAccess() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrial
}

// GraceDeadline returns the instant at which a past_due subscription is
// eligible for automatic cancellation and downgrade.
func (s *Subscription) GraceDeadline(graceDays int) time.Time {
	anchor := s.UpdatedAt
	if s.PastDueSince != nil {
		anchor = *s.PastDueSince
	}
	return anchor.AddDate(0, 0, graceDays)
}

// GraceExpired reports whether the grace period has fully elapsed at now.
func (s *Subscription) GraceExpired(now time.Time, graceDays int) bool {
	if s.Status != SubscriptionStatusPastDue {
		return false
	}
	return !now.Before(s.GraceDeadline(graceDays))
}

// PeriodElapsed reports whether the paid-for billing period has run out.
func (s *Subscription) PeriodElapsed(now time.Time) bool {
	return !s.CurrentPeriodEnd.After(now)
}
