// Query specifications used by the billing-enforcement jobs. Eligibility is
// always recomputed from current row state so re-running a job within the
// same window selects nothing it already transitioned.
package specification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StatusIs filters subscriptions by status
type StatusIs struct {
	Status string
}

func (s StatusIs) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", s.Status)
}

// PlanIsNot excludes subscriptions already on the given plan
type PlanIsNot struct {
	PlanID uuid.UUID
}

func (s PlanIsNot) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("plan_id <> ?", s.PlanID)
}

// PeriodEndedBy selects subscriptions whose paid-for period has elapsed
type PeriodEndedBy struct {
	Now time.Time
}

func (s PeriodEndedBy) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("current_period_end <= ?", s.Now)
}

// GraceElapsedBy selects past_due rows whose grace clock has run out.
// past_due_since is the dedicated grace anchor; updated_at covers rows
// written before that column existed.
type GraceElapsedBy struct {
	Cutoff time.Time
}

func (s GraceElapsedBy) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("COALESCE(past_due_since, updated_at) <= ?", s.Cutoff)
}

// TierIs filters plans by tier
type TierIs struct {
	Tier string
}

func (s TierIs) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("tier = ?", s.Tier)
}

// ActiveOnly filters catalog rows hidden from display
type ActiveOnly struct{}

func (s ActiveOnly) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ?", true)
}
