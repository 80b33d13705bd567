// FILE: internal/entity/plan_entity.go
package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type PlanTier string
type MissionsAccess string
type Capability string

const (
	PlanTierFree         PlanTier = "free"
	PlanTierStarter      PlanTier = "starter"
	PlanTierProfessional PlanTier = "professional"

	MissionsAccessNone   MissionsAccess = "none"
	MissionsAccessAiOnly MissionsAccess = "ai_only"
	MissionsAccessFull   MissionsAccess = "full"

	CapabilityAiCoach            Capability = "ai_coach"
	CapabilityMentorship         Capability = "mentorship"
	CapabilityTalentScope        Capability = "talentscope"
	CapabilityMarketplaceContact Capability = "marketplace_contact"
	CapabilityPortfolioShowcase  Capability = "portfolio_showcase"
	CapabilityCertPrep           Capability = "cert_prep"
	CapabilityPrioritySupport    Capability = "priority_support"
)

// Ordinal returns the tier position for upgrade/downgrade comparisons
// (free < starter < professional).
func (t PlanTier) Ordinal() int {
	switch t {
	case PlanTierStarter:
		return 1
	case PlanTierProfessional:
		return 2
	default:
		return 0
	}
}

var knownCapabilities = map[Capability]bool{
	CapabilityAiCoach:            true,
	CapabilityMentorship:         true,
	CapabilityTalentScope:        true,
	CapabilityMarketplaceContact: true,
	CapabilityPortfolioShowcase:  true,
	CapabilityCertPrep:           true,
	CapabilityPrioritySupport:    true,
}

// ParseCapability rejects unknown capability strings at construction time
// so typos in seed data or stored rows fail loudly instead of silently
// never matching a gate check.
func ParseCapability(s string) (Capability, error) {
	c := Capability(s)
	if !knownCapabilities[c] {
		return "", fmt.Errorf("unknown capability: %q", s)
	}
	return c, nil
}

type Plan struct {
	Id   uuid.UUID
	Name string
	Slug string
	Tier PlanTier
	// MonthlyPrice is nil for the free tier.
	MonthlyPrice *float64
	// Numeric limits, nil = unlimited.
	AiCoachDailyLimit  *int
	PortfolioItemLimit *int
	MissionsAccess     MissionsAccess
	// EnhancedAccessDays is the length of the promotional window granted on
	// activation. 0 means the plan never enters enhanced mode.
	EnhancedAccessDays int
	Capabilities       []Capability
	// Display Settings
	IsActive  bool
	SortOrder int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Plan) IsFree() bool {
	return p.Tier == PlanTierFree
}

func (p *Plan) HasCapability(c Capability) bool {
	for _, have := range p.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Price returns the monthly price, treating the free tier's nil as zero.
func (p *Plan) Price() float64 {
	if p.MonthlyPrice == nil {
		return 0
	}
	return *p.MonthlyPrice
}
