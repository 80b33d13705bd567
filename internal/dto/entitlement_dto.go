// FILE: internal/dto/entitlement_dto.go
package dto

import (
	"fmt"

	"github.com/google/uuid"
)

// InvalidateEntitlementMessage travels over the in-process bus whenever a
// subscription mutates, telling readers to drop their cached resolution.
type InvalidateEntitlementMessage struct {
	UserId uuid.UUID `json:"user_id"`
}

// EntitlementResponse mirrors entitlement.Effective for the API surface.
type EntitlementResponse struct {
	PlanSlug              string   `json:"plan_slug"`
	Tier                  string   `json:"tier"`
	Status                string   `json:"status"`
	MissionsAccess        string   `json:"missions_access"`
	AiCoachDailyLimit     *int     `json:"ai_coach_daily_limit"`
	PortfolioItemLimit    *int     `json:"portfolio_item_limit"`
	MentorshipAccess      bool     `json:"mentorship_access"`
	TalentscopeAccess     bool     `json:"talentscope_access"`
	MarketplaceContact    bool     `json:"marketplace_contact"`
	Capabilities          []string `json:"capabilities"`
	EnhancedMode          bool     `json:"enhanced_mode"`
	EnhancedModeExpiresAt *string  `json:"enhanced_mode_expires_at,omitempty"`
}

type ValidateCapabilityRequest struct {
	Capability string `json:"capability" validate:"required"`
}

type ValidateCapabilityResponse struct {
	Capability string `json:"capability"`
	Allowed    bool   `json:"allowed"`
}

type UsageResponse struct {
	Metric    string `json:"metric"`
	Used      int64  `json:"used"`
	Limit     *int   `json:"limit"` // nil = unlimited
	Remaining *int64 `json:"remaining,omitempty"`
}

// LimitExceededError is returned when a metered action would pass its daily
// cap. The error middleware maps it to 403.
type LimitExceededError struct {
	Metric string
	Used   int64
	Limit  int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("daily limit reached for %s: %d of %d used", e.Metric, e.Used, e.Limit)
}
