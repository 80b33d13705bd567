// FILE: internal/dto/billing_dto.go
package dto

import (
	"time"

	"github.com/google/uuid"
)

// --- Plan Catalog DTOs ---

type PlanResponse struct {
	Id                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Slug               string    `json:"slug"`
	Tier               string    `json:"tier"`
	MonthlyPrice       *float64  `json:"monthly_price"`
	AiCoachDailyLimit  *int      `json:"ai_coach_daily_limit"`
	PortfolioItemLimit *int      `json:"portfolio_item_limit"`
	MissionsAccess     string    `json:"missions_access"`
	EnhancedAccessDays int       `json:"enhanced_access_days"`
	Capabilities       []string  `json:"capabilities"`
	SortOrder          int       `json:"sort_order"`
}

// --- Checkout DTOs ---

type CheckoutRequest struct {
	PlanSlug  string `json:"plan_slug" validate:"required"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name"`
	Email     string `json:"email" validate:"required,email"`
}

type StartTrialRequest struct {
	PlanSlug string `json:"plan_slug" validate:"required"`
}

type CheckoutResponse struct {
	SubscriptionId  uuid.UUID `json:"subscription_id"`
	OrderId         string    `json:"order_id"`
	SnapRedirectUrl string    `json:"snap_redirect_url"`
	SnapToken       string    `json:"snap_token"`
}

type MidtransWebhookRequest struct {
	TransactionStatus string `json:"transaction_status"`
	OrderId           string `json:"order_id"`
	FraudStatus       string `json:"fraud_status"`
	// Signature validation fields
	SignatureKey string `json:"signature_key"`
	StatusCode   string `json:"status_code"`
	GrossAmount  string `json:"gross_amount"`
}

// --- Subscription DTOs ---

type SubscriptionStatusResponse struct {
	Id                      uuid.UUID  `json:"id"`
	PlanSlug                string     `json:"plan_slug"`
	PlanName                string     `json:"plan_name"`
	Status                  string     `json:"status"`
	CurrentPeriodStart      time.Time  `json:"current_period_start"`
	CurrentPeriodEnd        time.Time  `json:"current_period_end"`
	EnhancedAccessExpiresAt *time.Time `json:"enhanced_access_expires_at,omitempty"`
	PastDueSince            *time.Time `json:"past_due_since,omitempty"`
	GraceDeadline           *time.Time `json:"grace_deadline,omitempty"`
	CancelRequested         bool       `json:"cancel_requested"`
	CanceledAt              *time.Time `json:"canceled_at,omitempty"`
}

type TransactionResponse struct {
	Id        uuid.UUID              `json:"id"`
	Amount    float64                `json:"amount"`
	Currency  string                 `json:"currency"`
	Status    string                 `json:"status"`
	Gateway   string                 `json:"gateway"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type BillingHistoryResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	Total        int64                 `json:"total"`
}
