// FILE: internal/model/subscription_model.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type Subscription struct {
	Id                      uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId                  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"` // exactly one per user
	PlanId                  uuid.UUID `gorm:"type:uuid;not null;index"`
	Status                  string    `gorm:"type:subscription_status;not null;index"`
	CurrentPeriodStart      time.Time `gorm:"not null"`
	CurrentPeriodEnd        time.Time `gorm:"not null;index"`
	EnhancedAccessExpiresAt *time.Time
	PastDueSince            *time.Time `gorm:"index"`
	CancelRequested         bool       `gorm:"default:false"`
	CanceledAt              *time.Time
	GatewayTransactionId    *string   `gorm:"type:varchar(255)"`
	CreatedAt               time.Time `gorm:"autoCreateTime"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
