// FILE: internal/model/plan_model.go
// GORM model for the plans (catalog) table
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Plan represents a subscription tier in the catalog. Seeded by cmd/seed,
// read-only at runtime.
type Plan struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name         string    `gorm:"type:varchar(255);not null"`
	Slug         string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	Tier         string    `gorm:"type:plan_tier;not null;index"`
	MonthlyPrice *float64  `gorm:"type:decimal(10,2)"` // NULL for free tier
	// Numeric limits, NULL = unlimited
	AiCoachDailyLimit  *int
	PortfolioItemLimit *int
	MissionsAccess     string `gorm:"type:missions_access;not null;default:'none'"`
	EnhancedAccessDays int    `gorm:"default:0"`
	// Capability keys, validated against the closed set on load
	Capabilities datatypes.JSON `gorm:"type:jsonb"`
	// Display Settings
	IsActive  bool      `gorm:"default:true"`
	SortOrder int       `gorm:"default:0"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Plan) TableName() string {
	return "plans"
}
