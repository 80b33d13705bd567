// FILE: internal/model/payment_transaction_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PaymentTransaction rows form an append-only ledger; no update path exists
// in the repository.
type PaymentTransaction struct {
	Id                   uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId               uuid.UUID         `gorm:"type:uuid;not null;index"`
	SubscriptionId       *uuid.UUID        `gorm:"type:uuid;index"`
	Amount               float64           `gorm:"type:decimal(10,2);not null"`
	Currency             string            `gorm:"type:varchar(10);not null;default:'USD'"`
	Status               string            `gorm:"type:transaction_status;not null"`
	GatewayProvider      string            `gorm:"type:varchar(100)"`
	GatewayTransactionId *string           `gorm:"type:varchar(255)"`
	Metadata             datatypes.JSONMap `gorm:"type:jsonb"`
	ProcessedAt          time.Time         `gorm:"not null"`
	CreatedAt            time.Time         `gorm:"autoCreateTime"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}
