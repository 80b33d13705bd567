// FILE: internal/entity/payment_entity.go
package entity

import (
	"time"

	"github.com/google/uuid"
)

type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusPending   TransactionStatus = "pending"
)

// Metadata keys recorded on every transaction.
const (
	TxnMetaSimulated = "simulated"
	TxnMetaReason    = "reason"
	TxnMetaPlanSlug  = "plan_slug"
)

// PaymentTransaction is one row of the append-only billing ledger. Rows are
// never mutated after creation; corrections are new entries.
type PaymentTransaction struct {
	Id                   uuid.UUID
	UserId               uuid.UUID
	SubscriptionId       *uuid.UUID
	Amount               float64
	Currency             string
	Status               TransactionStatus
	GatewayProvider      string
	GatewayTransactionId *string
	Metadata             map[string]interface{}
	ProcessedAt          time.Time
	CreatedAt            time.Time
}

// Simulated reports whether this ledger entry was produced by the renewal
// simulator rather than a real gateway charge.
func (t *PaymentTransaction) Simulated() bool {
	v, ok := t.Metadata[TxnMetaSimulated]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
