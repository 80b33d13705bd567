package contract

import (
	"context"

	"cyberrange-billing-be/internal/entity"
	"cyberrange-billing-be/internal/repository/specification"
)

// PaymentTransactionRepository is append-only: the ledger has no update or
// delete path. Corrections are new entries.
type PaymentTransactionRepository interface {
	Create(ctx context.Context, txn *entity.PaymentTransaction) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.PaymentTransaction, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
