package unitofwork

import (
	"context"

	"cyberrange-billing-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	UserRepository() contract.UserRepository
	PlanRepository() contract.PlanRepository
	SubscriptionRepository() contract.SubscriptionRepository
	PaymentTransactionRepository() contract.PaymentTransactionRepository
}
