// FILE: internal/service/enforcement_service.go
// The two scheduled billing jobs. Both are idempotent: eligibility is
// re-checked inside each guarded UPDATE, so running a job twice in the same
// window changes nothing the second time.
package service

import (
	"context"
	"encoding/json"
	"time"

	"cyberrange-billing-be/internal/config"
	"cyberrange-billing-be/internal/dto"
	"cyberrange-billing-be/internal/entity"
	"cyberrange-billing-be/internal/pkg/logger"
	"cyberrange-billing-be/internal/repository/specification"
	"cyberrange-billing-be/internal/repository/unitofwork"
	"cyberrange-billing-be/pkg/events"
	pktNats "cyberrange-billing-be/pkg/nats" // Renamed to avoid collision

	"github.com/google/uuid"
)

const enforcementMaxRetries = 3

type IEnforcementService interface {
	// EnforceGracePeriodAndDowngrade cancels past_due subscriptions whose
	// grace window ran out and drops elapsed canceled subscriptions to the
	// free plan.
	EnforceGracePeriodAndDowngrade(ctx context.Context) error

	// RenewActiveSubscriptions rolls the billing period forward for active
	// subscriptions whose period elapsed, recording a simulated charge.
	RenewActiveSubscriptions(ctx context.Context) error
}

type enforcementService struct {
	uowFactory         unitofwork.RepositoryFactory
	planService        IPlanService
	publisherService   IPublisherService
	eventPublisher     *pktNats.Publisher
	entitlementService IEntitlementService
	cfg                *config.Config
	logger             logger.ILogger
}

func NewEnforcementService(
	uowFactory unitofwork.RepositoryFactory,
	planService IPlanService,
	publisherService IPublisherService,
	eventPublisher *pktNats.Publisher,
	entitlementService IEntitlementService,
	cfg *config.Config,
	log logger.ILogger,
) IEnforcementService {
	return &enforcementService{
		uowFactory:         uowFactory,
		planService:        planService,
		publisherService:   publisherService,
		eventPublisher:     eventPublisher,
		entitlementService: entitlementService,
		cfg:                cfg,
		logger:             log,
	}
}

func (s *enforcementService) EnforceGracePeriodAndDowngrade(ctx context.Context) error {
	// A missing free plan is a configuration error. Abort this run; the next
	// tick retries with whatever the catalog holds then.
	freePlan, err := s.planService.GetFreePlan(ctx)
	if err != nil {
		s.logger.Error("enforcement", "Aborting run, free plan unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	now := time.Now().UTC()

	if err := s.downgradeExpiredGrace(ctx, freePlan, now); err != nil {
		return err
	}
	if err := s.expireElapsedTrials(ctx, freePlan, now); err != nil {
		return err
	}
	return s.dropElapsedCanceled(ctx, freePlan, now)
}

// downgradeExpiredGrace handles past_due rows whose grace clock ran out.
func (s *enforcementService) downgradeExpiredGrace(ctx context.Context, freePlan *entity.Plan, now time.Time) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	cutoff := now.AddDate(0, 0, -s.cfg.Billing.GracePeriodDays)
	candidates, err := uow.SubscriptionRepository().FindAll(ctx,
		specification.StatusIs{Status: string(entity.SubscriptionStatusPastDue)},
		specification.GraceElapsedBy{Cutoff: cutoff},
	)
	if err != nil {
		return err
	}

	processed, failed := 0, 0
	for _, sub := range candidates {
		// Per-record isolation: one bad row never stalls the batch.
		if err := s.withRetry(func() error {
			return s.applyGraceDowngrade(ctx, sub, freePlan, now)
		}); err != nil {
			failed++
			s.logger.Error("enforcement", "Grace downgrade failed", map[string]interface{}{
				"subscription_id": sub.Id,
				"error":           err.Error(),
			})
			continue
		}
		processed++
	}

	s.logger.Info("enforcement", "Grace downgrade sweep finished", map[string]interface{}{
		"candidates": len(candidates),
		"processed":  processed,
		"failed":     failed,
	})
	return nil
}

func (s *enforcementService) applyGraceDowngrade(ctx context.Context, sub *entity.Subscription, freePlan *entity.Plan, now time.Time) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	changed, err := uow.SubscriptionRepository().ApplyGraceDowngrade(ctx, sub.Id, freePlan.Id, now)
	if err != nil {
		return err
	}

	if changed {
		// Ledger the downgrade with a zero-amount marker entry.
		txn := &entity.PaymentTransaction{
			Id:              uuid.New(),
			UserId:          sub.UserId,
			SubscriptionId:  &sub.Id,
			Amount:          0,
			Currency:        "USD",
			Status:          entity.TransactionStatusFailed,
			GatewayProvider: "system",
			Metadata: map[string]interface{}{
				entity.TxnMetaSimulated: true,
				entity.TxnMetaReason:    "grace_period_expired",
				entity.TxnMetaPlanSlug:  freePlan.Slug,
			},
			ProcessedAt: now,
			CreatedAt:   now,
		}
		if err := uow.PaymentTransactionRepository().Create(ctx, txn); err != nil {
			return err
		}
	}

	if err := uow.Commit(); err != nil {
		return err
	}

	if changed {
		s.afterMutation(ctx, sub.UserId)
		s.publishEvent(ctx, events.TypeSubscriptionDowngraded, sub, freePlan.Slug, map[string]interface{}{
			"reason": "grace_period_expired",
		})
	}
	return nil
}

// expireElapsedTrials drops trials whose window ran out without a payment.
// No ledger entry: nothing was charged or owed.
func (s *enforcementService) expireElapsedTrials(ctx context.Context, freePlan *entity.Plan, now time.Time) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	candidates, err := uow.SubscriptionRepository().FindAll(ctx,
		specification.StatusIs{Status: string(entity.SubscriptionStatusTrial)},
		specification.PeriodEndedBy{Now: now},
	)
	if err != nil {
		return err
	}

	processed, failed := 0, 0
	for _, sub := range candidates {
		if err := s.withRetry(func() error {
			changed, terr := uow.SubscriptionRepository().ApplyTrialExpiry(ctx, sub.Id, freePlan.Id, now)
			if terr != nil {
				return terr
			}
			if changed {
				s.afterMutation(ctx, sub.UserId)
				s.publishEvent(ctx, events.TypeSubscriptionDowngraded, sub, freePlan.Slug, map[string]interface{}{
					"reason": "trial_expired",
				})
			}
			return nil
		}); err != nil {
			failed++
			s.logger.Error("enforcement", "Trial expiry failed", map[string]interface{}{
				"subscription_id": sub.Id,
				"error":           err.Error(),
			})
			continue
		}
		processed++
	}

	s.logger.Info("enforcement", "Trial expiry sweep finished", map[string]interface{}{
		"candidates": len(candidates),
		"processed":  processed,
		"failed":     failed,
	})
	return nil
}

// dropElapsedCanceled retargets canceled subscriptions at the free plan once
// the period the user already paid for has run out. Entitlement resolution
// already treats canceled as free; this is the bookkeeping that makes the
// stored plan reference agree.
func (s *enforcementService) dropElapsedCanceled(ctx context.Context, freePlan *entity.Plan, now time.Time) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	candidates, err := uow.SubscriptionRepository().FindAll(ctx,
		specification.StatusIs{Status: string(entity.SubscriptionStatusCanceled)},
		specification.PlanIsNot{PlanID: freePlan.Id},
		specification.PeriodEndedBy{Now: now},
	)
	if err != nil {
		return err
	}

	processed, failed := 0, 0
	for _, sub := range candidates {
		if err := s.withRetry(func() error {
			changed, derr := uow.SubscriptionRepository().ApplyPlanDrop(ctx, sub.Id, freePlan.Id, now)
			if derr != nil {
				return derr
			}
			if changed {
				s.afterMutation(ctx, sub.UserId)
			}
			return nil
		}); err != nil {
			failed++
			s.logger.Error("enforcement", "Plan drop failed", map[string]interface{}{
				"subscription_id": sub.Id,
				"error":           err.Error(),
			})
			continue
		}
		processed++
	}

	s.logger.Info("enforcement", "Plan drop sweep finished", map[string]interface{}{
		"candidates": len(candidates),
		"processed":  processed,
		"failed":     failed,
	})
	return nil
}

func (s *enforcementService) RenewActiveSubscriptions(ctx context.Context) error {
	now := time.Now().UTC()
	uow := s.uowFactory.NewUnitOfWork(ctx)

	// Free-tier rows never renew: only paid plans carry a billing period.
	freePlan, err := s.planService.GetFreePlan(ctx)
	if err != nil {
		s.logger.Error("enforcement", "Aborting renewal run, free plan unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	candidates, err := uow.SubscriptionRepository().FindAll(ctx,
		specification.StatusIs{Status: string(entity.SubscriptionStatusActive)},
		specification.PlanIsNot{PlanID: freePlan.Id},
		specification.PeriodEndedBy{Now: now},
	)
	if err != nil {
		return err
	}

	processed, failed := 0, 0
	for _, sub := range candidates {
		if err := s.withRetry(func() error {
			return s.renewOne(ctx, sub, now)
		}); err != nil {
			failed++
			s.logger.Error("enforcement", "Renewal failed", map[string]interface{}{
				"subscription_id": sub.Id,
				"error":           err.Error(),
			})
			continue
		}
		processed++
	}

	s.logger.Info("enforcement", "Renewal sweep finished", map[string]interface{}{
		"candidates": len(candidates),
		"processed":  processed,
		"failed":     failed,
	})
	return nil
}

func (s *enforcementService) renewOne(ctx context.Context, sub *entity.Subscription, now time.Time) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	plan, err := uow.PlanRepository().FindOne(ctx, specification.ByID{ID: sub.PlanId})
	if err != nil {
		return err
	}
	if plan == nil || plan.IsFree() {
		return nil
	}

	periodEnd := now.AddDate(0, 0, s.cfg.Billing.RenewalPeriodDays)

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	changed, err := uow.SubscriptionRepository().ApplyRenewal(ctx, sub.Id, now, periodEnd)
	if err != nil {
		return err
	}

	if changed {
		// Charging is simulated: the ledger gets a completed entry at the
		// plan's price, flagged so reporting can tell it from gateway money.
		txn := &entity.PaymentTransaction{
			Id:              uuid.New(),
			UserId:          sub.UserId,
			SubscriptionId:  &sub.Id,
			Amount:          plan.Price(),
			Currency:        "USD",
			Status:          entity.TransactionStatusCompleted,
			GatewayProvider: "system",
			Metadata: map[string]interface{}{
				entity.TxnMetaSimulated: true,
				entity.TxnMetaReason:    "scheduled_renewal",
				entity.TxnMetaPlanSlug:  plan.Slug,
			},
			ProcessedAt: now,
			CreatedAt:   now,
		}
		if err := uow.PaymentTransactionRepository().Create(ctx, txn); err != nil {
			return err
		}
	}

	if err := uow.Commit(); err != nil {
		return err
	}

	if changed {
		s.afterMutation(ctx, sub.UserId)
		s.publishEvent(ctx, events.TypeSubscriptionRenewed, sub, plan.Slug, map[string]interface{}{
			"amount":     plan.Price(),
			"period_end": periodEnd.Format(time.RFC3339),
		})
	}
	return nil
}

func (s *enforcementService) withRetry(fn func() error) error {
	var err error
	for attempt := 1; attempt <= enforcementMaxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return err
}

func (s *enforcementService) afterMutation(ctx context.Context, userId uuid.UUID) {
	if s.entitlementService != nil {
		s.entitlementService.InvalidateUser(userId)
	}
	if s.publisherService == nil {
		return
	}
	payload, _ := json.Marshal(dto.InvalidateEntitlementMessage{UserId: userId})
	if err := s.publisherService.Publish(ctx, payload); err != nil {
		s.logger.Warn("enforcement", "Failed to publish invalidation", map[string]interface{}{
			"user_id": userId,
			"error":   err.Error(),
		})
	}
}

func (s *enforcementService) publishEvent(ctx context.Context, eventType string, sub *entity.Subscription, planSlug string, extra map[string]interface{}) {
	if s.eventPublisher == nil {
		return
	}
	evt := events.NewSubscriptionEvent(eventType, sub.UserId.String(), sub.Id.String(), planSlug, extra)
	if err := s.eventPublisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("enforcement", "Failed to publish event", map[string]interface{}{
			"type":  eventType,
			"error": err.Error(),
		})
	}
}
