package implementation

import (
	"context"
	"errors"
	"time"

	"cyberrange-billing-be/internal/entity"
	"cyberrange-billing-be/internal/mapper"
	"cyberrange-billing-be/internal/model"
	"cyberrange-billing-be/internal/repository/contract"
	"cyberrange-billing-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubscriptionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.SubscriptionMapper
}

func NewSubscriptionRepository(db *gorm.DB) contract.SubscriptionRepository {
	return &SubscriptionRepositoryImpl{
		db:     db,
		mapper: mapper.NewSubscriptionMapper(),
	}
}

func (r *SubscriptionRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *SubscriptionRepositoryImpl) Create(ctx context.Context, subscription *entity.Subscription) error {
	m := r.mapper.ToModel(subscription)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*subscription = *r.mapper.ToEntity(m)
	return nil
}

func (r *SubscriptionRepositoryImpl) Update(ctx context.Context, subscription *entity.Subscription) error {
	m := r.mapper.ToModel(subscription)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*subscription = *r.mapper.ToEntity(m)
	return nil
}

func (r *SubscriptionRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Subscription, error) {
	var m model.Subscription
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *SubscriptionRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Subscription, error) {
	var models []*model.Subscription
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.Subscription, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}

// Guarded transition implementations. Every UPDATE re-checks eligibility in
// its WHERE clause so the write is atomic with respect to concurrent job runs
// and webhook mutations touching the same row.

func (r *SubscriptionRepositoryImpl) MarkPastDue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ? AND status IN ?", id, []string{
			string(entity.SubscriptionStatusTrial),
			string(entity.SubscriptionStatusActive),
		}).
		Updates(map[string]interface{}{
			"status":         string(entity.SubscriptionStatusPastDue),
			"past_due_since": now,
			"updated_at":     now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *SubscriptionRepositoryImpl) MarkActive(ctx context.Context, id uuid.UUID, planId uuid.UUID, orderId string, periodStart, periodEnd time.Time, enhancedExpiry *time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ? AND (gateway_transaction_id IS NULL OR gateway_transaction_id <> ?)", id, orderId).
		Updates(map[string]interface{}{
			"plan_id":                    planId,
			"status":                     string(entity.SubscriptionStatusActive),
			"current_period_start":       periodStart,
			"current_period_end":         periodEnd,
			"enhanced_access_expires_at": enhancedExpiry,
			"past_due_since":             nil,
			"cancel_requested":           false,
			"canceled_at":                nil,
			"gateway_transaction_id":     orderId,
			"updated_at":                 periodStart,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *SubscriptionRepositoryImpl) ApplyGraceDowngrade(ctx context.Context, id uuid.UUID, freePlanId uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ? AND status = ?", id, string(entity.SubscriptionStatusPastDue)).
		Updates(map[string]interface{}{
			"plan_id":                    freePlanId,
			"status":                     string(entity.SubscriptionStatusCanceled),
			"enhanced_access_expires_at": nil,
			"past_due_since":             nil,
			"canceled_at":                now,
			"updated_at":                 now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *SubscriptionRepositoryImpl) ApplyPlanDrop(ctx context.Context, id uuid.UUID, freePlanId uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ? AND status = ? AND plan_id <> ? AND current_period_end <= ?",
			id, string(entity.SubscriptionStatusCanceled), freePlanId, now).
		Updates(map[string]interface{}{
			"plan_id":                    freePlanId,
			"enhanced_access_expires_at": nil,
			"updated_at":                 now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *SubscriptionRepositoryImpl) ApplyRenewal(ctx context.Context, id uuid.UUID, periodStart, periodEnd time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ? AND status = ? AND current_period_end <= ?",
			id, string(entity.SubscriptionStatusActive), periodStart).
		Updates(map[string]interface{}{
			"current_period_start": periodStart,
			"current_period_end":   periodEnd,
			"updated_at":           periodStart,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *SubscriptionRepositoryImpl) ApplyTrialExpiry(ctx context.Context, id uuid.UUID, freePlanId uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ? AND status = ? AND current_period_end <= ?",
			id, string(entity.SubscriptionStatusTrial), now).
		Updates(map[string]interface{}{
			"plan_id":                    freePlanId,
			"status":                     string(entity.SubscriptionStatusCanceled),
			"enhanced_access_expires_at": nil,
			"canceled_at":                now,
			"updated_at":                 now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *SubscriptionRepositoryImpl) CountByStatus(ctx context.Context, status entity.SubscriptionStatus) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("status = ?", string(status)).
		Count(&count).Error
	return int(count), err
}
