package mapper

import (
	"cyberrange-billing-be/internal/entity"
	"cyberrange-billing-be/internal/model"
)

type SubscriptionMapper struct{}

func NewSubscriptionMapper() *SubscriptionMapper {
	return &SubscriptionMapper{}
}

func (m *SubscriptionMapper) ToEntity(s *model.Subscription) *entity.Subscription {
	if s == nil {
		return nil
	}
	return &entity.Subscription{
		Id:                      s.Id,
		UserId:                  s.UserId,
		PlanId:                  s.PlanId,
		Status:                  entity.SubscriptionStatus(s.Status),
		CurrentPeriodStart:      s.CurrentPeriodStart,
		CurrentPeriodEnd:        s.CurrentPeriodEnd,
		EnhancedAccessExpiresAt: s.EnhancedAccessExpiresAt,
		PastDueSince:            s.PastDueSince,
		CancelRequested:         s.CancelRequested,
		CanceledAt:              s.CanceledAt,
		GatewayTransactionId:    s.GatewayTransactionId,
		CreatedAt:               s.CreatedAt,
		UpdatedAt:               s.UpdatedAt,
	}
}

func (m *SubscriptionMapper) ToModel(s *entity.Subscription) *model.Subscription {
	if s == nil {
		return nil
	}
	return &model.Subscription{
		Id:                      s.Id,
		UserId:                  s.UserId,
		PlanId:                  s.PlanId,
		Status:                  string(s.Status),
		CurrentPeriodStart:      s.CurrentPeriodStart,
		CurrentPeriodEnd:        s.CurrentPeriodEnd,
		EnhancedAccessExpiresAt: s.EnhancedAccessExpiresAt,
		PastDueSince:            s.PastDueSince,
		CancelRequested:         s.CancelRequested,
		CanceledAt:              s.CanceledAt,
		GatewayTransactionId:    s.GatewayTransactionId,
		CreatedAt:               s.CreatedAt,
		UpdatedAt:               s.UpdatedAt,
	}
}
