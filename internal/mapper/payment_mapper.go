package mapper

import (
	"cyberrange-billing-be/internal/entity"
	"cyberrange-billing-be/internal/model"

	"gorm.io/datatypes"
)

type PaymentMapper struct{}

func NewPaymentMapper() *PaymentMapper {
	return &PaymentMapper{}
}

func (m *PaymentMapper) ToEntity(t *model.PaymentTransaction) *entity.PaymentTransaction {
	if t == nil {
		return nil
	}
	return &entity.PaymentTransaction{
		Id:                   t.Id,
		UserId:               t.UserId,
		SubscriptionId:       t.SubscriptionId,
		Amount:               t.Amount,
		Currency:             t.Currency,
		Status:               entity.TransactionStatus(t.Status),
		GatewayProvider:      t.GatewayProvider,
		GatewayTransactionId: t.GatewayTransactionId,
		Metadata:             map[string]interface{}(t.Metadata),
		ProcessedAt:          t.ProcessedAt,
		CreatedAt:            t.CreatedAt,
	}
}

func (m *PaymentMapper) ToModel(t *entity.PaymentTransaction) *model.PaymentTransaction {
	if t == nil {
		return nil
	}
	return &model.PaymentTransaction{
		Id:                   t.Id,
		UserId:               t.UserId,
		SubscriptionId:       t.SubscriptionId,
		Amount:               t.Amount,
		Currency:             t.Currency,
		Status:               string(t.Status),
		GatewayProvider:      t.GatewayProvider,
		GatewayTransactionId: t.GatewayTransactionId,
		Metadata:             datatypes.JSONMap(t.Metadata),
		ProcessedAt:          t.ProcessedAt,
		CreatedAt:            t.CreatedAt,
	}
}
