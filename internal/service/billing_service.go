// FILE: internal/service/billing_service.go
package service

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
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
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
)

var (
	ErrNoSubscription    = errors.New("no subscription found")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrTrialNotAvailable = errors.New("trial not available for this account")
)

type IBillingService interface {
	Checkout(ctx context.Context, userId uuid.UUID, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error)
	StartTrial(ctx context.Context, userId uuid.UUID, req *dto.StartTrialRequest) (*dto.SubscriptionStatusResponse, error)
	HandleGatewayNotification(ctx context.Context, req *dto.MidtransWebhookRequest) error
	GetSubscriptionStatus(ctx context.Context, userId uuid.UUID) (*dto.SubscriptionStatusResponse, error)
	GetBillingHistory(ctx context.Context, userId uuid.UUID, limit, offset int) (*dto.BillingHistoryResponse, error)
	CancelSubscription(ctx context.Context, userId uuid.UUID) error
}

type billingService struct {
	uowFactory       unitofwork.RepositoryFactory
	planService      IPlanService
	publisherService IPublisherService
	eventPublisher   *pktNats.Publisher
	cfg              *config.Config
	logger           logger.ILogger
}

func NewBillingService(
	uowFactory unitofwork.RepositoryFactory,
	planService IPlanService,
	publisherService IPublisherService,
	eventPublisher *pktNats.Publisher,
	cfg *config.Config,
	log logger.ILogger,
) IBillingService {
	return &billingService{
		uowFactory:       uowFactory,
		planService:      planService,
		publisherService: publisherService,
		eventPublisher:   eventPublisher,
		cfg:              cfg,
		logger:           log,
	}
}

// Checkout creates (or reuses) the user's subscription row in a pending
// state and opens a Midtrans Snap session for the first charge. The
// subscription only turns active when the webhook confirms settlement.
func (s *billingService) Checkout(ctx context.Context, userId uuid.UUID, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	plan, err := s.planService.GetPlanBySlug(ctx, req.PlanSlug)
	if err != nil {
		return nil, err
	}
	if plan.IsFree() {
		return nil, errors.New("free plan does not require checkout")
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)

	user, err := uow.UserRepository().FindOne(ctx, specification.ByID{ID: userId})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New("user not found")
	}

	now := time.Now().UTC()

	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	// One subscription per user. A checkout against an existing row retargets
	// it at the requested plan without touching its current entitlements.
	sub, err := uow.SubscriptionRepository().FindOne(ctx, specification.UserOwnedBy{UserID: userId})
	if err != nil {
		return nil, err
	}

	if sub == nil {
		sub = &entity.Subscription{
			Id:                 uuid.New(),
			UserId:             userId,
			PlanId:             plan.Id,
			Status:             entity.SubscriptionStatusCanceled,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   now,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := uow.SubscriptionRepository().Create(ctx, sub); err != nil {
			return nil, err
		}
	}

	// Order id carries both subscription identity and the target plan so the
	// webhook can finish activation without extra state.
	orderId := fmt.Sprintf("%s--%s--%d", sub.Id, plan.Slug, now.Unix())

	txn := &entity.PaymentTransaction{
		Id:              uuid.New(),
		UserId:          userId,
		SubscriptionId:  &sub.Id,
		Amount:          plan.Price(),
		Currency:        "USD",
		Status:          entity.TransactionStatusPending,
		GatewayProvider: "midtrans",
		Metadata: map[string]interface{}{
			entity.TxnMetaPlanSlug: plan.Slug,
			"order_id":             orderId,
		},
		ProcessedAt: now,
		CreatedAt:   now,
	}
	if err := uow.PaymentTransactionRepository().Create(ctx, txn); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	// -- Midtrans Logic (External Service calls outside DB tx, safe after commit) --
	var sClient snap.Client
	env := midtrans.Sandbox
	if s.cfg.Gateway.IsProduction {
		env = midtrans.Production
	}
	sClient.New(s.cfg.Gateway.ServerKey, env)

	finishRedirectURL := fmt.Sprintf("%s/app?payment=success", s.cfg.App.ClientURL)

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderId,
			GrossAmt: int64(plan.Price()),
		},
		CreditCard: &snap.CreditCardDetails{
			Secure: true,
		},
		Callbacks: &snap.Callbacks{
			Finish: finishRedirectURL,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.FirstName,
			LName: req.LastName,
			Email: req.Email,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    plan.Id.String(),
				Price: int64(plan.Price()),
				Qty:   1,
				Name:  plan.Name,
			},
		},
		EnabledPayments: snap.AllSnapPaymentType,
	}

	snapResp, midErr := sClient.CreateTransaction(snapReq)
	if midErr != nil {
		return nil, fmt.Errorf("midtrans error: %v", midErr.GetMessage())
	}

	s.logger.Info("billing", "Checkout session created", map[string]interface{}{
		"user_id":  userId,
		"plan":     plan.Slug,
		"order_id": orderId,
	})

	return &dto.CheckoutResponse{
		SubscriptionId:  sub.Id,
		OrderId:         orderId,
		SnapToken:       snapResp.Token,
		SnapRedirectUrl: snapResp.RedirectURL,
	}, nil
}

// StartTrial opens a time-boxed trial on a paid plan without a payment.
// One per account: any existing subscription row, whatever its state, means
// the user already had their trial or a paid plan.
func (s *billingService) StartTrial(ctx context.Context, userId uuid.UUID, req *dto.StartTrialRequest) (*dto.SubscriptionStatusResponse, error) {
	plan, err := s.planService.GetPlanBySlug(ctx, req.PlanSlug)
	if err != nil {
		return nil, err
	}
	if plan.IsFree() {
		return nil, errors.New("free plan does not require a trial")
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)

	existing, err := uow.SubscriptionRepository().FindOne(ctx, specification.UserOwnedBy{UserID: userId})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrTrialNotAvailable
	}

	now := time.Now().UTC()
	sub := &entity.Subscription{
		Id:                 uuid.New(),
		UserId:             userId,
		PlanId:             plan.Id,
		Status:             entity.SubscriptionStatusTrial,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 0, s.cfg.Billing.TrialDays),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := uow.SubscriptionRepository().Create(ctx, sub); err != nil {
		return nil, err
	}

	s.afterMutation(ctx, userId)
	s.publishEvent(ctx, events.TypeSubscriptionTrialStarted, sub, plan.Slug, map[string]interface{}{
		"trial_days": s.cfg.Billing.TrialDays,
	})

	s.logger.Info("billing", "Trial started", map[string]interface{}{
		"subscription_id": sub.Id,
		"user_id":         userId,
		"plan":            plan.Slug,
	})

	return &dto.SubscriptionStatusResponse{
		Id:                 sub.Id,
		PlanSlug:           plan.Slug,
		PlanName:           plan.Name,
		Status:             string(sub.Status),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
	}, nil
}

// HandleGatewayNotification processes a Midtrans webhook. Activation is a
// guarded transition, so gateway retries of the same settlement are no-ops.
func (s *billingService) HandleGatewayNotification(ctx context.Context, req *dto.MidtransWebhookRequest) error {
	if err := s.verifySignature(req); err != nil {
		s.logger.Warn("billing", "Webhook signature mismatch", map[string]interface{}{
			"order_id": req.OrderId,
		})
		return err
	}

	subId, planSlug, err := parseOrderId(req.OrderId)
	if err != nil {
		return err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)

	sub, err := uow.SubscriptionRepository().FindOne(ctx, specification.ByID{ID: subId})
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrNoSubscription
	}

	plan, err := s.planService.GetPlanBySlug(ctx, planSlug)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	switch req.TransactionStatus {
	case "capture", "settlement":
		return s.activate(ctx, uow, sub, plan, req, now)
	case "deny", "cancel", "expire":
		return s.recordFailure(ctx, uow, sub, plan, req, now)
	case "pending":
		s.logger.Info("billing", "Webhook payment pending", map[string]interface{}{
			"order_id": req.OrderId,
		})
		return nil
	default:
		s.logger.Warn("billing", "Webhook unknown transaction status", map[string]interface{}{
			"order_id": req.OrderId,
			"status":   req.TransactionStatus,
		})
		return nil
	}
}

// Midtrans signature = SHA512(order_id + status_code + gross_amount + server_key)
func (s *billingService) verifySignature(req *dto.MidtransWebhookRequest) error {
	if s.cfg.Gateway.ServerKey == "" {
		return errors.New("gateway server key not configured")
	}
	input := req.OrderId + req.StatusCode + req.GrossAmount + s.cfg.Gateway.ServerKey
	expected := fmt.Sprintf("%x", sha512.Sum512([]byte(input)))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(req.SignatureKey)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// parseOrderId splits "<subscription_id>--<plan_slug>--<timestamp>".
func parseOrderId(orderId string) (uuid.UUID, string, error) {
	parts := strings.Split(orderId, "--")
	if len(parts) != 3 {
		return uuid.Nil, "", fmt.Errorf("invalid order id format: %s", orderId)
	}
	subId, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid order id format: %s", orderId)
	}
	return subId, parts[1], nil
}

func (s *billingService) activate(
	ctx context.Context,
	uow unitofwork.UnitOfWork,
	sub *entity.Subscription,
	plan *entity.Plan,
	req *dto.MidtransWebhookRequest,
	now time.Time,
) error {
	periodEnd := now.AddDate(0, 0, s.cfg.Billing.RenewalPeriodDays)

	// Paying retargets the plan and grants the promotional window.
	var enhancedExpiry *time.Time
	if plan.EnhancedAccessDays > 0 {
		expiry := now.AddDate(0, 0, plan.EnhancedAccessDays)
		enhancedExpiry = &expiry
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	changed, err := uow.SubscriptionRepository().MarkActive(ctx, sub.Id, plan.Id, req.OrderId, now, periodEnd, enhancedExpiry)
	if err != nil {
		return err
	}

	if changed {
		txn := &entity.PaymentTransaction{
			Id:                   uuid.New(),
			UserId:               sub.UserId,
			SubscriptionId:       &sub.Id,
			Amount:               plan.Price(),
			Currency:             "USD",
			Status:               entity.TransactionStatusCompleted,
			GatewayProvider:      "midtrans",
			GatewayTransactionId: &req.OrderId,
			Metadata: map[string]interface{}{
				entity.TxnMetaPlanSlug: plan.Slug,
				entity.TxnMetaReason:   "checkout_settlement",
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

	if !changed {
		s.logger.Info("billing", "Webhook settlement already applied", map[string]interface{}{
			"subscription_id": sub.Id,
		})
		return nil
	}

	s.afterMutation(ctx, sub.UserId)
	s.publishEvent(ctx, events.TypeSubscriptionActivated, sub, plan.Slug, nil)

	s.logger.Info("billing", "Subscription activated", map[string]interface{}{
		"subscription_id": sub.Id,
		"user_id":         sub.UserId,
		"plan":            plan.Slug,
	})
	return nil
}

func (s *billingService) recordFailure(
	ctx context.Context,
	uow unitofwork.UnitOfWork,
	sub *entity.Subscription,
	plan *entity.Plan,
	req *dto.MidtransWebhookRequest,
	now time.Time,
) error {
	txn := &entity.PaymentTransaction{
		Id:                   uuid.New(),
		UserId:               sub.UserId,
		SubscriptionId:       &sub.Id,
		Amount:               plan.Price(),
		Currency:             "USD",
		Status:               entity.TransactionStatusFailed,
		GatewayProvider:      "midtrans",
		GatewayTransactionId: &req.OrderId,
		Metadata: map[string]interface{}{
			entity.TxnMetaPlanSlug: plan.Slug,
			entity.TxnMetaReason:   "gateway_" + req.TransactionStatus,
		},
		ProcessedAt: now,
		CreatedAt:   now,
	}
	if err := uow.PaymentTransactionRepository().Create(ctx, txn); err != nil {
		return err
	}

	// A failed charge against a live paid subscription starts the dunning
	// clock. A failed first checkout leaves the row untouched.
	if sub.HasPaidAccess() {
		changed, err := uow.SubscriptionRepository().MarkPastDue(ctx, sub.Id, now)
		if err != nil {
			return err
		}
		if changed {
			s.afterMutation(ctx, sub.UserId)
			s.publishEvent(ctx, events.TypeSubscriptionPastDue, sub, plan.Slug, map[string]interface{}{
				"grace_days": s.cfg.Billing.GracePeriodDays,
			})
		}
	}

	s.logger.Warn("billing", "Gateway payment failed", map[string]interface{}{
		"subscription_id": sub.Id,
		"status":          req.TransactionStatus,
	})
	return nil
}

func (s *billingService) GetSubscriptionStatus(ctx context.Context, userId uuid.UUID) (*dto.SubscriptionStatusResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	sub, err := uow.SubscriptionRepository().FindOne(ctx, specification.UserOwnedBy{UserID: userId})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNoSubscription
	}

	plan, err := uow.PlanRepository().FindOne(ctx, specification.ByID{ID: sub.PlanId})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, errors.New("plan not found for subscription")
	}

	res := &dto.SubscriptionStatusResponse{
		Id:                      sub.Id,
		PlanSlug:                plan.Slug,
		PlanName:                plan.Name,
		Status:                  string(sub.Status),
		CurrentPeriodStart:      sub.CurrentPeriodStart,
		CurrentPeriodEnd:        sub.CurrentPeriodEnd,
		EnhancedAccessExpiresAt: sub.EnhancedAccessExpiresAt,
		PastDueSince:            sub.PastDueSince,
		CancelRequested:         sub.CancelRequested,
		CanceledAt:              sub.CanceledAt,
	}
	if sub.Status == entity.SubscriptionStatusPastDue {
		deadline := sub.GraceDeadline(s.cfg.Billing.GracePeriodDays)
		res.GraceDeadline = &deadline
	}
	return res, nil
}

func (s *billingService) GetBillingHistory(ctx context.Context, userId uuid.UUID, limit, offset int) (*dto.BillingHistoryResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)

	total, err := uow.PaymentTransactionRepository().Count(ctx, specification.UserOwnedBy{UserID: userId})
	if err != nil {
		return nil, err
	}

	txns, err := uow.PaymentTransactionRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit, Offset: offset},
	)
	if err != nil {
		return nil, err
	}

	res := &dto.BillingHistoryResponse{Total: total}
	for _, t := range txns {
		res.Transactions = append(res.Transactions, dto.TransactionResponse{
			Id:        t.Id,
			Amount:    t.Amount,
			Currency:  t.Currency,
			Status:    string(t.Status),
			Gateway:   t.GatewayProvider,
			Metadata:  t.Metadata,
			CreatedAt: t.CreatedAt,
		})
	}
	return res, nil
}

// CancelSubscription cancels immediately: entitlement resolution treats
// canceled as free from the next read. The scheduler later re-points the
// stored plan reference once the paid-for period has run out.
func (s *billingService) CancelSubscription(ctx context.Context, userId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	sub, err := uow.SubscriptionRepository().FindOne(ctx, specification.UserOwnedBy{UserID: userId})
	if err != nil {
		return err
	}
	if sub == nil || !sub.HasPaidAccess() {
		return ErrNoSubscription
	}

	now := time.Now().UTC()
	sub.Status = entity.SubscriptionStatusCanceled
	sub.CancelRequested = true
	sub.CanceledAt = &now
	sub.UpdatedAt = now

	if err := uow.SubscriptionRepository().Update(ctx, sub); err != nil {
		return err
	}

	s.afterMutation(ctx, userId)
	s.publishEvent(ctx, events.TypeSubscriptionCanceled, sub, "", nil)

	s.logger.Info("billing", "Subscription canceled by user", map[string]interface{}{
		"subscription_id": sub.Id,
		"user_id":         userId,
	})
	return nil
}

// afterMutation fans out cache invalidation over the in-process bus.
func (s *billingService) afterMutation(ctx context.Context, userId uuid.UUID) {
	if s.publisherService == nil {
		return
	}
	payload, _ := json.Marshal(dto.InvalidateEntitlementMessage{UserId: userId})
	if err := s.publisherService.Publish(ctx, payload); err != nil {
		s.logger.Warn("billing", "Failed to publish invalidation", map[string]interface{}{
			"user_id": userId,
			"error":   err.Error(),
		})
	}
}

func (s *billingService) publishEvent(ctx context.Context, eventType string, sub *entity.Subscription, planSlug string, extra map[string]interface{}) {
	if s.eventPublisher == nil {
		return
	}
	evt := events.NewSubscriptionEvent(eventType, sub.UserId.String(), sub.Id.String(), planSlug, extra)
	if err := s.eventPublisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("billing", "Failed to publish event", map[string]interface{}{
			"type":  eventType,
			"error": err.Error(),
		})
	}
}
