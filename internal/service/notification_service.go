package service

import (
	"context"
	"fmt"

	"cyberrange-billing-be/internal/pkg/logger"
	"cyberrange-billing-be/internal/pkg/mailer"
	"cyberrange-billing-be/internal/repository/specification"
	"cyberrange-billing-be/internal/repository/unitofwork"
	"cyberrange-billing-be/pkg/events"
	pktNats "cyberrange-billing-be/pkg/nats" // Renamed to avoid collision

	"github.com/google/uuid"
)

// NotificationService turns billing lifecycle events into dunning emails.
// It consumes the BILLING stream with a durable consumer so a restart never
// drops a notice.
type NotificationService struct {
	uowFactory unitofwork.RepositoryFactory
	subscriber *pktNats.Subscriber
	mailer     mailer.IEmailService
	logger     logger.ILogger
}

func NewNotificationService(
	uowFactory unitofwork.RepositoryFactory,
	sub *pktNats.Subscriber,
	email mailer.IEmailService,
	log logger.ILogger,
) *NotificationService {
	return &NotificationService{
		uowFactory: uowFactory,
		subscriber: sub,
		mailer:     email,
		logger:     log,
	}
}

// Start begins listening to the event bus.
func (s *NotificationService) Start() {
	if s.subscriber == nil {
		s.logger.Warn("NotificationService", "No NATS connection, dunning mail disabled", nil)
		return
	}
	err := s.subscriber.Subscribe("billing.>", "billing-dunning", s.handleEvent)
	if err != nil {
		s.logger.Error("NotificationService", "Failed to start billing subscriber", map[string]interface{}{"error": err})
		return
	}
	s.logger.Info("NotificationService", "Notification service started, listening to billing.>", nil)
}

func (s *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	switch event.EventType() {
	case events.TypeSubscriptionPastDue, events.TypeSubscriptionDowngraded:
	default:
		// Only dunning-relevant events produce mail.
		return nil
	}

	payload := event.Payload()
	userIdStr, _ := payload["user_id"].(string)
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		s.logger.Warn("NotificationService", "Event without valid user_id", map[string]interface{}{
			"type": event.EventType(),
		})
		return nil
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	user, err := uow.UserRepository().FindOne(ctx, specification.ByID{ID: userId})
	if err != nil {
		return err // NATS will retry
	}
	if user == nil {
		s.logger.Warn("NotificationService", "User not found for billing event", map[string]interface{}{
			"user_id": userIdStr,
		})
		return nil
	}

	planSlug, _ := payload["plan_slug"].(string)

	switch event.EventType() {
	case events.TypeSubscriptionPastDue:
		graceDays := 0
		if v, ok := payload["grace_days"].(float64); ok {
			graceDays = int(v)
		}
		if err := s.mailer.SendPastDueNotice(user.Email, planSlug, graceDays); err != nil {
			return fmt.Errorf("failed to send past due notice: %w", err)
		}
	case events.TypeSubscriptionDowngraded:
		if err := s.mailer.SendDowngradeNotice(user.Email, planSlug); err != nil {
			return fmt.Errorf("failed to send downgrade notice: %w", err)
		}
	}

	s.logger.Info("NotificationService", "Dunning mail sent", map[string]interface{}{
		"type":    event.EventType(),
		"user_id": userIdStr,
	})
	return nil
}
