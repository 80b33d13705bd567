package bootstrap

import (
	"context"
	"log"
	"time"

	"cyberrange-billing-be/internal/config"
	"cyberrange-billing-be/internal/controller"
	"cyberrange-billing-be/internal/pkg/logger"
	"cyberrange-billing-be/internal/pkg/mailer"
	"cyberrange-billing-be/internal/repository/unitofwork"
	"cyberrange-billing-be/internal/service"
	"cyberrange-billing-be/pkg/scheduler"
	"cyberrange-billing-be/pkg/usage"

	pktNats "cyberrange-billing-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Topic for the in-process invalidation bus.
const invalidateEntitlementTopic = "INVALIDATE_ENTITLEMENT"

// Names of the registered enforcement jobs.
const (
	JobEnforceGracePeriod = "enforce-grace-period"
	JobRenewSubscriptions = "renew-subscriptions"
)

type Container struct {
	// Controllers
	PlanController        controller.IPlanController
	BillingController     controller.IBillingController
	EntitlementController controller.IEntitlementController

	// Background Services (Exposed for main.go to run)
	ConsumerService     service.IConsumerService
	NotificationService *service.NotificationService
	Scheduler           *scheduler.Scheduler

	Logger logger.ILogger
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	emailService := mailer.NewEmailService(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Email,
		cfg.SMTP.Password,
		cfg.SMTP.SenderName,
	)

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 2.5 Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	usageTracker := usage.NewTracker(rdb)

	// Caches. Plan catalog and entitlement resolutions have very different
	// lifetimes, so they get separate stores.
	planCache := gocache.New(5*time.Minute, 10*time.Minute)
	entitlementCache := gocache.New(cfg.Billing.EntitlementTTL, 2*cfg.Billing.EntitlementTTL)

	// 3. Services
	publisherService := service.NewPublisherService(pubSub, invalidateEntitlementTopic)

	planService := service.NewPlanService(uowFactory, planCache)
	entitlementService := service.NewEntitlementService(
		uowFactory,
		planService,
		entitlementCache,
		cfg.Billing.EntitlementTTL,
		usageTracker,
	)
	billingService := service.NewBillingService(
		uowFactory,
		planService,
		publisherService,
		natsPub,
		cfg,
		sysLogger,
	)
	enforcementService := service.NewEnforcementService(
		uowFactory,
		planService,
		publisherService,
		natsPub,
		entitlementService,
		cfg,
		sysLogger,
	)

	consumerService := service.NewConsumerService(
		pubSub,
		invalidateEntitlementTopic,
		entitlementService,
	)

	notifService := service.NewNotificationService(uowFactory, natsSub, emailService, sysLogger)

	// 3.5 Enforcement Scheduler
	sched := scheduler.NewScheduler(cfg.Billing.SchedulerTick, sysLogger)
	sched.Register(
		JobEnforceGracePeriod,
		scheduler.Every(cfg.Billing.EnforceInterval),
		enforcementService.EnforceGracePeriodAndDowngrade,
	)
	sched.Register(
		JobRenewSubscriptions,
		scheduler.DailyAt{Hour: cfg.Billing.RenewalHourUTC, Minute: cfg.Billing.RenewalMinuteUTC},
		enforcementService.RenewActiveSubscriptions,
	)

	// 4. Controllers
	return &Container{
		PlanController:        controller.NewPlanController(planService),
		BillingController:     controller.NewBillingController(billingService),
		EntitlementController: controller.NewEntitlementController(entitlementService),

		ConsumerService:     consumerService,
		NotificationService: notifService,
		Scheduler:           sched,

		Logger: sysLogger,
	}
}
