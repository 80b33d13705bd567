// FILE: internal/service/entitlement_service.go
// Resolves effective entitlements for the API surface. Resolution itself is
// pure (pkg/entitlement); this service adds persistence reads, a short TTL
// cache, and the metered AI coach counter.
package service

import (
	"context"
	"time"

	"cyberrange-billing-be/internal/dto"
	"cyberrange-billing-be/internal/entity"
	"cyberrange-billing-be/internal/repository/specification"
	"cyberrange-billing-be/internal/repository/unitofwork"
	"cyberrange-billing-be/pkg/entitlement"
	"cyberrange-billing-be/pkg/usage"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

const MetricAiCoach = "ai_coach"

type IEntitlementService interface {
	Resolve(ctx context.Context, userId uuid.UUID) (*entitlement.Effective, error)
	ValidateCapability(ctx context.Context, userId uuid.UUID, capability string) (*dto.ValidateCapabilityResponse, error)
	ConsumeAiCoach(ctx context.Context, userId uuid.UUID) (*dto.UsageResponse, error)
	GetAiCoachUsage(ctx context.Context, userId uuid.UUID) (*dto.UsageResponse, error)
	InvalidateUser(userId uuid.UUID)
}

type entitlementService struct {
	uowFactory  unitofwork.RepositoryFactory
	planService IPlanService
	cache       *gocache.Cache
	cacheTTL    time.Duration
	tracker     usage.ITracker
}

func NewEntitlementService(
	uowFactory unitofwork.RepositoryFactory,
	planService IPlanService,
	cache *gocache.Cache,
	cacheTTL time.Duration,
	tracker usage.ITracker,
) IEntitlementService {
	return &entitlementService{
		uowFactory:  uowFactory,
		planService: planService,
		cache:       cache,
		cacheTTL:    cacheTTL,
		tracker:     tracker,
	}
}

func entitlementCacheKey(userId uuid.UUID) string {
	return "entitlement:" + userId.String()
}

// Resolve computes what the user can do right now. The TTL is short enough
// that enhanced-mode decay is observed within seconds of its expiry.
func (s *entitlementService) Resolve(ctx context.Context, userId uuid.UUID) (*entitlement.Effective, error) {
	key := entitlementCacheKey(userId)
	if cached, found := s.cache.Get(key); found {
		return cached.(*entitlement.Effective), nil
	}

	freePlan, err := s.planService.GetFreePlan(ctx)
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	sub, err := uow.SubscriptionRepository().FindOne(ctx, specification.UserOwnedBy{UserID: userId})
	if err != nil {
		return nil, err
	}

	var plan *entity.Plan
	if sub != nil {
		plan, err = uow.PlanRepository().FindOne(ctx, specification.ByID{ID: sub.PlanId})
		if err != nil {
			return nil, err
		}
	}

	eff := entitlement.Resolve(sub, plan, freePlan, time.Now().UTC())

	s.cache.Set(key, &eff, s.cacheTTL)
	return &eff, nil
}

func (s *entitlementService) ValidateCapability(ctx context.Context, userId uuid.UUID, capability string) (*dto.ValidateCapabilityResponse, error) {
	parsed, err := entity.ParseCapability(capability)
	if err != nil {
		return nil, err
	}

	eff, err := s.Resolve(ctx, userId)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, have := range eff.Capabilities {
		if have == parsed {
			allowed = true
			break
		}
	}

	return &dto.ValidateCapabilityResponse{
		Capability: capability,
		Allowed:    allowed,
	}, nil
}

// ConsumeAiCoach burns one AI coach interaction against today's limit.
// The counter increments before the limit check; the guard compares the
// post-increment value so two racing requests cannot both land under the cap.
func (s *entitlementService) ConsumeAiCoach(ctx context.Context, userId uuid.UUID) (*dto.UsageResponse, error) {
	eff, err := s.Resolve(ctx, userId)
	if err != nil {
		return nil, err
	}

	// nil limit = unlimited, just count for reporting.
	used, err := s.tracker.Increment(ctx, MetricAiCoach, userId.String())
	if err != nil {
		return nil, err
	}

	if eff.AiCoachDailyLimit != nil && used > int64(*eff.AiCoachDailyLimit) {
		return nil, &dto.LimitExceededError{
			Metric: MetricAiCoach,
			Used:   used,
			Limit:  *eff.AiCoachDailyLimit,
		}
	}

	return buildUsageResponse(used, eff.AiCoachDailyLimit), nil
}

func (s *entitlementService) GetAiCoachUsage(ctx context.Context, userId uuid.UUID) (*dto.UsageResponse, error) {
	eff, err := s.Resolve(ctx, userId)
	if err != nil {
		return nil, err
	}

	used, err := s.tracker.Count(ctx, MetricAiCoach, userId.String())
	if err != nil {
		return nil, err
	}

	return buildUsageResponse(used, eff.AiCoachDailyLimit), nil
}

// InvalidateUser drops the cached resolution after a subscription mutation.
func (s *entitlementService) InvalidateUser(userId uuid.UUID) {
	s.cache.Delete(entitlementCacheKey(userId))
}

func buildUsageResponse(used int64, limit *int) *dto.UsageResponse {
	res := &dto.UsageResponse{
		Metric: MetricAiCoach,
		Used:   used,
		Limit:  limit,
	}
	if limit != nil {
		remaining := int64(*limit) - used
		if remaining < 0 {
			remaining = 0
		}
		res.Remaining = &remaining
	}
	return res
}
