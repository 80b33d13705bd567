// FILE: internal/service/plan_service.go
// Service for the plan catalog. Reads are heavily cached since the catalog
// changes only on deploys.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cyberrange-billing-be/internal/dto"
	"cyberrange-billing-be/internal/entity"
	"cyberrange-billing-be/internal/repository/specification"
	"cyberrange-billing-be/internal/repository/unitofwork"

	gocache "github.com/patrickmn/go-cache"
)

// ErrFreePlanMissing means the catalog has no free-tier row. Enforcement
// jobs treat this as a configuration error and abort the run.
var ErrFreePlanMissing = errors.New("free plan not found in catalog")

var ErrPlanNotFound = errors.New("plan not found")

const (
	planCacheKeyAll  = "plans:all"
	planCacheKeyFree = "plans:free"
	planCacheTTL     = 5 * time.Minute
)

type IPlanService interface {
	GetPlans(ctx context.Context) ([]*dto.PlanResponse, error)
	GetPlanBySlug(ctx context.Context, slug string) (*entity.Plan, error)
	GetFreePlan(ctx context.Context) (*entity.Plan, error)
}

type planService struct {
	uowFactory unitofwork.RepositoryFactory
	cache      *gocache.Cache
}

func NewPlanService(uowFactory unitofwork.RepositoryFactory, cache *gocache.Cache) IPlanService {
	return &planService{
		uowFactory: uowFactory,
		cache:      cache,
	}
}

// GetPlans returns the purchasable catalog in display order.
func (s *planService) GetPlans(ctx context.Context) ([]*dto.PlanResponse, error) {
	if cached, found := s.cache.Get(planCacheKeyAll); found {
		return cached.([]*dto.PlanResponse), nil
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	plans, err := uow.PlanRepository().FindAll(ctx,
		specification.ActiveOnly{},
		specification.OrderBy{Field: "sort_order", Desc: false},
	)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.PlanResponse, 0, len(plans))
	for _, p := range plans {
		caps := make([]string, 0, len(p.Capabilities))
		for _, c := range p.Capabilities {
			caps = append(caps, string(c))
		}
		res = append(res, &dto.PlanResponse{
			Id:                 p.Id,
			Name:               p.Name,
			Slug:               p.Slug,
			Tier:               string(p.Tier),
			MonthlyPrice:       p.MonthlyPrice,
			AiCoachDailyLimit:  p.AiCoachDailyLimit,
			PortfolioItemLimit: p.PortfolioItemLimit,
			MissionsAccess:     string(p.MissionsAccess),
			EnhancedAccessDays: p.EnhancedAccessDays,
			Capabilities:       caps,
			SortOrder:          p.SortOrder,
		})
	}

	s.cache.Set(planCacheKeyAll, res, planCacheTTL)
	return res, nil
}

func (s *planService) GetPlanBySlug(ctx context.Context, slug string) (*entity.Plan, error) {
	cacheKey := "plans:slug:" + slug
	if cached, found := s.cache.Get(cacheKey); found {
		return cached.(*entity.Plan), nil
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	plan, err := uow.PlanRepository().FindOne(ctx, specification.BySlug{Slug: slug})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, slug)
	}

	s.cache.Set(cacheKey, plan, planCacheTTL)
	return plan, nil
}

// GetFreePlan returns the catalog's free-tier row. Every enforcement
// downgrade targets this row, so its absence is surfaced loudly.
func (s *planService) GetFreePlan(ctx context.Context) (*entity.Plan, error) {
	if cached, found := s.cache.Get(planCacheKeyFree); found {
		return cached.(*entity.Plan), nil
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	plan, err := uow.PlanRepository().FindOne(ctx, specification.TierIs{Tier: string(entity.PlanTierFree)})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrFreePlanMissing
	}

	s.cache.Set(planCacheKeyFree, plan, planCacheTTL)
	return plan, nil
}
