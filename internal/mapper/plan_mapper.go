package mapper

import (
	"encoding/json"
	"fmt"

	"cyberrange-billing-be/internal/entity"
	"cyberrange-billing-be/internal/model"

	"gorm.io/datatypes"
)

type PlanMapper struct{}

func NewPlanMapper() *PlanMapper {
	return &PlanMapper{}
}

// ToEntity validates capability keys while mapping; a stored row with an
// unknown capability is a data error surfaced here, not silently ignored at
// gate-check time.
func (m *PlanMapper) ToEntity(p *model.Plan) (*entity.Plan, error) {
	if p == nil {
		return nil, nil
	}

	var keys []string
	if len(p.Capabilities) > 0 {
		if err := json.Unmarshal(p.Capabilities, &keys); err != nil {
			return nil, fmt.Errorf("plan %s: malformed capabilities: %w", p.Slug, err)
		}
	}
	caps := make([]entity.Capability, 0, len(keys))
	for _, k := range keys {
		c, err := entity.ParseCapability(k)
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", p.Slug, err)
		}
		caps = append(caps, c)
	}

	return &entity.Plan{
		Id:                 p.Id,
		Name:               p.Name,
		Slug:               p.Slug,
		Tier:               entity.PlanTier(p.Tier),
		MonthlyPrice:       p.MonthlyPrice,
		AiCoachDailyLimit:  p.AiCoachDailyLimit,
		PortfolioItemLimit: p.PortfolioItemLimit,
		MissionsAccess:     entity.MissionsAccess(p.MissionsAccess),
		EnhancedAccessDays: p.EnhancedAccessDays,
		Capabilities:       caps,
		IsActive:           p.IsActive,
		SortOrder:          p.SortOrder,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}, nil
}

func (m *PlanMapper) ToModel(p *entity.Plan) (*model.Plan, error) {
	if p == nil {
		return nil, nil
	}

	keys := make([]string, len(p.Capabilities))
	for i, c := range p.Capabilities {
		keys[i] = string(c)
	}
	raw, err := json.Marshal(keys)
	if err != nil {
		return nil, fmt.Errorf("plan %s: marshal capabilities: %w", p.Slug, err)
	}

	return &model.Plan{
		Id:                 p.Id,
		Name:               p.Name,
		Slug:               p.Slug,
		Tier:               string(p.Tier),
		MonthlyPrice:       p.MonthlyPrice,
		AiCoachDailyLimit:  p.AiCoachDailyLimit,
		PortfolioItemLimit: p.PortfolioItemLimit,
		MissionsAccess:     string(p.MissionsAccess),
		EnhancedAccessDays: p.EnhancedAccessDays,
		Capabilities:       datatypes.JSON(raw),
		IsActive:           p.IsActive,
		SortOrder:          p.SortOrder,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}, nil
}
