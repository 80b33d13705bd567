// FILE: internal/controller/entitlement_controller.go
package controller

import (
	"time"

	"cyberrange-billing-be/internal/dto"
	"cyberrange-billing-be/internal/pkg/serverutils"
	"cyberrange-billing-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IEntitlementController interface {
	RegisterRoutes(r fiber.Router)
	GetEntitlements(ctx *fiber.Ctx) error
	ValidateCapability(ctx *fiber.Ctx) error
	ConsumeAiCoach(ctx *fiber.Ctx) error
	GetAiCoachUsage(ctx *fiber.Ctx) error
}

type entitlementController struct {
	service service.IEntitlementService
}

func NewEntitlementController(service service.IEntitlementService) IEntitlementController {
	return &entitlementController{service: service}
}

func (c *entitlementController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/entitlements", serverutils.JwtMiddleware)
	h.Get("/", c.GetEntitlements)
	h.Post("/validate", c.ValidateCapability)
	h.Post("/ai-coach/consume", c.ConsumeAiCoach)
	h.Get("/ai-coach/usage", c.GetAiCoachUsage)
}

func (c *entitlementController) GetEntitlements(ctx *fiber.Ctx) error {
	userId, err := currentUserId(ctx)
	if err != nil {
		return err
	}

	eff, err := c.service.Resolve(ctx.Context(), userId)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}

	res := dto.EntitlementResponse{
		PlanSlug:           eff.PlanSlug,
		Tier:               string(eff.Tier),
		Status:             string(eff.Status),
		MissionsAccess:     string(eff.MissionsAccess),
		AiCoachDailyLimit:  eff.AiCoachDailyLimit,
		PortfolioItemLimit: eff.PortfolioItemLimit,
		MentorshipAccess:   eff.MentorshipAccess,
		TalentscopeAccess:  eff.TalentscopeAccess,
		MarketplaceContact: eff.MarketplaceContact,
		EnhancedMode:       eff.EnhancedMode,
	}
	for _, capability := range eff.Capabilities {
		res.Capabilities = append(res.Capabilities, string(capability))
	}
	if eff.EnhancedModeExpiresAt != nil {
		formatted := eff.EnhancedModeExpiresAt.Format(time.RFC3339)
		res.EnhancedModeExpiresAt = &formatted
	}

	return ctx.JSON(serverutils.SuccessResponse("Effective entitlements", res))
}

func (c *entitlementController) ValidateCapability(ctx *fiber.Ctx) error {
	var req dto.ValidateCapabilityRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	userId, err := currentUserId(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.ValidateCapability(ctx.Context(), userId, req.Capability)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("Capability checked", res))
}

func (c *entitlementController) ConsumeAiCoach(ctx *fiber.Ctx) error {
	userId, err := currentUserId(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.ConsumeAiCoach(ctx.Context(), userId)
	if err != nil {
		// LimitExceededError is mapped to 403 by the error middleware.
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Usage recorded", res))
}

func (c *entitlementController) GetAiCoachUsage(ctx *fiber.Ctx) error {
	userId, err := currentUserId(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.GetAiCoachUsage(ctx.Context(), userId)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("Usage status", res))
}
