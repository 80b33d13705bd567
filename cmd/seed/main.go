package main

import (
	"encoding/json"
	"log"
	"os"

	"cyberrange-billing-be/internal/entity"
	"cyberrange-billing-be/internal/model"
	"cyberrange-billing-be/pkg/database"

	"github.com/joho/godotenv"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func capsJSON(caps ...entity.Capability) datatypes.JSON {
	b, err := json.Marshal(caps)
	if err != nil {
		log.Fatalf("Error: failed to marshal capabilities: %v", err)
	}
	return datatypes.JSON(b)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Seeding plan catalog...")

	plans := []model.Plan{
		{
			Name:               "Free",
			Slug:               "free",
			Tier:               string(entity.PlanTierFree),
			MonthlyPrice:       nil,
			AiCoachDailyLimit:  intPtr(0),
			PortfolioItemLimit: intPtr(1),
			MissionsAccess:     string(entity.MissionsAccessNone),
			EnhancedAccessDays: 0,
			Capabilities:       capsJSON(),
			IsActive:           true,
			SortOrder:          0,
		},
		{
			Name:               "Starter",
			Slug:               "starter_3",
			Tier:               string(entity.PlanTierStarter),
			MonthlyPrice:       floatPtr(3),
			AiCoachDailyLimit:  intPtr(10),
			PortfolioItemLimit: intPtr(5),
			MissionsAccess:     string(entity.MissionsAccessAiOnly),
			EnhancedAccessDays: 180,
			Capabilities: capsJSON(
				entity.CapabilityAiCoach,
				entity.CapabilityPortfolioShowcase,
				entity.CapabilityCertPrep,
			),
			IsActive:  true,
			SortOrder: 1,
		},
		{
			Name:               "Professional",
			Slug:               "professional_7",
			Tier:               string(entity.PlanTierProfessional),
			MonthlyPrice:       floatPtr(7),
			AiCoachDailyLimit:  nil, // unlimited
			PortfolioItemLimit: nil, // unlimited
			MissionsAccess:     string(entity.MissionsAccessFull),
			EnhancedAccessDays: 180,
			Capabilities: capsJSON(
				entity.CapabilityAiCoach,
				entity.CapabilityPortfolioShowcase,
				entity.CapabilityCertPrep,
				entity.CapabilityMentorship,
				entity.CapabilityTalentScope,
				entity.CapabilityMarketplaceContact,
				entity.CapabilityPrioritySupport,
			),
			IsActive:  true,
			SortOrder: 2,
		},
	}

	for _, p := range plans {
		// Upsert by slug so re-running the seeder refreshes the catalog
		// without duplicating rows.
		res := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "slug"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "tier", "monthly_price", "ai_coach_daily_limit",
				"portfolio_item_limit", "missions_access", "enhanced_access_days",
				"capabilities", "is_active", "sort_order", "updated_at",
			}),
		}).Create(&p)
		if res.Error != nil {
			log.Fatalf("Error: failed to seed plan %s: %v", p.Slug, res.Error)
		}
		log.Printf("Seeded plan: %s", p.Slug)
	}

	log.Println("✅ Success: Plan catalog seeded.")
}
