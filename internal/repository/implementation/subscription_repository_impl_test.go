package implementation

import (
	"context"
	"os"
	"testing"
	"time"

	"cyberrange-billing-be/internal/entity"
	"cyberrange-billing-be/internal/model"
	"cyberrange-billing-be/internal/repository/specification"
	"cyberrange-billing-be/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Integration coverage for the guarded subscription transitions. Needs a
// reachable postgres; skipped otherwise.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("DB_CONNECTION_STRING not set")
	}

	db, err := database.NewGormDBFromDSN(dsn)
	require.NoError(t, err)

	setup := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
		`DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'plan_tier') THEN CREATE TYPE plan_tier AS ENUM ('free', 'starter', 'professional'); END IF; END $$;`,
		`DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'missions_access') THEN CREATE TYPE missions_access AS ENUM ('none', 'ai_only', 'full'); END IF; END $$;`,
		`DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'subscription_status') THEN CREATE TYPE subscription_status AS ENUM ('trial', 'active', 'past_due', 'canceled'); END IF; END $$;`,
	}
	for _, sql := range setup {
		require.NoError(t, db.Exec(sql).Error)
	}
	require.NoError(t, db.AutoMigrate(&model.Plan{}, &model.Subscription{}))
	return db
}

func seedTestPlan(t *testing.T, db *gorm.DB, tier string) uuid.UUID {
	t.Helper()
	p := &model.Plan{
		Id:             uuid.New(),
		Name:           "it-" + tier,
		Slug:           "it-" + tier + "-" + uuid.NewString()[:8],
		Tier:           tier,
		MissionsAccess: "none",
		Capabilities:   datatypes.JSON(`[]`),
	}
	require.NoError(t, db.Create(p).Error)
	t.Cleanup(func() { db.Delete(&model.Plan{}, "id = ?", p.Id) })
	return p.Id
}

func seedTestSub(t *testing.T, db *gorm.DB, planId uuid.UUID, status entity.SubscriptionStatus) *entity.Subscription {
	t.Helper()
	now := time.Now().UTC()
	repo := NewSubscriptionRepository(db)
	sub := &entity.Subscription{
		Id:                 uuid.New(),
		UserId:             uuid.New(),
		PlanId:             planId,
		Status:             status,
		CurrentPeriodStart: now.AddDate(0, 0, -30),
		CurrentPeriodEnd:   now.AddDate(0, 0, -1),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, repo.Create(context.Background(), sub))
	t.Cleanup(func() { db.Delete(&model.Subscription{}, "id = ?", sub.Id) })
	return sub
}

func TestMarkActiveIsReplaySafe(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewSubscriptionRepository(db)

	planId := seedTestPlan(t, db, "starter")
	sub := seedTestSub(t, db, planId, entity.SubscriptionStatusCanceled)

	now := time.Now().UTC()
	orderId := sub.Id.String() + "--it--1"

	changed, err := repo.MarkActive(ctx, sub.Id, planId, orderId, now, now.AddDate(0, 0, 30), nil)
	require.NoError(t, err)
	require.True(t, changed, "first settlement must activate")

	changed, err = repo.MarkActive(ctx, sub.Id, planId, orderId, now, now.AddDate(0, 0, 60), nil)
	require.NoError(t, err)
	require.False(t, changed, "replayed order id must be a no-op")
}

func TestGuardedTransitionsApplyOnce(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewSubscriptionRepository(db)

	freeId := seedTestPlan(t, db, "free")
	paidId := seedTestPlan(t, db, "starter")
	sub := seedTestSub(t, db, paidId, entity.SubscriptionStatusActive)

	now := time.Now().UTC()

	changed, err := repo.MarkPastDue(ctx, sub.Id, now)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = repo.MarkPastDue(ctx, sub.Id, now)
	require.NoError(t, err)
	require.False(t, changed, "past_due row is no longer eligible")

	changed, err = repo.ApplyGraceDowngrade(ctx, sub.Id, freeId, now)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = repo.ApplyGraceDowngrade(ctx, sub.Id, freeId, now)
	require.NoError(t, err)
	require.False(t, changed, "canceled row cannot be downgraded again")

	got, err := repo.FindOne(ctx, specification.ByID{ID: sub.Id})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, entity.SubscriptionStatusCanceled, got.Status)
	require.Equal(t, freeId, got.PlanId)
	require.Nil(t, got.PastDueSince)
}

func TestApplyRenewalRequiresElapsedPeriod(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewSubscriptionRepository(db)

	planId := seedTestPlan(t, db, "starter")
	sub := seedTestSub(t, db, planId, entity.SubscriptionStatusActive)

	now := time.Now().UTC()

	changed, err := repo.ApplyRenewal(ctx, sub.Id, now, now.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.True(t, changed, "elapsed period renews")

	changed, err = repo.ApplyRenewal(ctx, sub.Id, now, now.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.False(t, changed, "fresh period must not renew again")
}
