package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cyberrange-billing-be/internal/config"
	"cyberrange-billing-be/internal/dto"
	"cyberrange-billing-be/internal/entity"
	"cyberrange-billing-be/internal/repository/contract"
	"cyberrange-billing-be/internal/repository/specification"
	"cyberrange-billing-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

// ---- in-memory repository fakes -------------------------------------------
// The fakes mirror the guarded-UPDATE semantics of the real repositories:
// eligibility is re-checked inside each transition and the bool result
// reports whether the row changed.

type memStore struct {
	mu    sync.Mutex
	plans map[uuid.UUID]*entity.Plan
	subs  map[uuid.UUID]*entity.Subscription
	txns  []*entity.PaymentTransaction
}

func newMemStore() *memStore {
	return &memStore{
		plans: make(map[uuid.UUID]*entity.Plan),
		subs:  make(map[uuid.UUID]*entity.Subscription),
	}
}

func (m *memStore) addPlan(p *entity.Plan)        { m.plans[p.Id] = p }
func (m *memStore) addSub(s *entity.Subscription) { m.subs[s.Id] = s }

func (m *memStore) txnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txns)
}

type memSubscriptionRepo struct{ store *memStore }

func (r *memSubscriptionRepo) Create(ctx context.Context, sub *entity.Subscription) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.subs[sub.Id] = sub
	return nil
}

func (r *memSubscriptionRepo) Update(ctx context.Context, sub *entity.Subscription) error {
	return r.Create(ctx, sub)
}

func (r *memSubscriptionRepo) matches(sub *entity.Subscription, specs []specification.Specification) bool {
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.ByID:
			if sub.Id != s.ID {
				return false
			}
		case specification.UserOwnedBy:
			if sub.UserId != s.UserID {
				return false
			}
		case specification.StatusIs:
			if string(sub.Status) != s.Status {
				return false
			}
		case specification.PlanIsNot:
			if sub.PlanId == s.PlanID {
				return false
			}
		case specification.PeriodEndedBy:
			if sub.CurrentPeriodEnd.After(s.Now) {
				return false
			}
		case specification.GraceElapsedBy:
			anchor := sub.UpdatedAt
			if sub.PastDueSince != nil {
				anchor = *sub.PastDueSince
			}
			if anchor.After(s.Cutoff) {
				return false
			}
		}
	}
	return true
}

func (r *memSubscriptionRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Subscription, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, sub := range r.store.subs {
		if r.matches(sub, specs) {
			return sub, nil
		}
	}
	return nil, nil
}

func (r *memSubscriptionRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Subscription, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*entity.Subscription
	for _, sub := range r.store.subs {
		if r.matches(sub, specs) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (r *memSubscriptionRepo) MarkPastDue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sub, ok := r.store.subs[id]
	if !ok || !sub.HasPaidAccess() {
		return false, nil
	}
	sub.Status = entity.SubscriptionStatusPastDue
	sub.PastDueSince = &now
	sub.UpdatedAt = now
	return true, nil
}

func (r *memSubscriptionRepo) MarkActive(ctx context.Context, id uuid.UUID, planId uuid.UUID, orderId string, periodStart, periodEnd time.Time, enhancedExpiry *time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sub, ok := r.store.subs[id]
	if !ok {
		return false, nil
	}
	if sub.GatewayTransactionId != nil && *sub.GatewayTransactionId == orderId {
		return false, nil
	}
	sub.PlanId = planId
	sub.Status = entity.SubscriptionStatusActive
	sub.CurrentPeriodStart = periodStart
	sub.CurrentPeriodEnd = periodEnd
	sub.EnhancedAccessExpiresAt = enhancedExpiry
	sub.PastDueSince = nil
	sub.CancelRequested = false
	sub.CanceledAt = nil
	sub.GatewayTransactionId = &orderId
	sub.UpdatedAt = periodStart
	return true, nil
}

func (r *memSubscriptionRepo) ApplyGraceDowngrade(ctx context.Context, id uuid.UUID, freePlanId uuid.UUID, now time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sub, ok := r.store.subs[id]
	if !ok || sub.Status != entity.SubscriptionStatusPastDue {
		return false, nil
	}
	sub.Status = entity.SubscriptionStatusCanceled
	sub.PlanId = freePlanId
	sub.EnhancedAccessExpiresAt = nil
	canceledAt := now
	sub.CanceledAt = &canceledAt
	sub.UpdatedAt = now
	return true, nil
}

func (r *memSubscriptionRepo) ApplyPlanDrop(ctx context.Context, id uuid.UUID, freePlanId uuid.UUID, now time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sub, ok := r.store.subs[id]
	if !ok || sub.Status != entity.SubscriptionStatusCanceled ||
		sub.PlanId == freePlanId || sub.CurrentPeriodEnd.After(now) {
		return false, nil
	}
	sub.PlanId = freePlanId
	sub.UpdatedAt = now
	return true, nil
}

func (r *memSubscriptionRepo) ApplyRenewal(ctx context.Context, id uuid.UUID, periodStart, periodEnd time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sub, ok := r.store.subs[id]
	if !ok || sub.Status != entity.SubscriptionStatusActive || sub.CurrentPeriodEnd.After(periodStart) {
		return false, nil
	}
	sub.CurrentPeriodStart = periodStart
	sub.CurrentPeriodEnd = periodEnd
	sub.UpdatedAt = periodStart
	return true, nil
}

func (r *memSubscriptionRepo) ApplyTrialExpiry(ctx context.Context, id uuid.UUID, freePlanId uuid.UUID, now time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sub, ok := r.store.subs[id]
	if !ok || sub.Status != entity.SubscriptionStatusTrial || sub.CurrentPeriodEnd.After(now) {
		return false, nil
	}
	sub.Status = entity.SubscriptionStatusCanceled
	sub.PlanId = freePlanId
	sub.EnhancedAccessExpiresAt = nil
	canceledAt := now
	sub.CanceledAt = &canceledAt
	sub.UpdatedAt = now
	return true, nil
}

func (r *memSubscriptionRepo) CountByStatus(ctx context.Context, status entity.SubscriptionStatus) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n := 0
	for _, sub := range r.store.subs {
		if sub.Status == status {
			n++
		}
	}
	return n, nil
}

type memPlanRepo struct{ store *memStore }

func (r *memPlanRepo) Create(ctx context.Context, plan *entity.Plan) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.plans[plan.Id] = plan
	return nil
}

func (r *memPlanRepo) Update(ctx context.Context, plan *entity.Plan) error {
	return r.Create(ctx, plan)
}

func (r *memPlanRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.plans, id)
	return nil
}

func (r *memPlanRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Plan, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, plan := range r.store.plans {
		ok := true
		for _, spec := range specs {
			switch s := spec.(type) {
			case specification.ByID:
				ok = ok && plan.Id == s.ID
			case specification.BySlug:
				ok = ok && plan.Slug == s.Slug
			case specification.TierIs:
				ok = ok && string(plan.Tier) == s.Tier
			}
		}
		if ok {
			return plan, nil
		}
	}
	return nil, nil
}

func (r *memPlanRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Plan, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*entity.Plan
	for _, plan := range r.store.plans {
		out = append(out, plan)
	}
	return out, nil
}

type memTxnRepo struct{ store *memStore }

func (r *memTxnRepo) Create(ctx context.Context, txn *entity.PaymentTransaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.txns = append(r.store.txns, txn)
	return nil
}

func (r *memTxnRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.PaymentTransaction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return append([]*entity.PaymentTransaction(nil), r.store.txns...), nil
}

func (r *memTxnRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return int64(len(r.store.txns)), nil
}

type memUserRepo struct{}

func (r *memUserRepo) Create(ctx context.Context, user *entity.User) error { return nil }
func (r *memUserRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.User, error) {
	return nil, nil
}
func (r *memUserRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	return 0, nil
}

type memUow struct{ store *memStore }

func (u *memUow) Begin(ctx context.Context) error { return nil }
func (u *memUow) Commit() error                   { return nil }
func (u *memUow) Rollback() error                 { return nil }

func (u *memUow) UserRepository() contract.UserRepository { return &memUserRepo{} }
func (u *memUow) PlanRepository() contract.PlanRepository { return &memPlanRepo{store: u.store} }
func (u *memUow) SubscriptionRepository() contract.SubscriptionRepository {
	return &memSubscriptionRepo{store: u.store}
}
func (u *memUow) PaymentTransactionRepository() contract.PaymentTransactionRepository {
	return &memTxnRepo{store: u.store}
}

type memUowFactory struct{ store *memStore }

func (f *memUowFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &memUow{store: f.store}
}

// fakePlanService serves the catalog straight from the store, no cache.
type fakePlanService struct {
	store    *memStore
	freeSlug string
}

func (s *fakePlanService) GetPlans(ctx context.Context) ([]*dto.PlanResponse, error) {
	return nil, errors.New("not used")
}

func (s *fakePlanService) GetPlanBySlug(ctx context.Context, slug string) (*entity.Plan, error) {
	for _, p := range s.store.plans {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, ErrPlanNotFound
}

func (s *fakePlanService) GetFreePlan(ctx context.Context) (*entity.Plan, error) {
	for _, p := range s.store.plans {
		if p.Slug == s.freeSlug {
			return p, nil
		}
	}
	return nil, ErrFreePlanMissing
}

type recordingPublisher struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (p *recordingPublisher) Publish(ctx context.Context, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

type testLogger struct{}

func (testLogger) Debug(module, message string, details map[string]interface{}) {}
func (testLogger) Info(module, message string, details map[string]interface{})  {}
func (testLogger) Warn(module, message string, details map[string]interface{})  {}
func (testLogger) Error(module, message string, details map[string]interface{}) {}
func (testLogger) Sync() error                                                  { return nil }

// ---- test fixtures --------------------------------------------------------

func testBillingConfig() *config.Config {
	return &config.Config{
		Billing: config.BillingConfig{
			GracePeriodDays:   5,
			RenewalPeriodDays: 30,
		},
	}
}

func seedPlans(store *memStore) (free, starter *entity.Plan) {
	price := 3.0
	limit := 10
	free = &entity.Plan{
		Id:   uuid.New(),
		Name: "Free",
		Slug: "free",
		Tier: entity.PlanTierFree,
	}
	starter = &entity.Plan{
		Id:                 uuid.New(),
		Name:               "Starter",
		Slug:               "starter_3",
		Tier:               entity.PlanTierStarter,
		MonthlyPrice:       &price,
		AiCoachDailyLimit:  &limit,
		EnhancedAccessDays: 180,
	}
	store.addPlan(free)
	store.addPlan(starter)
	return free, starter
}

func newEnforcement(store *memStore, pub *recordingPublisher) IEnforcementService {
	return NewEnforcementService(
		&memUowFactory{store: store},
		&fakePlanService{store: store, freeSlug: "free"},
		pub,
		nil, // no event broker in unit tests
		nil, // no entitlement cache in unit tests
		testBillingConfig(),
		testLogger{},
	)
}

func pastDueSub(userId, planId uuid.UUID, since time.Time) *entity.Subscription {
	return &entity.Subscription{
		Id:                 uuid.New(),
		UserId:             userId,
		PlanId:             planId,
		Status:             entity.SubscriptionStatusPastDue,
		CurrentPeriodStart: since.AddDate(0, 0, -30),
		CurrentPeriodEnd:   since,
		PastDueSince:       &since,
		UpdatedAt:          since,
	}
}

// ---- tests ----------------------------------------------------------------

func TestGraceDowngradeCancelsExpiredPastDue(t *testing.T) {
	store := newMemStore()
	free, starter := seedPlans(store)
	pub := &recordingPublisher{}
	svc := newEnforcement(store, pub)

	since := time.Now().UTC().AddDate(0, 0, -6) // past the 5 day grace window
	sub := pastDueSub(uuid.New(), starter.Id, since)
	store.addSub(sub)

	if err := svc.EnforceGracePeriodAndDowngrade(context.Background()); err != nil {
		t.Fatalf("enforcement run failed: %v", err)
	}

	got := store.subs[sub.Id]
	if got.Status != entity.SubscriptionStatusCanceled {
		t.Errorf("status = %s, want canceled", got.Status)
	}
	if got.PlanId != free.Id {
		t.Errorf("plan = %s, want free plan %s", got.PlanId, free.Id)
	}
	if got.EnhancedAccessExpiresAt != nil {
		t.Error("enhanced access should be cleared on downgrade")
	}

	if n := store.txnCount(); n != 1 {
		t.Fatalf("ledger entries = %d, want 1", n)
	}
	txn := store.txns[0]
	if txn.Amount != 0 || txn.Status != entity.TransactionStatusFailed {
		t.Errorf("downgrade marker txn = amount %v status %s, want 0/failed", txn.Amount, txn.Status)
	}
	if txn.Metadata[entity.TxnMetaReason] != "grace_period_expired" {
		t.Errorf("reason = %v, want grace_period_expired", txn.Metadata[entity.TxnMetaReason])
	}
	if txn.Metadata[entity.TxnMetaSimulated] != true {
		t.Error("downgrade marker should be flagged simulated")
	}

	if pub.count() != 1 {
		t.Errorf("invalidations published = %d, want 1", pub.count())
	}
}

func TestGraceDowngradeRunTwiceIsIdempotent(t *testing.T) {
	store := newMemStore()
	_, starter := seedPlans(store)
	pub := &recordingPublisher{}
	svc := newEnforcement(store, pub)

	since := time.Now().UTC().AddDate(0, 0, -6)
	store.addSub(pastDueSub(uuid.New(), starter.Id, since))

	for i := 0; i < 2; i++ {
		if err := svc.EnforceGracePeriodAndDowngrade(context.Background()); err != nil {
			t.Fatalf("run %d failed: %v", i+1, err)
		}
	}

	if n := store.txnCount(); n != 1 {
		t.Errorf("ledger entries after double run = %d, want 1", n)
	}
	if pub.count() != 1 {
		t.Errorf("invalidations after double run = %d, want 1", pub.count())
	}
}

func TestGraceDowngradeSkipsSubsStillInGrace(t *testing.T) {
	store := newMemStore()
	_, starter := seedPlans(store)
	svc := newEnforcement(store, &recordingPublisher{})

	since := time.Now().UTC().AddDate(0, 0, -2) // inside the 5 day window
	sub := pastDueSub(uuid.New(), starter.Id, since)
	store.addSub(sub)

	if err := svc.EnforceGracePeriodAndDowngrade(context.Background()); err != nil {
		t.Fatalf("enforcement run failed: %v", err)
	}

	if store.subs[sub.Id].Status != entity.SubscriptionStatusPastDue {
		t.Error("subscription inside its grace window must stay past_due")
	}
	if n := store.txnCount(); n != 0 {
		t.Errorf("ledger entries = %d, want 0", n)
	}
}

func TestGraceDowngradeAbortsWithoutFreePlan(t *testing.T) {
	store := newMemStore()
	starter := &entity.Plan{Id: uuid.New(), Slug: "starter_3", Tier: entity.PlanTierStarter}
	store.addPlan(starter) // catalog misconfigured: no free tier

	svc := newEnforcement(store, &recordingPublisher{})

	since := time.Now().UTC().AddDate(0, 0, -10)
	sub := pastDueSub(uuid.New(), starter.Id, since)
	store.addSub(sub)

	err := svc.EnforceGracePeriodAndDowngrade(context.Background())
	if !errors.Is(err, ErrFreePlanMissing) {
		t.Fatalf("error = %v, want ErrFreePlanMissing", err)
	}
	if store.subs[sub.Id].Status != entity.SubscriptionStatusPastDue {
		t.Error("aborted run must not touch any row")
	}
}

func TestPlanDropForElapsedCanceled(t *testing.T) {
	store := newMemStore()
	free, starter := seedPlans(store)
	svc := newEnforcement(store, &recordingPublisher{})

	now := time.Now().UTC()
	canceledAt := now.AddDate(0, 0, -40)
	sub := &entity.Subscription{
		Id:                 uuid.New(),
		UserId:             uuid.New(),
		PlanId:             starter.Id,
		Status:             entity.SubscriptionStatusCanceled,
		CurrentPeriodStart: now.AddDate(0, 0, -35),
		CurrentPeriodEnd:   now.AddDate(0, 0, -5), // paid-for time fully used
		CancelRequested:    true,
		CanceledAt:         &canceledAt,
		UpdatedAt:          canceledAt,
	}
	store.addSub(sub)

	if err := svc.EnforceGracePeriodAndDowngrade(context.Background()); err != nil {
		t.Fatalf("enforcement run failed: %v", err)
	}

	got := store.subs[sub.Id]
	if got.PlanId != free.Id {
		t.Errorf("plan = %s, want free plan", got.PlanId)
	}
	if got.Status != entity.SubscriptionStatusCanceled {
		t.Errorf("status = %s, plan drop must not change status", got.Status)
	}
	if n := store.txnCount(); n != 0 {
		t.Errorf("plan drop should not write ledger entries, got %d", n)
	}
}

func TestPlanDropLeavesUnexpiredCanceledAlone(t *testing.T) {
	store := newMemStore()
	_, starter := seedPlans(store)
	svc := newEnforcement(store, &recordingPublisher{})

	now := time.Now().UTC()
	sub := &entity.Subscription{
		Id:                 uuid.New(),
		UserId:             uuid.New(),
		PlanId:             starter.Id,
		Status:             entity.SubscriptionStatusCanceled,
		CurrentPeriodStart: now.AddDate(0, 0, -10),
		CurrentPeriodEnd:   now.AddDate(0, 0, 20), // paid-for time remains
		UpdatedAt:          now,
	}
	store.addSub(sub)

	if err := svc.EnforceGracePeriodAndDowngrade(context.Background()); err != nil {
		t.Fatalf("enforcement run failed: %v", err)
	}

	if store.subs[sub.Id].PlanId != starter.Id {
		t.Error("canceled subscription keeps its plan until the paid period ends")
	}
}

func TestRenewalRollsPeriodAndLedgersSimulatedCharge(t *testing.T) {
	store := newMemStore()
	_, starter := seedPlans(store)
	pub := &recordingPublisher{}
	svc := newEnforcement(store, pub)

	now := time.Now().UTC()
	sub := &entity.Subscription{
		Id:                 uuid.New(),
		UserId:             uuid.New(),
		PlanId:             starter.Id,
		Status:             entity.SubscriptionStatusActive,
		CurrentPeriodStart: now.AddDate(0, 0, -31),
		CurrentPeriodEnd:   now.AddDate(0, 0, -1),
		UpdatedAt:          now.AddDate(0, 0, -31),
	}
	store.addSub(sub)

	if err := svc.RenewActiveSubscriptions(context.Background()); err != nil {
		t.Fatalf("renewal run failed: %v", err)
	}

	got := store.subs[sub.Id]
	if got.Status != entity.SubscriptionStatusActive {
		t.Errorf("status = %s, want active", got.Status)
	}
	if !got.CurrentPeriodEnd.After(now.AddDate(0, 0, 29)) {
		t.Errorf("period end = %v, want roughly 30 days out", got.CurrentPeriodEnd)
	}

	if n := store.txnCount(); n != 1 {
		t.Fatalf("ledger entries = %d, want 1", n)
	}
	txn := store.txns[0]
	if txn.Status != entity.TransactionStatusCompleted || txn.Amount != 3.0 {
		t.Errorf("renewal txn = status %s amount %v, want completed/3.0", txn.Status, txn.Amount)
	}
	if txn.Metadata[entity.TxnMetaReason] != "scheduled_renewal" {
		t.Errorf("reason = %v, want scheduled_renewal", txn.Metadata[entity.TxnMetaReason])
	}
	if txn.Metadata[entity.TxnMetaSimulated] != true {
		t.Error("renewal charge must be flagged simulated")
	}
	if pub.count() != 1 {
		t.Errorf("invalidations published = %d, want 1", pub.count())
	}
}

func TestRenewalRunTwiceIsIdempotent(t *testing.T) {
	store := newMemStore()
	_, starter := seedPlans(store)
	svc := newEnforcement(store, &recordingPublisher{})

	now := time.Now().UTC()
	store.addSub(&entity.Subscription{
		Id:                 uuid.New(),
		UserId:             uuid.New(),
		PlanId:             starter.Id,
		Status:             entity.SubscriptionStatusActive,
		CurrentPeriodStart: now.AddDate(0, 0, -31),
		CurrentPeriodEnd:   now.AddDate(0, 0, -1),
		UpdatedAt:          now.AddDate(0, 0, -31),
	})

	for i := 0; i < 2; i++ {
		if err := svc.RenewActiveSubscriptions(context.Background()); err != nil {
			t.Fatalf("run %d failed: %v", i+1, err)
		}
	}

	if n := store.txnCount(); n != 1 {
		t.Errorf("ledger entries after double run = %d, want 1", n)
	}
}

func TestTrialExpirySweep(t *testing.T) {
	store := newMemStore()
	free, starter := seedPlans(store)
	pub := &recordingPublisher{}
	svc := newEnforcement(store, pub)

	now := time.Now().UTC()
	elapsed := &entity.Subscription{
		Id:                 uuid.New(),
		UserId:             uuid.New(),
		PlanId:             starter.Id,
		Status:             entity.SubscriptionStatusTrial,
		CurrentPeriodStart: now.AddDate(0, 0, -8),
		CurrentPeriodEnd:   now.AddDate(0, 0, -1),
		UpdatedAt:          now.AddDate(0, 0, -8),
	}
	live := &entity.Subscription{
		Id:                 uuid.New(),
		UserId:             uuid.New(),
		PlanId:             starter.Id,
		Status:             entity.SubscriptionStatusTrial,
		CurrentPeriodStart: now.AddDate(0, 0, -2),
		CurrentPeriodEnd:   now.AddDate(0, 0, 5),
		UpdatedAt:          now.AddDate(0, 0, -2),
	}
	store.addSub(elapsed)
	store.addSub(live)

	if err := svc.EnforceGracePeriodAndDowngrade(context.Background()); err != nil {
		t.Fatalf("enforcement run failed: %v", err)
	}

	got := store.subs[elapsed.Id]
	if got.Status != entity.SubscriptionStatusCanceled || got.PlanId != free.Id {
		t.Errorf("elapsed trial = %s on %s, want canceled on free", got.Status, got.PlanId)
	}
	if store.subs[live.Id].Status != entity.SubscriptionStatusTrial {
		t.Error("trial with time remaining must be left alone")
	}
	if n := store.txnCount(); n != 0 {
		t.Errorf("trial expiry must not write ledger entries, got %d", n)
	}
	if pub.count() != 1 {
		t.Errorf("invalidations published = %d, want 1", pub.count())
	}
}

func TestStartTrial(t *testing.T) {
	store := newMemStore()
	_, starter := seedPlans(store)
	pub := &recordingPublisher{}

	cfg := testBillingConfig()
	cfg.Billing.TrialDays = 7
	svc := NewBillingService(
		&memUowFactory{store: store},
		&fakePlanService{store: store, freeSlug: "free"},
		pub,
		nil,
		cfg,
		testLogger{},
	)

	userId := uuid.New()
	res, err := svc.StartTrial(context.Background(), userId, &dto.StartTrialRequest{PlanSlug: "starter_3"})
	if err != nil {
		t.Fatalf("StartTrial failed: %v", err)
	}
	if res.Status != string(entity.SubscriptionStatusTrial) {
		t.Errorf("status = %s, want trial", res.Status)
	}
	if !res.CurrentPeriodEnd.After(res.CurrentPeriodStart.AddDate(0, 0, 6)) {
		t.Errorf("trial period = [%v, %v), want 7 days", res.CurrentPeriodStart, res.CurrentPeriodEnd)
	}

	sub := store.subs[res.Id]
	if sub == nil || sub.PlanId != starter.Id {
		t.Fatal("trial subscription not persisted on the requested plan")
	}

	// Second trial for the same account is refused, whatever the row's state.
	if _, err := svc.StartTrial(context.Background(), userId, &dto.StartTrialRequest{PlanSlug: "starter_3"}); !errors.Is(err, ErrTrialNotAvailable) {
		t.Errorf("second trial error = %v, want ErrTrialNotAvailable", err)
	}

	// The free plan has nothing to trial.
	if _, err := svc.StartTrial(context.Background(), uuid.New(), &dto.StartTrialRequest{PlanSlug: "free"}); err == nil {
		t.Error("free plan trial should be rejected")
	}
}

func TestRenewalExcludesFreeTierAndCurrentPeriods(t *testing.T) {
	store := newMemStore()
	free, starter := seedPlans(store)
	svc := newEnforcement(store, &recordingPublisher{})

	now := time.Now().UTC()
	freeSub := &entity.Subscription{
		Id:                 uuid.New(),
		UserId:             uuid.New(),
		PlanId:             free.Id,
		Status:             entity.SubscriptionStatusActive,
		CurrentPeriodStart: now.AddDate(0, 0, -60),
		CurrentPeriodEnd:   now.AddDate(0, 0, -30), // long elapsed, still excluded
		UpdatedAt:          now.AddDate(0, 0, -60),
	}
	currentSub := &entity.Subscription{
		Id:                 uuid.New(),
		UserId:             uuid.New(),
		PlanId:             starter.Id,
		Status:             entity.SubscriptionStatusActive,
		CurrentPeriodStart: now.AddDate(0, 0, -5),
		CurrentPeriodEnd:   now.AddDate(0, 0, 25),
		UpdatedAt:          now.AddDate(0, 0, -5),
	}
	store.addSub(freeSub)
	store.addSub(currentSub)

	if err := svc.RenewActiveSubscriptions(context.Background()); err != nil {
		t.Fatalf("renewal run failed: %v", err)
	}

	if n := store.txnCount(); n != 0 {
		t.Errorf("ledger entries = %d, want 0 (nothing eligible)", n)
	}
	if !store.subs[freeSub.Id].CurrentPeriodEnd.Equal(freeSub.CurrentPeriodEnd) {
		t.Error("free tier subscription must never be renewed")
	}
	if !store.subs[currentSub.Id].CurrentPeriodEnd.Equal(currentSub.CurrentPeriodEnd) {
		t.Error("subscription with a live period must not be renewed early")
	}
}
