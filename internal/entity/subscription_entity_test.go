package entity

import (
	"testing"
	"time"
)

func TestHasPaidAccess(t *testing.T) {
	tests := []struct {
		status SubscriptionStatus
		want   bool
	}{
		{SubscriptionStatusTrial, true},
		{SubscriptionStatusActive, true},
		{SubscriptionStatusPastDue, false},
		{SubscriptionStatusCanceled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			s := &Subscription{Status: tt.status}
			if got := s.HasPaidAccess(); got != tt.want {
				t.Errorf("HasPaidAccess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGraceDeadlineUsesPastDueSince(t *testing.T) {
	pastDue := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	s := &Subscription{
		Status:       SubscriptionStatusPastDue,
		PastDueSince: &pastDue,
		UpdatedAt:    pastDue.Add(48 * time.Hour), // later row touch must not move the clock
	}

	want := pastDue.AddDate(0, 0, 5)
	if got := s.GraceDeadline(5); !got.Equal(want) {
		t.Errorf("GraceDeadline = %v, want %v", got, want)
	}
}

func TestGraceDeadlineFallsBackToUpdatedAt(t *testing.T) {
	updated := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	s := &Subscription{
		Status:    SubscriptionStatusPastDue,
		UpdatedAt: updated,
	}

	want := updated.AddDate(0, 0, 5)
	if got := s.GraceDeadline(5); !got.Equal(want) {
		t.Errorf("GraceDeadline = %v, want %v", got, want)
	}
}

func TestGraceExpired(t *testing.T) {
	since := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status SubscriptionStatus
		now    time.Time
		want   bool
	}{
		{"within grace", SubscriptionStatusPastDue, since.AddDate(0, 0, 3), false},
		{"exactly at deadline", SubscriptionStatusPastDue, since.AddDate(0, 0, 5), true},
		{"past deadline", SubscriptionStatusPastDue, since.AddDate(0, 0, 6), true},
		{"active never expires grace", SubscriptionStatusActive, since.AddDate(0, 0, 30), false},
		{"canceled never expires grace", SubscriptionStatusCanceled, since.AddDate(0, 0, 30), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Subscription{Status: tt.status, PastDueSince: &since}
			if got := s.GraceExpired(tt.now, 5); got != tt.want {
				t.Errorf("GraceExpired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPeriodElapsed(t *testing.T) {
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	s := &Subscription{CurrentPeriodEnd: end}

	if s.PeriodElapsed(end.Add(-time.Second)) {
		t.Error("period should not be elapsed before its end")
	}
	if !s.PeriodElapsed(end) {
		t.Error("period should be elapsed at its end instant")
	}
	if !s.PeriodElapsed(end.Add(time.Hour)) {
		t.Error("period should be elapsed after its end")
	}
}
