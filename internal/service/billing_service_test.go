package service

import (
	"crypto/sha512"
	"fmt"
	"testing"

	"cyberrange-billing-be/internal/config"
	"cyberrange-billing-be/internal/dto"

	"github.com/google/uuid"
)

func TestParseOrderId(t *testing.T) {
	subId := uuid.New()

	tests := []struct {
		name     string
		orderId  string
		wantSub  uuid.UUID
		wantSlug string
		wantErr  bool
	}{
		{
			name:     "valid",
			orderId:  fmt.Sprintf("%s--starter_3--1767225600", subId),
			wantSub:  subId,
			wantSlug: "starter_3",
		},
		{
			name:     "slug with underscores and digits",
			orderId:  fmt.Sprintf("%s--professional_7--1767225600", subId),
			wantSub:  subId,
			wantSlug: "professional_7",
		},
		{"missing parts", "abc--def", uuid.Nil, "", true},
		{"too many parts", "a--b--c--d", uuid.Nil, "", true},
		{"not a uuid", "not-a-uuid--starter_3--1767225600", uuid.Nil, "", true},
		{"empty", "", uuid.Nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSub, gotSlug, err := parseOrderId(tt.orderId)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotSub != tt.wantSub {
				t.Errorf("subscription id = %s, want %s", gotSub, tt.wantSub)
			}
			if gotSlug != tt.wantSlug {
				t.Errorf("plan slug = %s, want %s", gotSlug, tt.wantSlug)
			}
		})
	}
}

func TestVerifySignature(t *testing.T) {
	const serverKey = "SB-Mid-server-test-key"

	sign := func(orderId, statusCode, grossAmount string) string {
		return fmt.Sprintf("%x", sha512.Sum512([]byte(orderId+statusCode+grossAmount+serverKey)))
	}

	svc := &billingService{
		cfg: &config.Config{
			Gateway: config.GatewayConfig{ServerKey: serverKey},
		},
	}

	valid := &dto.MidtransWebhookRequest{
		OrderId:      "order-1",
		StatusCode:   "200",
		GrossAmount:  "3.00",
		SignatureKey: sign("order-1", "200", "3.00"),
	}
	if err := svc.verifySignature(valid); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}

	tampered := &dto.MidtransWebhookRequest{
		OrderId:      "order-1",
		StatusCode:   "200",
		GrossAmount:  "300.00", // amount altered after signing
		SignatureKey: valid.SignatureKey,
	}
	if err := svc.verifySignature(tampered); err != ErrInvalidSignature {
		t.Errorf("tampered payload error = %v, want ErrInvalidSignature", err)
	}

	unconfigured := &billingService{cfg: &config.Config{}}
	if err := unconfigured.verifySignature(valid); err == nil {
		t.Error("missing server key must fail closed")
	}
}
