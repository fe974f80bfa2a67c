package store

import (
	"testing"
)

func TestBillingActivateAndLookup(t *testing.T) {
	db := openTestDB(t)
	bs := NewBillingStore(db)
	u := createTestUser(t, db, "test@example.com")

	if got, err := bs.GetByUser(u.ID); err != nil || got != nil {
		t.Fatalf("GetByUser before checkout = %v, %v; want nil, nil", got, err)
	}

	if err := bs.SetCustomer(u.ID, "cus_123"); err != nil {
		t.Fatalf("set customer: %v", err)
	}
	if err := bs.Activate(u.ID, "cus_123", "sub_456", "pro"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	sub, err := bs.GetByStripeSubscriptionID("sub_456")
	if err != nil {
		t.Fatalf("get by stripe id: %v", err)
	}
	if sub == nil {
		t.Fatal("expected subscription, got nil")
	}
	if sub.UserID != u.ID {
		t.Errorf("user_id = %d, want %d", sub.UserID, u.ID)
	}
	if sub.Status != "active" {
		t.Errorf("status = %q, want %q", sub.Status, "active")
	}
	if sub.StripeCustomerID == nil || *sub.StripeCustomerID != "cus_123" {
		t.Errorf("customer = %v, want cus_123", sub.StripeCustomerID)
	}
}

func TestBillingStatusAndCancelFlag(t *testing.T) {
	db := openTestDB(t)
	bs := NewBillingStore(db)
	u := createTestUser(t, db, "test@example.com")

	if err := bs.Activate(u.ID, "cus_1", "sub_1", "pro"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	sub, _ := bs.GetByUser(u.ID)

	if err := bs.UpdateStatus(sub.ID, "past_due"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := bs.SetCancelAtPeriodEnd(sub.ID, true); err != nil {
		t.Fatalf("set cancel: %v", err)
	}

	got, _ := bs.GetByUser(u.ID)
	if got.Status != "past_due" {
		t.Errorf("status = %q, want %q", got.Status, "past_due")
	}
	if !got.CancelAtPeriodEnd {
		t.Error("expected cancel_at_period_end")
	}
}
