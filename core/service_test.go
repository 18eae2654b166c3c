package core

import (
	"context"
	"errors"
	"testing"
)

func TestUpdateRegistration_RetriesOnVersionConflict(t *testing.T) {
	store := &conflictingStore{MemoryRecordStore: NewMemoryRecordStore(), conflicts: 2}
	svc, err := NewService(Config{}, WithRecordStore(store))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := store.MemoryRecordStore.CompareAndSwap(context.Background(), RegistrationRecord{
		TenantID: "tenant_1",
		Status:   StatusPending,
		BrandID:  "B1",
	}, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}

	record, changed, err := svc.UpdateRegistration(context.Background(), RecordKey{BrandID: "B1"}, SourceWebhook,
		func(rec *RegistrationRecord) (bool, error) {
			return true, rec.TransitionTo(StatusBrandVerified, "", svc.clock())
		})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !changed || record.Status != StatusBrandVerified {
		t.Fatalf("expected brand_verified after retries, got %+v", record)
	}
	if store.calls != 3 {
		t.Fatalf("expected 3 compare-and-swap calls, got %d", store.calls)
	}
	if record.Version != 2 {
		t.Fatalf("expected version 2, got %d", record.Version)
	}
}

func TestUpdateRegistration_GivesUpAfterRepeatedConflicts(t *testing.T) {
	store := &conflictingStore{MemoryRecordStore: NewMemoryRecordStore(), conflicts: 100}
	svc, err := NewService(Config{}, WithRecordStore(store))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := store.MemoryRecordStore.CompareAndSwap(context.Background(), RegistrationRecord{TenantID: "tenant_1", Status: StatusPending}, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, _, err = svc.UpdateRegistration(context.Background(), RecordKey{TenantID: "tenant_1"}, SourcePoller,
		func(rec *RegistrationRecord) (bool, error) {
			return true, rec.TransitionTo(StatusRejected, "x", svc.clock())
		})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if store.calls != maxCompareAndSwapAttempts {
		t.Fatalf("expected %d attempts, got %d", maxCompareAndSwapAttempts, store.calls)
	}
}

func TestUpdateRegistration_NoBackwardJumpAfterApproval(t *testing.T) {
	h := newTestHarness(t)
	h.seed(t, RegistrationRecord{TenantID: "tenant_1", Status: StatusCampaignPending, BrandID: "B1", CampaignID: "C1"})

	approve := func(rec *RegistrationRecord) (bool, error) {
		return true, rec.TransitionTo(StatusApproved, "", h.clock.Now())
	}
	stalePending := func(rec *RegistrationRecord) (bool, error) {
		return true, rec.TransitionTo(StatusPending, "", h.clock.Now())
	}

	if _, _, err := h.service.UpdateRegistration(context.Background(), RecordKey{CampaignID: "C1"}, SourceWebhook, approve); err != nil {
		t.Fatalf("approve: %v", err)
	}
	record, changed, err := h.service.UpdateRegistration(context.Background(), RecordKey{BrandID: "B1"}, SourceWebhook, stalePending)
	if err != nil {
		t.Fatalf("stale update should be skipped, got %v", err)
	}
	if changed || record.Status != StatusApproved {
		t.Fatalf("expected approved to stick, got %q (changed=%v)", record.Status, changed)
	}
	if stored := h.record(t, "tenant_1"); stored.Status != StatusApproved {
		t.Fatalf("expected stored approved, got %q", stored.Status)
	}
}

func TestUpdateRegistration_UnknownKeyIsNotFound(t *testing.T) {
	h := newTestHarness(t)
	_, _, err := h.service.UpdateRegistration(context.Background(), RecordKey{PhoneNumber: "+15125550199"}, SourceWebhook,
		func(*RegistrationRecord) (bool, error) { return true, nil })
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateRegistration_UnchangedSkipsWriteAndNotification(t *testing.T) {
	h := newTestHarness(t)
	h.seed(t, RegistrationRecord{TenantID: "tenant_1", Status: StatusPending, BrandID: "B1"})

	_, changed, err := h.service.UpdateRegistration(context.Background(), RecordKey{BrandID: "B1"}, SourceWebhook,
		func(rec *RegistrationRecord) (bool, error) { return rec.AssignBrand("B1", ""), nil })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if changed {
		t.Fatalf("expected no write for a repeated brand id")
	}
	if record := h.record(t, "tenant_1"); record.Version != 1 {
		t.Fatalf("expected version to stay at 1, got %d", record.Version)
	}
	if len(h.notifier.changes) != 0 {
		t.Fatalf("expected no notifications")
	}
}

func TestGetRegistration_ReturnsImplicitNoneRecord(t *testing.T) {
	h := newTestHarness(t)
	record, err := h.service.GetRegistration(context.Background(), "tenant_x")
	if err != nil {
		t.Fatalf("get registration: %v", err)
	}
	if record.Status != StatusNone || record.DeliveryRate != DefaultDeliveryRate || record.Version != 0 {
		t.Fatalf("unexpected implicit record %+v", record)
	}
	if _, err := h.service.GetRegistration(context.Background(), " "); err == nil {
		t.Fatalf("expected tenant id error")
	}
}

func TestEndToEnd_BrandToApproval(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.registry.brandResult = BrandSubmissionResult{BrandID: "B1"}
	h.registry.campaignResult = CampaignSubmissionResult{CampaignID: "C1"}

	if _, err := h.service.RegisterBrand(ctx, RegisterBrandRequest{TenantID: "tenant_1", Profile: validProfile()}); err != nil {
		t.Fatalf("register brand: %v", err)
	}
	if _, _, err := h.service.UpdateRegistration(ctx, RecordKey{BrandID: "B1"}, SourceWebhook, func(rec *RegistrationRecord) (bool, error) {
		return true, rec.TransitionTo(StatusBrandVerified, "", h.clock.Now())
	}); err != nil {
		t.Fatalf("verify brand: %v", err)
	}
	if _, err := h.service.SubmitCampaign(ctx, "tenant_1"); err != nil {
		t.Fatalf("submit campaign: %v", err)
	}
	record, _, err := h.service.UpdateRegistration(ctx, RecordKey{CampaignID: "C1"}, SourceWebhook, func(rec *RegistrationRecord) (bool, error) {
		return true, rec.TransitionTo(StatusApproved, "", h.clock.Now())
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if record.Status != StatusApproved || record.ApprovedAt == nil || record.DeliveryRate != ElevatedDeliveryRate {
		t.Fatalf("unexpected final record %+v", record)
	}

	var path []RegistrationStatus
	for _, change := range h.notifier.changes {
		path = append(path, change.To)
	}
	want := []RegistrationStatus{StatusPending, StatusBrandVerified, StatusCampaignPending, StatusApproved}
	if len(path) != len(want) {
		t.Fatalf("expected notifications %v, got %v", want, path)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("expected notifications %v, got %v", want, path)
		}
	}
}
