package core

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition_PartialOrder(t *testing.T) {
	cases := []struct {
		from RegistrationStatus
		to   RegistrationStatus
		want bool
	}{
		{StatusNone, StatusPending, true},
		{StatusPending, StatusBrandVerified, true},
		{StatusPending, StatusPending, true},
		{StatusBrandVerified, StatusPending, false},
		{StatusBrandVerified, StatusCampaignPending, true},
		{StatusCampaignPending, StatusBrandVerified, false},
		{StatusCampaignPending, StatusApproved, true},
		{StatusCampaignPending, StatusRejected, true},
		{StatusApproved, StatusPending, false},
		{StatusApproved, StatusRejected, false},
		{StatusApproved, StatusApproved, true},
		{StatusRejected, StatusPending, false},
		{StatusRejected, StatusRejected, true},
		{StatusRejected, StatusCampaignPending, true},
		{StatusPending, RegistrationStatus("bogus"), false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestRegistrationRecordTransitionTo_TimestampsAndReason(t *testing.T) {
	now := time.Now().UTC()
	record := NewRegistrationRecord("tenant_1", now)

	if err := record.TransitionTo(StatusPending, "", now); err != nil {
		t.Fatalf("expected none->pending: %v", err)
	}
	if record.RegisteredAt == nil || !record.RegisteredAt.Equal(now) {
		t.Fatalf("expected registered_at to be set on first pending")
	}

	later := now.Add(time.Hour)
	if err := record.TransitionTo(StatusRejected, "  carrier said no ", later); err != nil {
		t.Fatalf("expected pending->rejected: %v", err)
	}
	if record.RejectionReason != "carrier said no" {
		t.Fatalf("expected trimmed rejection reason, got %q", record.RejectionReason)
	}

	if err := record.TransitionTo(StatusCampaignPending, "", later); err != nil {
		t.Fatalf("expected rejected->campaign_pending: %v", err)
	}
	if record.RejectionReason != "" {
		t.Fatalf("expected rejection reason to clear outside rejected")
	}

	if err := record.TransitionTo(StatusApproved, "", later); err != nil {
		t.Fatalf("expected campaign_pending->approved: %v", err)
	}
	if record.ApprovedAt == nil || !record.ApprovedAt.Equal(later) {
		t.Fatalf("expected approved_at to be set")
	}
	if !record.UsingElevatedDeliveryProfile || record.DeliveryRate != ElevatedDeliveryRate {
		t.Fatalf("expected elevated delivery profile after approval")
	}

	err := record.TransitionTo(StatusPending, "", later.Add(time.Hour))
	if !errors.Is(err, ErrInvalidRegistrationTransition) {
		t.Fatalf("expected invalid transition error, got: %v", err)
	}
	if record.Status != StatusApproved {
		t.Fatalf("expected approved to be absorbing, got %q", record.Status)
	}
}

func TestRegistrationRecordRestart(t *testing.T) {
	now := time.Now().UTC()
	record := RegistrationRecord{TenantID: "tenant_1", Status: StatusRejected, RejectionReason: "bad ein"}
	if err := record.Restart(now); err != nil {
		t.Fatalf("expected rejected record to restart: %v", err)
	}
	if record.Status != StatusPending || record.RejectionReason != "" {
		t.Fatalf("expected pending without reason, got %q / %q", record.Status, record.RejectionReason)
	}

	record.Status = StatusBrandVerified
	if err := record.Restart(now); !errors.Is(err, ErrInvalidRegistrationTransition) {
		t.Fatalf("expected restart from brand_verified to fail, got %v", err)
	}
}

func TestRegistrationRecordAssignBrandIsSetOnce(t *testing.T) {
	record := RegistrationRecord{TenantID: "tenant_1"}
	if !record.AssignBrand("B1", "TCR1") {
		t.Fatalf("expected first assignment to change the record")
	}
	if record.AssignBrand("B2", "TCR2") {
		t.Fatalf("expected reassignment to be ignored")
	}
	if record.BrandID != "B1" || record.TCRBrandID != "TCR1" {
		t.Fatalf("expected original ids, got %q/%q", record.BrandID, record.TCRBrandID)
	}
}

func TestRegistrationRecordSuspensionLifecycle(t *testing.T) {
	first := time.Now().UTC()
	record := RegistrationRecord{TenantID: "tenant_1", Status: StatusApproved}

	record.Suspend("dormant", first)
	record.Suspend("still dormant", first.Add(time.Hour))
	if !record.CampaignSuspended || record.CampaignSuspendedAt == nil || !record.CampaignSuspendedAt.Equal(first) {
		t.Fatalf("expected first suspension timestamp to be kept")
	}
	if record.Status != StatusApproved {
		t.Fatalf("expected suspension to leave status untouched")
	}

	record.NumberAssignmentError = "number busy"
	record.MarkNumberAssigned(first.Add(2 * time.Hour))
	if record.CampaignSuspended || record.CampaignSuspendedAt != nil || record.CampaignSuspendedReason != "" {
		t.Fatalf("expected assignment to clear suspension")
	}
	if record.NumberAssignedAt == nil || record.NumberAssignmentError != "" {
		t.Fatalf("expected assignment timestamp and cleared error")
	}

	record.MarkNumberUnassigned(first.Add(3 * time.Hour))
	if record.NumberAssignedAt != nil {
		t.Fatalf("expected unassignment to clear number_assigned_at")
	}
}

func TestBrandStatusResultOutcome(t *testing.T) {
	cases := []struct {
		result BrandStatusResult
		want   BrandOutcome
	}{
		{BrandStatusResult{IdentityStatus: "VERIFIED"}, BrandOutcomeVerified},
		{BrandStatusResult{IdentityStatus: "vetted_verified"}, BrandOutcomeVerified},
		{BrandStatusResult{IdentityStatus: "FAILED"}, BrandOutcomeRejected},
		{BrandStatusResult{Status: "REGISTRATION_FAILED"}, BrandOutcomeRejected},
		{BrandStatusResult{Status: "REGISTRATION_PENDING", IdentityStatus: "UNVERIFIED"}, BrandOutcomePending},
		{BrandStatusResult{}, BrandOutcomePending},
	}
	for _, tc := range cases {
		if got := tc.result.Outcome(); got != tc.want {
			t.Fatalf("outcome for %+v = %q, want %q", tc.result, got, tc.want)
		}
	}
}

func TestRecordKeyString(t *testing.T) {
	if got := (RecordKey{BrandID: " B1 "}).String(); got != "brand:B1" {
		t.Fatalf("expected brand key, got %q", got)
	}
	if got := (RecordKey{TenantID: "t1", BrandID: "B1"}).String(); got != "tenant:t1" {
		t.Fatalf("expected tenant key to win, got %q", got)
	}
	if got := (RecordKey{}).String(); got != "" {
		t.Fatalf("expected empty key, got %q", got)
	}
}
