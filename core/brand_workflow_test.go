package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func TestRegisterBrand_SubmitsAndPersistsPending(t *testing.T) {
	h := newTestHarness(t)
	h.registry.brandResult = BrandSubmissionResult{BrandID: "B1", TCRBrandID: "TCR1"}

	record, err := h.service.RegisterBrand(context.Background(), RegisterBrandRequest{
		TenantID:    "tenant_1",
		Profile:     validProfile(),
		PhoneNumber: "+15125550100",
	})
	if err != nil {
		t.Fatalf("register brand: %v", err)
	}
	if record.Status != StatusPending || record.BrandID != "B1" || record.TCRBrandID != "TCR1" {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.RegisteredAt == nil || !record.RegisteredAt.Equal(testNow) {
		t.Fatalf("expected registered_at=now, got %v", record.RegisteredAt)
	}
	if record.NextCheckAt == nil || !record.NextCheckAt.Equal(testNow.Add(15*time.Minute)) {
		t.Fatalf("expected first recheck in 15 minutes, got %v", record.NextCheckAt)
	}
	if record.PhoneNumber != "+15125550100" {
		t.Fatalf("expected phone number to be stored")
	}

	if len(h.registry.brandCalls) != 1 {
		t.Fatalf("expected one brand submission, got %d", len(h.registry.brandCalls))
	}
	submitted := h.registry.brandCalls[0]
	if submitted.DisplayName != "Grace Chapel" || submitted.Email != "pastor@grace.org" {
		t.Fatalf("unexpected submission %+v", submitted)
	}
	if submitted.EntityType != "NON_PROFIT" || submitted.Vertical != "NGO" || submitted.Country != "US" {
		t.Fatalf("expected configured brand defaults, got %+v", submitted)
	}

	if len(h.notifier.changes) != 1 || h.notifier.changes[0].To != StatusPending {
		t.Fatalf("expected pending status change notification, got %+v", h.notifier.changes)
	}
}

func TestRegisterBrand_InvalidEmailNeverCallsRegistry(t *testing.T) {
	h := newTestHarness(t)
	h.registry.brandResult = BrandSubmissionResult{BrandID: "B1"}

	record, err := h.service.RegisterBrand(context.Background(), RegisterBrandRequest{
		TenantID: "tenant_1",
		Profile:  Profile{OrganizationName: "Grace Chapel", ContactEmail: "not-an-email"},
	})
	if err != nil {
		t.Fatalf("register brand: %v", err)
	}
	if len(h.registry.brandCalls) != 0 {
		t.Fatalf("expected 0 registry calls, got %d", len(h.registry.brandCalls))
	}
	if record.Status != StatusRejected {
		t.Fatalf("expected rejected, got %q", record.Status)
	}
	if !strings.HasPrefix(record.RejectionReason, "Validation error: ") || !strings.Contains(record.RejectionReason, "contactEmail") {
		t.Fatalf("unexpected rejection reason %q", record.RejectionReason)
	}
}

func TestRegisterBrand_ValidatesOptionalFieldsOnlyWhenPresent(t *testing.T) {
	h := newTestHarness(t)

	cases := []struct {
		name    string
		profile Profile
		field   string
	}{
		{name: "missing name", profile: Profile{ContactEmail: "a@b.org"}, field: "organizationName"},
		{name: "long name", profile: Profile{OrganizationName: strings.Repeat("x", 101), ContactEmail: "a@b.org"}, field: "organizationName"},
		{name: "bad ein", profile: Profile{OrganizationName: "Org", ContactEmail: "a@b.org", EIN: "12-34"}, field: "ein"},
		{name: "bad phone", profile: Profile{OrganizationName: "Org", ContactEmail: "a@b.org", Phone: "555-0100"}, field: "phone"},
		{name: "bad state", profile: Profile{OrganizationName: "Org", ContactEmail: "a@b.org", State: "Texas"}, field: "state"},
		{name: "bad postal code", profile: Profile{OrganizationName: "Org", ContactEmail: "a@b.org", PostalCode: "7870"}, field: "postalCode"},
	}
	for _, tc := range cases {
		if detail := h.service.ValidateProfile(tc.profile); !strings.Contains(detail, tc.field) {
			t.Fatalf("%s: expected detail naming %s, got %q", tc.name, tc.field, detail)
		}
	}

	full := Profile{
		OrganizationName: "Grace Chapel",
		ContactEmail:     "pastor@grace.org",
		EIN:              "12-3456789",
		Phone:            "+15125550100",
		Street:           "1 Main St",
		City:             "Austin",
		State:            "tx",
		PostalCode:       "78701-1234",
		Country:          "us",
		Website:          "https://grace.org",
	}
	if detail := h.service.ValidateProfile(full); detail != "" {
		t.Fatalf("expected full profile to validate, got %q", detail)
	}
}

func TestRegisterBrand_RegistryErrorPersistsTranslatedRejection(t *testing.T) {
	h := newTestHarness(t, WithErrorTranslator(func(error) string {
		return "Invalid phone number format"
	}))
	h.registry.brandErr = errors.New("registry: status 400")

	record, err := h.service.RegisterBrand(context.Background(), RegisterBrandRequest{
		TenantID: "tenant_1",
		Profile:  validProfile(),
	})
	if err != nil {
		t.Fatalf("register brand: %v", err)
	}
	if record.Status != StatusRejected || record.RejectionReason != "Invalid phone number format" {
		t.Fatalf("expected translated rejection, got %q / %q", record.Status, record.RejectionReason)
	}
}

func TestRegisterBrand_MissingBrandIDIsRejection(t *testing.T) {
	h := newTestHarness(t)
	h.registry.brandResult = BrandSubmissionResult{}

	record, err := h.service.RegisterBrand(context.Background(), RegisterBrandRequest{
		TenantID: "tenant_1",
		Profile:  validProfile(),
	})
	if err != nil {
		t.Fatalf("register brand: %v", err)
	}
	if record.Status != StatusRejected || record.RejectionReason != noBrandIDReason {
		t.Fatalf("expected missing brand id rejection, got %+v", record)
	}
}

func TestRegisterBrand_ResubmitsAfterRejection(t *testing.T) {
	h := newTestHarness(t)
	h.seed(t, RegistrationRecord{TenantID: "tenant_1", Status: StatusRejected, RejectionReason: "bad ein"})
	h.registry.brandResult = BrandSubmissionResult{BrandID: "B9"}

	record, err := h.service.RegisterBrand(context.Background(), RegisterBrandRequest{
		TenantID: "tenant_1",
		Profile:  validProfile(),
	})
	if err != nil {
		t.Fatalf("register brand: %v", err)
	}
	if record.Status != StatusPending || record.BrandID != "B9" || record.RejectionReason != "" {
		t.Fatalf("expected resubmission to restart at pending, got %+v", record)
	}
}

func TestRegisterBrand_SkipsTenantsAlreadyPastBrandStage(t *testing.T) {
	h := newTestHarness(t)
	h.seed(t, RegistrationRecord{TenantID: "tenant_1", Status: StatusApproved, BrandID: "B1", CampaignID: "C1"})

	record, err := h.service.RegisterBrand(context.Background(), RegisterBrandRequest{
		TenantID: "tenant_1",
		Profile:  validProfile(),
	})
	if err != nil {
		t.Fatalf("register brand: %v", err)
	}
	if record.Status != StatusApproved {
		t.Fatalf("expected approved record untouched, got %q", record.Status)
	}
	if len(h.registry.brandCalls) != 0 {
		t.Fatalf("expected no registry call for approved tenant")
	}
}

func TestRegisterBrand_PersistenceFailureIsReturned(t *testing.T) {
	store := failingStore{MemoryRecordStore: NewMemoryRecordStore()}
	registry := &stubRegistry{brandResult: BrandSubmissionResult{BrandID: "B1"}}
	svc, err := NewService(Config{}, WithRecordStore(store), WithRegistryClient(registry))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.RegisterBrand(context.Background(), RegisterBrandRequest{
		TenantID: "tenant_1",
		Profile:  validProfile(),
	})
	if err == nil {
		t.Fatalf("expected persistence error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if len(registry.brandCalls) != 1 {
		t.Fatalf("expected registry to be called before the write failed")
	}
}
