package webhooks

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-tendlc/core"
)

type recordedCall struct {
	name string
	args []string
}

type stubHandlers struct {
	calls []recordedCall
	err   error
}

func (s *stubHandlers) record(name string, args ...string) error {
	s.calls = append(s.calls, recordedCall{name: name, args: args})
	return s.err
}

func (s *stubHandlers) HandleBrandAdded(_ context.Context, brandID string, tcrBrandID string) error {
	return s.record("brand_added", brandID, tcrBrandID)
}

func (s *stubHandlers) HandleBrandIdentity(_ context.Context, brandID string, status string, description string) error {
	return s.record("brand_identity", brandID, status, description)
}

func (s *stubHandlers) HandleBrandVetting(_ context.Context, brandID string, status string) error {
	return s.record("brand_vetting", brandID, status)
}

func (s *stubHandlers) HandleCampaignUpdate(_ context.Context, campaignID string, brandID string, status string, reasons string) error {
	return s.record("campaign_update", campaignID, brandID, status, reasons)
}

func (s *stubHandlers) HandleCampaignEvent(_ context.Context, campaignID string, status string, description string) error {
	return s.record("campaign_event", campaignID, status, description)
}

func (s *stubHandlers) HandleNumberAssignment(_ context.Context, phone string, campaignID string, status string, reason string) error {
	return s.record("number_assignment", phone, campaignID, status, reason)
}

func TestRouter_DispatchesByEventType(t *testing.T) {
	handlers := &stubHandlers{}
	router := NewRouter(handlers, nil)
	ctx := context.Background()

	events := []Event{
		BrandAdded{BrandID: "B1"},
		BrandIdentityUpdate{BrandID: "B1", IdentityStatus: "VERIFIED"},
		BrandVettingUpdate{BrandID: "B1"},
		CampaignUpdate{CampaignID: "C1", CampaignStatus: "TCR_FAILED", FailureReasons: []string{"a", "b"}},
		CampaignNotice{CampaignID: "C1", Status: "DORMANT"},
		PhoneNumberAssignment{PhoneNumber: "+15125550100", Status: "ASSIGNED"},
	}
	for _, event := range events {
		if err := router.Route(ctx, event); err != nil {
			t.Fatalf("route %s: %v", event.Type(), err)
		}
	}

	expected := []string{"brand_added", "brand_identity", "brand_vetting", "campaign_update", "campaign_event", "number_assignment"}
	if len(handlers.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d", len(expected), len(handlers.calls))
	}
	for idx, name := range expected {
		if handlers.calls[idx].name != name {
			t.Fatalf("call %d: expected %s, got %s", idx, name, handlers.calls[idx].name)
		}
	}
	if reasons := handlers.calls[3].args[3]; reasons != "a; b" {
		t.Fatalf("expected joined failure reasons, got %q", reasons)
	}
}

func TestRouter_JobHandler(t *testing.T) {
	handlers := &stubHandlers{}
	handle := NewRouter(handlers, nil).JobHandler()
	ctx := context.Background()

	msg := &core.JobExecutionMessage{
		JobID: core.JobIDWebhookProcess,
		Parameters: map[string]any{
			core.JobParamEventID: "evt_1",
			core.JobParamPayload: `{"eventType":"BRAND_IDENTITY_STATUS_UPDATE","brandId":"B1","brandIdentityStatus":"VERIFIED"}`,
		},
	}
	if err := handle(ctx, msg); err != nil {
		t.Fatalf("handle job: %v", err)
	}
	if len(handlers.calls) != 1 || handlers.calls[0].args[1] != "VERIFIED" {
		t.Fatalf("expected identity handler call, got %+v", handlers.calls)
	}

	msg.Parameters[core.JobParamPayload] = `{"eventType":"SOMETHING_NEW"}`
	if err := handle(ctx, msg); err != nil {
		t.Fatalf("expected unknown payload to be dropped, got %v", err)
	}

	handlers.err = errors.New("database unavailable")
	msg.Parameters[core.JobParamPayload] = `{"eventType":"BRAND_ADD","brandId":"B1"}`
	if err := handle(ctx, msg); err == nil {
		t.Fatalf("expected handler failure to surface for retry")
	}
}

func TestRouter_EndToEndWithService(t *testing.T) {
	store := core.NewMemoryRecordStore()
	queue := core.NewMemoryJobQueue()
	service, err := core.NewService(core.Config{}, core.WithRecordStore(store), core.WithJobEnqueuer(queue))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	if _, err := store.CompareAndSwap(ctx, core.RegistrationRecord{TenantID: "t1", Status: core.StatusPending, BrandID: "B1"}, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	router := NewRouter(service, nil)

	steps := []string{
		`{"eventType":"BRAND_IDENTITY_STATUS_UPDATE","brandId":"B1","brandIdentityStatus":"VERIFIED"}`,
		`{"type":"TCR_CAMPAIGN_UPDATE","campaignId":"C1","brandId":"B1","campaignStatus":"MNO_PROVISIONED"}`,
		`{"eventType":"BRAND_ADD","brandId":"B1"}`,
		`{"type":"TELNYX_EVENT","status":"DORMANT","campaignId":"C1"}`,
	}
	for _, body := range steps {
		event, err := ParseEvent([]byte(body))
		if err != nil {
			t.Fatalf("parse %s: %v", body, err)
		}
		if err := router.Route(ctx, event); err != nil {
			t.Fatalf("route %s: %v", body, err)
		}
	}

	record, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != core.StatusApproved || record.ApprovedAt == nil || record.DeliveryRate != core.ElevatedDeliveryRate {
		t.Fatalf("expected approved record, got %+v", record)
	}
	if !record.CampaignSuspended {
		t.Fatalf("expected dormancy flag")
	}
	if queue.Len() != 1 {
		t.Fatalf("expected campaign submission queued once, got %d", queue.Len())
	}
}
