package tendlc

import (
	"context"
	"fmt"
	"testing"
	"time"

	tendlccommand "github.com/goliatone/go-tendlc/command"
	"github.com/goliatone/go-tendlc/core"
	tendlcquery "github.com/goliatone/go-tendlc/query"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, err := NewFacade(&stubFacadeService{}, WithRecheckLister(stubRecheckLister{}))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.RegisterBrand == nil || commands.SubmitCampaign == nil || commands.ReconcilePending == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.GetRegistration == nil || queries.DueForRecheck == nil {
		t.Fatalf("expected query handlers to be wired")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{}
	facade, err := NewFacade(svc, WithRecheckLister(stubRecheckLister{}))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if err := facade.Commands().SubmitCampaign.Execute(context.Background(), tendlccommand.SubmitCampaignMessage{
		TenantID: "tenant-1",
	}); err != nil {
		t.Fatalf("execute submit campaign: %v", err)
	}
	if svc.lastSubmittedTenant != "tenant-1" {
		t.Fatalf("unexpected submit campaign delegation: %q", svc.lastSubmittedTenant)
	}

	record, err := facade.Queries().GetRegistration.Query(context.Background(), tendlcquery.GetRegistrationMessage{
		TenantID: "tenant-1",
	})
	if err != nil {
		t.Fatalf("query registration: %v", err)
	}
	if record.Status != core.StatusCampaignPending {
		t.Fatalf("unexpected registration query result: %#v", record)
	}

	due, err := facade.Queries().DueForRecheck.Query(context.Background(), tendlcquery.DueForRecheckMessage{Limit: 10})
	if err != nil {
		t.Fatalf("query due records: %v", err)
	}
	if len(due) != 1 || due[0].TenantID != "tenant-due" {
		t.Fatalf("unexpected due records: %#v", due)
	}
}

func TestFacade_ResolvesRecheckListerFromServiceStore(t *testing.T) {
	store := core.NewMemoryRecordStore()
	past := time.Now().UTC().Add(-time.Minute)
	record := core.NewRegistrationRecord("tenant-1", past)
	record.Status = core.StatusPending
	record.BrandID = "brand-1"
	record.NextCheckAt = &past
	if _, err := store.CompareAndSwap(context.Background(), record, 0); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	svc, err := NewService(Config{}, WithRecordStore(store))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	due, err := facade.Queries().DueForRecheck.Query(context.Background(), tendlcquery.DueForRecheckMessage{})
	if err != nil {
		t.Fatalf("query due records: %v", err)
	}
	if len(due) != 1 || due[0].BrandID != "brand-1" {
		t.Fatalf("expected seeded record to be due, got %#v", due)
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected nil service to fail")
	}
}

type stubFacadeService struct {
	lastSubmittedTenant string
}

func (s *stubFacadeService) RegisterBrand(_ context.Context, req core.RegisterBrandRequest) (core.RegistrationRecord, error) {
	return core.RegistrationRecord{TenantID: req.TenantID, Status: core.StatusPending}, nil
}

func (s *stubFacadeService) SubmitCampaign(_ context.Context, tenantID string) (core.RegistrationRecord, error) {
	s.lastSubmittedTenant = tenantID
	return core.RegistrationRecord{TenantID: tenantID, Status: core.StatusCampaignPending}, nil
}

func (s *stubFacadeService) ReconcilePending(context.Context) (core.PollStats, error) {
	return core.PollStats{}, fmt.Errorf("not used")
}

func (s *stubFacadeService) GetRegistration(_ context.Context, tenantID string) (core.RegistrationRecord, error) {
	return core.RegistrationRecord{TenantID: tenantID, Status: core.StatusCampaignPending}, nil
}

type stubRecheckLister struct{}

func (stubRecheckLister) ListDueForRecheck(context.Context, time.Time, int) ([]core.RegistrationRecord, error) {
	return []core.RegistrationRecord{{TenantID: "tenant-due", Status: core.StatusPending}}, nil
}

var (
	_ CommandQueryService = (*stubFacadeService)(nil)
	_ CommandQueryService = (*core.Service)(nil)
)
