package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRecordStore is an in-process RecordStore used by default and in tests.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]RegistrationRecord
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: map[string]RegistrationRecord{}}
}

func (s *MemoryRecordStore) Get(_ context.Context, tenantID string) (RegistrationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[strings.TrimSpace(tenantID)]
	if !ok {
		return RegistrationRecord{}, ErrRecordNotFound
	}
	return record, nil
}

func (s *MemoryRecordStore) FindByBrandID(_ context.Context, brandID string) (RegistrationRecord, error) {
	return s.find(brandID, func(rec RegistrationRecord) string { return rec.BrandID })
}

func (s *MemoryRecordStore) FindByCampaignID(_ context.Context, campaignID string) (RegistrationRecord, error) {
	return s.find(campaignID, func(rec RegistrationRecord) string { return rec.CampaignID })
}

func (s *MemoryRecordStore) FindByPhoneNumber(_ context.Context, phoneNumber string) (RegistrationRecord, error) {
	return s.find(phoneNumber, func(rec RegistrationRecord) string { return rec.PhoneNumber })
}

func (s *MemoryRecordStore) find(value string, field func(RegistrationRecord) string) (RegistrationRecord, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return RegistrationRecord{}, ErrRecordNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.records {
		if field(record) == value {
			return record, nil
		}
	}
	return RegistrationRecord{}, ErrRecordNotFound
}

// ListDueForRecheck returns pending records whose next check is due, oldest first.
func (s *MemoryRecordStore) ListDueForRecheck(_ context.Context, now time.Time, limit int) ([]RegistrationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RegistrationRecord, 0)
	for _, record := range s.records {
		if record.Status != StatusPending || record.NextCheckAt == nil {
			continue
		}
		if record.NextCheckAt.After(now) {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextCheckAt.Equal(*out[j].NextCheckAt) {
			return out[i].TenantID < out[j].TenantID
		}
		return out[i].NextCheckAt.Before(*out[j].NextCheckAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryRecordStore) CompareAndSwap(
	_ context.Context,
	record RegistrationRecord,
	expectedVersion int64,
) (RegistrationRecord, error) {
	tenantID := strings.TrimSpace(record.TenantID)
	if tenantID == "" {
		return RegistrationRecord{}, fmt.Errorf("core: tenant id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[tenantID]
	switch {
	case !ok && expectedVersion != 0:
		return RegistrationRecord{}, ErrVersionConflict
	case ok && existing.Version != expectedVersion:
		return RegistrationRecord{}, ErrVersionConflict
	}
	if ok {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.TenantID = tenantID
	record.Version = expectedVersion + 1
	s.records[tenantID] = record
	return record, nil
}

var _ RecordStore = (*MemoryRecordStore)(nil)
