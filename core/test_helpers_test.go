package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testNow}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubRegistry struct {
	mu sync.Mutex

	brandResult    BrandSubmissionResult
	brandErr       error
	campaignResult CampaignSubmissionResult
	campaignErr    error
	statusResults  map[string]BrandStatusResult
	statusErr      error

	brandCalls     []BrandSubmission
	campaignCalls  []CampaignSubmission
	statusRequests []string
}

func (s *stubRegistry) SubmitBrand(_ context.Context, in BrandSubmission) (BrandSubmissionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brandCalls = append(s.brandCalls, in)
	return s.brandResult, s.brandErr
}

func (s *stubRegistry) SubmitCampaign(_ context.Context, in CampaignSubmission) (CampaignSubmissionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaignCalls = append(s.campaignCalls, in)
	return s.campaignResult, s.campaignErr
}

func (s *stubRegistry) GetBrandStatus(_ context.Context, brandID string) (BrandStatusResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusRequests = append(s.statusRequests, brandID)
	if s.statusErr != nil {
		return BrandStatusResult{}, s.statusErr
	}
	if result, ok := s.statusResults[brandID]; ok {
		return result, nil
	}
	return BrandStatusResult{BrandID: brandID, Status: "PENDING"}, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []StatusChange
}

func (n *recordingNotifier) NotifyStatusChange(_ context.Context, change StatusChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
	return nil
}

// conflictingStore fails the first N compare-and-swap calls with a version
// conflict to simulate a concurrent writer.
type conflictingStore struct {
	*MemoryRecordStore
	conflicts int
	calls     int
}

func (s *conflictingStore) CompareAndSwap(ctx context.Context, record RegistrationRecord, expected int64) (RegistrationRecord, error) {
	s.calls++
	if s.conflicts > 0 {
		s.conflicts--
		return RegistrationRecord{}, ErrVersionConflict
	}
	return s.MemoryRecordStore.CompareAndSwap(ctx, record, expected)
}

type failingStore struct {
	*MemoryRecordStore
}

func (s failingStore) CompareAndSwap(context.Context, RegistrationRecord, int64) (RegistrationRecord, error) {
	return RegistrationRecord{}, errors.New("disk full")
}

type testHarness struct {
	service  *Service
	store    *MemoryRecordStore
	queue    *MemoryJobQueue
	registry *stubRegistry
	notifier *recordingNotifier
	clock    *testClock
}

func newTestHarness(t *testing.T, opts ...Option) *testHarness {
	t.Helper()
	h := &testHarness{
		store:    NewMemoryRecordStore(),
		registry: &stubRegistry{},
		notifier: &recordingNotifier{},
		clock:    newTestClock(),
	}
	h.queue = NewMemoryJobQueue().WithClock(h.clock.Now)
	base := []Option{
		WithRecordStore(h.store),
		WithRegistryClient(h.registry),
		WithJobEnqueuer(h.queue),
		WithStatusNotifier(h.notifier),
		WithClock(h.clock.Now),
	}
	svc, err := NewService(Config{}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.service = svc
	return h
}

func (h *testHarness) seed(t *testing.T, record RegistrationRecord) RegistrationRecord {
	t.Helper()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = h.clock.Now()
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = h.clock.Now()
	}
	saved, err := h.store.CompareAndSwap(context.Background(), record, 0)
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return saved
}

func (h *testHarness) record(t *testing.T, tenantID string) RegistrationRecord {
	t.Helper()
	record, err := h.store.Get(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("get record %s: %v", tenantID, err)
	}
	return record
}

func validProfile() Profile {
	return Profile{
		OrganizationName: "Grace Chapel",
		ContactEmail:     "pastor@grace.org",
	}
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}
