package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	JobIDWebhookProcess = "tendlc.webhook.process"
	JobIDCampaignSubmit = "tendlc.campaign.submit"

	JobParamTenantID = "tenant_id"
	JobParamBrandID  = "brand_id"
	JobParamEventID  = "event_id"
	JobParamPayload  = "payload"

	DedupPolicyDrop = "drop"

	SourceOperator = "operator"
	SourceWebhook  = "webhook"
	SourcePoller   = "poller"
	SourceWorker   = "worker"
)

const maxCompareAndSwapAttempts = 5

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	errorTranslator   ErrorTranslator
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	store             RecordStore
	registry          RegistryClient
	enqueuer          JobEnqueuer
	notifier          StatusNotifier
	validate          *validator.Validate
	now               func() time.Time
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	RecordStore       RecordStore
	RegistryClient    RegistryClient
	JobEnqueuer       JobEnqueuer
	StatusNotifier    StatusNotifier
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("tendlc", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("tendlc"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.errorTranslator == nil {
		builder.errorTranslator = defaultErrorTranslator
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.statusNotifier == nil {
		builder.statusNotifier = NopStatusNotifier{}
	}
	if builder.now == nil {
		builder.now = func() time.Time {
			return time.Now().UTC()
		}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.recordStore == nil && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if stores != nil {
				builder.recordStore = stores.RecordStore()
			}
		}
	}
	if builder.recordStore == nil {
		builder.recordStore = NewMemoryRecordStore()
	}
	if builder.jobEnqueuer == nil {
		builder.jobEnqueuer = NewMemoryJobQueue()
	}

	validate, err := newProfileValidator()
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		errorTranslator:   builder.errorTranslator,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		store:             builder.recordStore,
		registry:          builder.registryClient,
		enqueuer:          builder.jobEnqueuer,
		notifier:          builder.statusNotifier,
		validate:          validate,
		now:               builder.now,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		RecordStore:       s.store,
		RegistryClient:    s.registry,
		JobEnqueuer:       s.enqueuer,
		StatusNotifier:    s.notifier,
	}
}

func (s *Service) GetRegistration(ctx context.Context, tenantID string) (RegistrationRecord, error) {
	if s == nil || s.store == nil {
		return RegistrationRecord{}, fmt.Errorf("core: record store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return RegistrationRecord{}, s.mapError(fmt.Errorf("core: tenant id is required"))
	}
	record, err := s.store.Get(ctx, tenantID)
	if errors.Is(err, ErrRecordNotFound) {
		return NewRegistrationRecord(tenantID, s.clock()), nil
	}
	return record, s.mapError(err)
}

// Mutation edits a copy of the current record. Returning false skips the
// write. Returning ErrInvalidRegistrationTransition drops the change.
type Mutation func(record *RegistrationRecord) (bool, error)

// UpdateRegistration loads the record behind key, applies mutate and writes
// the result with compare-and-set, re-applying on version conflicts.
func (s *Service) UpdateRegistration(
	ctx context.Context,
	key RecordKey,
	source string,
	mutate Mutation,
) (RegistrationRecord, bool, error) {
	return s.mutateRecord(ctx, key, source, false, mutate)
}

func (s *Service) mutateRecord(
	ctx context.Context,
	key RecordKey,
	source string,
	createMissing bool,
	mutate Mutation,
) (RegistrationRecord, bool, error) {
	if s == nil || s.store == nil {
		return RegistrationRecord{}, false, fmt.Errorf("core: record store is not configured")
	}
	if mutate == nil {
		return RegistrationRecord{}, false, fmt.Errorf("core: record mutation is required")
	}
	if key.String() == "" {
		return RegistrationRecord{}, false, fmt.Errorf("core: record key is required")
	}

	for attempt := 0; attempt < maxCompareAndSwapAttempts; attempt++ {
		current, err := s.loadRecord(ctx, key)
		if errors.Is(err, ErrRecordNotFound) && createMissing && strings.TrimSpace(key.TenantID) != "" {
			current, err = NewRegistrationRecord(key.TenantID, s.clock()), nil
		}
		if err != nil {
			return RegistrationRecord{}, false, err
		}

		next := current
		changed, err := mutate(&next)
		if errors.Is(err, ErrInvalidRegistrationTransition) {
			fields := key.Fields()
			fields["tenant_id"] = current.TenantID
			fields["source"] = source
			fields["error"] = err.Error()
			s.logWarn(ctx, "registration transition skipped", fields)
			return current, false, nil
		}
		if err != nil {
			return current, false, err
		}
		if !changed {
			return current, false, nil
		}

		saved, err := s.store.CompareAndSwap(ctx, next, current.Version)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			fields := key.Fields()
			fields["tenant_id"] = current.TenantID
			fields["source"] = source
			fields["status"] = string(next.Status)
			fields["error"] = err.Error()
			s.logError(ctx, "registration record write failed", fields)
			return current, false, err
		}
		if saved.Status != current.Status {
			s.notifyStatusChange(ctx, StatusChange{
				TenantID: saved.TenantID,
				From:     current.Status,
				To:       saved.Status,
				Reason:   saved.RejectionReason,
				Source:   source,
				At:       saved.UpdatedAt,
			})
		}
		return saved, true, nil
	}
	return RegistrationRecord{}, false, fmt.Errorf("%w: %s after %d attempts", ErrVersionConflict, key.String(), maxCompareAndSwapAttempts)
}

func (s *Service) loadRecord(ctx context.Context, key RecordKey) (RegistrationRecord, error) {
	switch {
	case strings.TrimSpace(key.TenantID) != "":
		return s.store.Get(ctx, strings.TrimSpace(key.TenantID))
	case strings.TrimSpace(key.BrandID) != "":
		return s.store.FindByBrandID(ctx, strings.TrimSpace(key.BrandID))
	case strings.TrimSpace(key.CampaignID) != "":
		return s.store.FindByCampaignID(ctx, strings.TrimSpace(key.CampaignID))
	case strings.TrimSpace(key.PhoneNumber) != "":
		return s.store.FindByPhoneNumber(ctx, strings.TrimSpace(key.PhoneNumber))
	default:
		return RegistrationRecord{}, fmt.Errorf("core: record key is required")
	}
}

func (s *Service) notifyStatusChange(ctx context.Context, change StatusChange) {
	if s.notifier == nil {
		return
	}
	s.recordCounter(ctx, "tendlc.status_change.total", 1, map[string]string{
		"from":   string(change.From),
		"to":     string(change.To),
		"source": change.Source,
	})
	if err := s.notifier.NotifyStatusChange(ctx, change); err != nil {
		s.logError(ctx, "status change notification failed", map[string]any{
			"tenant_id": change.TenantID,
			"from":      string(change.From),
			"to":        string(change.To),
			"error":     err.Error(),
		})
	}
}

// ScheduleCampaignSubmission queues campaign submission for a verified brand.
// Duplicate schedules for the same tenant and brand collapse into one job
// while that job is waiting or running. A finished job does not block a
// later schedule.
func (s *Service) ScheduleCampaignSubmission(ctx context.Context, tenantID string, brandID string) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("core: job enqueuer is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	brandID = strings.TrimSpace(brandID)
	if tenantID == "" {
		return fmt.Errorf("core: tenant id is required")
	}
	err := s.enqueuer.Enqueue(ctx, &JobExecutionMessage{
		JobID: JobIDCampaignSubmit,
		Parameters: map[string]any{
			JobParamTenantID: tenantID,
			JobParamBrandID:  brandID,
		},
		IdempotencyKey: "campaign.submit:" + tenantID + ":" + brandID,
		DedupPolicy:    DedupPolicyDrop,
	})
	if err != nil {
		s.logError(ctx, "campaign submission enqueue failed", map[string]any{
			"tenant_id": tenantID,
			"brand_id":  brandID,
			"error":     err.Error(),
		})
		return err
	}
	return nil
}

// CampaignSubmitHandler runs queued campaign submissions.
func (s *Service) CampaignSubmitHandler() JobHandler {
	return func(ctx context.Context, msg *JobExecutionMessage) error {
		if msg == nil {
			return fmt.Errorf("core: job message is required")
		}
		tenantID := strings.TrimSpace(fmt.Sprint(msg.Parameters[JobParamTenantID]))
		if tenantID == "" || tenantID == "<nil>" {
			return fmt.Errorf("core: campaign job is missing %s", JobParamTenantID)
		}
		_, err := s.SubmitCampaign(ctx, tenantID)
		return err
	}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) translate(err error) string {
	if s != nil && s.errorTranslator != nil {
		if reason := strings.TrimSpace(s.errorTranslator(err)); reason != "" {
			return reason
		}
	}
	return defaultErrorTranslator(err)
}

func (s *Service) clock() time.Time {
	if s != nil && s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}
