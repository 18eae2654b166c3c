package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
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
	recordStore       RecordStore
	registryClient    RegistryClient
	jobEnqueuer       JobEnqueuer
	statusNotifier    StatusNotifier
	now               func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

// WithErrorTranslator sets how registry failures become rejection reasons.
func WithErrorTranslator(translator ErrorTranslator) Option {
	return func(b *serviceBuilder) {
		b.errorTranslator = translator
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithRecordStore(store RecordStore) Option {
	return func(b *serviceBuilder) {
		b.recordStore = store
	}
}

func WithRegistryClient(client RegistryClient) Option {
	return func(b *serviceBuilder) {
		b.registryClient = client
	}
}

func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *serviceBuilder) {
		b.jobEnqueuer = enqueuer
	}
}

func WithStatusNotifier(notifier StatusNotifier) Option {
	return func(b *serviceBuilder) {
		b.statusNotifier = notifier
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("tendlc", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		errorTranslator: defaultErrorTranslator,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		statusNotifier:  NopStatusNotifier{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticConfigLoader serves a fixed raw configuration map.
func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap flattens a config into a go-options layer. Zero values are
// skipped unless includeZero is set, so upper layers only override what
// they actually set.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "service_name", cfg.ServiceName, includeZero)

	registry := map[string]any{}
	putString(registry, "base_url", cfg.Registry.BaseURL, includeZero)
	putString(registry, "api_key", cfg.Registry.APIKey, includeZero)
	putInt(registry, "timeout_seconds", cfg.Registry.TimeoutSeconds, includeZero)
	putInt(registry, "max_attempts", cfg.Registry.MaxAttempts, includeZero)
	putInt(registry, "retry_base_millis", cfg.Registry.RetryBaseMillis, includeZero)
	putInt(registry, "max_jitter_millis", cfg.Registry.MaxJitterMillis, includeZero)
	putSection(layer, "registry", registry)

	webhooks := map[string]any{}
	putString(webhooks, "public_key", cfg.Webhooks.PublicKey, includeZero)
	putInt(webhooks, "tolerance_seconds", cfg.Webhooks.ToleranceSeconds, includeZero)
	putString(webhooks, "signature_header", cfg.Webhooks.SignatureHeader, includeZero)
	putString(webhooks, "timestamp_header", cfg.Webhooks.TimestampHeader, includeZero)
	putString(webhooks, "primary_url", cfg.Webhooks.PrimaryURL, includeZero)
	putString(webhooks, "failover_url", cfg.Webhooks.FailoverURL, includeZero)
	if includeZero || cfg.Webhooks.MaxBodyBytes != 0 {
		webhooks["max_body_bytes"] = cfg.Webhooks.MaxBodyBytes
	}
	putSection(layer, "webhooks", webhooks)

	brand := map[string]any{}
	putString(brand, "entity_type", cfg.Brand.EntityType, includeZero)
	putString(brand, "default_vertical", cfg.Brand.DefaultVertical, includeZero)
	putString(brand, "default_country", cfg.Brand.DefaultCountry, includeZero)
	putInt(brand, "first_check_minutes", cfg.Brand.FirstCheckMinutes, includeZero)
	putSection(layer, "brand", brand)

	campaign := map[string]any{}
	putString(campaign, "use_case", cfg.Campaign.UseCase, includeZero)
	putString(campaign, "description", cfg.Campaign.Description, includeZero)
	putString(campaign, "message_flow", cfg.Campaign.MessageFlow, includeZero)
	putString(campaign, "opt_in_message", cfg.Campaign.OptInMessage, includeZero)
	putString(campaign, "opt_out_message", cfg.Campaign.OptOutMessage, includeZero)
	putString(campaign, "help_message", cfg.Campaign.HelpMessage, includeZero)
	putSection(layer, "campaign", campaign)

	poller := map[string]any{}
	putBool(poller, "disabled", cfg.Poller.Disabled, includeZero)
	putInt(poller, "interval_seconds", cfg.Poller.IntervalSeconds, includeZero)
	putInt(poller, "recheck_minutes", cfg.Poller.RecheckMinutes, includeZero)
	putInt(poller, "batch_size", cfg.Poller.BatchSize, includeZero)
	putSection(layer, "poller", poller)

	queue := map[string]any{}
	putInt(queue, "max_attempts", cfg.Queue.MaxAttempts, includeZero)
	putInt(queue, "retry_initial_seconds", cfg.Queue.RetryInitialSeconds, includeZero)
	putInt(queue, "retry_max_seconds", cfg.Queue.RetryMaxSeconds, includeZero)
	putInt(queue, "lease_seconds", cfg.Queue.LeaseSeconds, includeZero)
	putInt(queue, "poll_interval_millis", cfg.Queue.PollIntervalMillis, includeZero)
	putInt(queue, "concurrency", cfg.Queue.Concurrency, includeZero)
	putSection(layer, "queue", queue)

	database := map[string]any{}
	putString(database, "driver", cfg.Database.Driver, includeZero)
	putString(database, "dsn", cfg.Database.DSN, includeZero)
	putBool(database, "debug", cfg.Database.Debug, includeZero)
	putSection(layer, "database", database)

	httpLayer := map[string]any{}
	putString(httpLayer, "listen_addr", cfg.HTTP.ListenAddr, includeZero)
	putBool(httpLayer, "disable_metrics", cfg.HTTP.DisableMetrics, includeZero)
	putSection(layer, "http", httpLayer)

	return layer
}

func putString(layer map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}

func putInt(layer map[string]any, key string, value int, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func putBool(layer map[string]any, key string, value bool, includeZero bool) {
	if includeZero || value {
		layer[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
