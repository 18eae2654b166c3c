package tendlc

import "github.com/goliatone/go-tendlc/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type RegistrationRecord = core.RegistrationRecord

type RegistrationStatus = core.RegistrationStatus

type RegisterBrandRequest = core.RegisterBrandRequest

type Profile = core.Profile

type RecordStore = core.RecordStore

type RegistryClient = core.RegistryClient

type StatusNotifier = core.StatusNotifier

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithErrorTranslator   = core.WithErrorTranslator
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithRecordStore       = core.WithRecordStore
	WithRegistryClient    = core.WithRegistryClient
	WithJobEnqueuer       = core.WithJobEnqueuer
	WithStatusNotifier    = core.WithStatusNotifier
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
