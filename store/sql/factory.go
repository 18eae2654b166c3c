package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-tendlc/core"
)

type RepositoryFactory struct {
	db *bun.DB

	registrationStore *RegistrationStore
	jobQueue          *JobQueue
	queueOptions      []JobQueueOption
}

func NewRepositoryFactory(opts ...JobQueueOption) *RepositoryFactory {
	return &RepositoryFactory{queueOptions: opts}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...JobQueueOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...JobQueueOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.registrationStore != nil && f.jobQueue != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) RecordStore() core.RecordStore {
	if f == nil || f.registrationStore == nil {
		return nil
	}
	return f.registrationStore
}

func (f *RepositoryFactory) RegistrationStore() *RegistrationStore {
	if f == nil {
		return nil
	}
	return f.registrationStore
}

func (f *RepositoryFactory) JobQueue() *JobQueue {
	if f == nil {
		return nil
	}
	return f.jobQueue
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	registrationStore, err := NewRegistrationStore(f.db)
	if err != nil {
		return err
	}
	f.registrationStore = registrationStore
	jobQueue, err := NewJobQueue(f.db, f.queueOptions...)
	if err != nil {
		return err
	}
	f.jobQueue = jobQueue
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
