package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-integrations/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// RepositoryFactory owns the bun-backed stores for one database and serves
// them as a core.StoreProvider. Stores are built once, on the first
// BuildStores call.
type RepositoryFactory struct {
	db           *bun.DB
	requestCache repositorycache.CacheService
	built        bool

	integrations  *IntegrationStore
	pending       *PendingConnectStore
	automations   *AutomationStore
	requests      core.RequestStore
	cancellations *CancellationStore
}

type FactoryOption func(*RepositoryFactory)

// WithRequestCache serves request lookups through cacheService.
func WithRequestCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.requestCache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

// NewRepositoryFactoryFromPersistence builds every store on client's bun db.
func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

// BuildStores accepts a *bun.DB or anything with DB() *bun.DB, such as a
// go-persistence-bun client.
func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.built {
		return f, nil
	}
	if f.db == nil {
		db, err := bunDBOf(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}

	var err error
	if f.integrations, err = NewIntegrationStore(f.db); err != nil {
		return nil, err
	}
	if f.pending, err = NewPendingConnectStore(f.db); err != nil {
		return nil, err
	}
	if f.automations, err = NewAutomationStore(f.db); err != nil {
		return nil, err
	}
	if f.cancellations, err = NewCancellationStore(f.db); err != nil {
		return nil, err
	}
	requests, err := NewRequestStore(f.db)
	if err != nil {
		return nil, err
	}

	f.requests = requests
	if f.requestCache != nil {
		cached, err := NewCachedRequestStore(requests, f.requestCache)
		if err != nil {
			return nil, err
		}
		f.requests = cached
	}
	f.built = true
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) IntegrationStore() core.IntegrationStore {
	if f == nil || f.integrations == nil {
		return nil
	}
	return f.integrations
}

func (f *RepositoryFactory) PendingConnectStore() core.PendingConnectStore {
	if f == nil || f.pending == nil {
		return nil
	}
	return f.pending
}

func (f *RepositoryFactory) AutomationStore() core.AutomationStore {
	if f == nil || f.automations == nil {
		return nil
	}
	return f.automations
}

// Automations exposes the concrete store, which can also seed rows.
func (f *RepositoryFactory) Automations() *AutomationStore {
	if f == nil {
		return nil
	}
	return f.automations
}

func (f *RepositoryFactory) RequestStore() core.RequestStore {
	if f == nil {
		return nil
	}
	return f.requests
}

func (f *RepositoryFactory) CancellationStore() core.CancellationStore {
	if f == nil || f.cancellations == nil {
		return nil
	}
	return f.cancellations
}

func bunDBOf(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		if db := typed.DB(); db != nil {
			return db, nil
		}
		return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
