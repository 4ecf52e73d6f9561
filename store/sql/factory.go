package sqlstore

import (
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"

	"github.com/watchrelay/watchrelay/core"
)

// RepositoryFactory builds the relay stores over a shared bun handle. The
// delivery ledger is wrapped with an in-process cache unless a nil cache
// service is requested explicitly.
type RepositoryFactory struct {
	db *bun.DB

	tokenStore     *TokenStore
	deliveryLedger core.DeliveryLedger
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.tokenStore != nil && f.deliveryLedger != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) TokenStore() core.TokenStore {
	if f == nil {
		return nil
	}
	return f.tokenStore
}

func (f *RepositoryFactory) DeliveryLedger() core.DeliveryLedger {
	if f == nil {
		return nil
	}
	return f.deliveryLedger
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	tokenStore, err := NewTokenStore(f.db)
	if err != nil {
		return err
	}
	f.tokenStore = tokenStore

	ledger, err := NewDeliveryLedger(f.db)
	if err != nil {
		return err
	}

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = 5 * time.Minute
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		return fmt.Errorf("sqlstore: new delivery cache service: %w", err)
	}
	cached, err := NewCachedDeliveryLedger(ledger, cacheService)
	if err != nil {
		return err
	}
	f.deliveryLedger = cached
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

// PersistenceConfig adapts the relay storage configuration to the interface
// the persistence client expects.
type PersistenceConfig struct {
	Debug       bool
	Driver      string
	Server      string
	PingTimeout time.Duration
	Identifier  string
}

func NewPersistenceConfig(cfg core.Config) PersistenceConfig {
	return PersistenceConfig{
		Driver:      strings.TrimSpace(cfg.Storage.Driver),
		Server:      strings.TrimSpace(cfg.Storage.DSN),
		PingTimeout: time.Second,
		Identifier:  strings.TrimSpace(cfg.ServiceName),
	}
}

func (c PersistenceConfig) GetDebug() bool {
	return c.Debug
}

func (c PersistenceConfig) GetDriver() string {
	return c.Driver
}

func (c PersistenceConfig) GetServer() string {
	return c.Server
}

func (c PersistenceConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return time.Second
	}
	return c.PingTimeout
}

func (c PersistenceConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.Identifier) == "" {
		return "watchrelay"
	}
	return c.Identifier
}
