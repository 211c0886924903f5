package cache

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/config"
)

// AuthStateStoreFactory creates auth state stores based on configuration
type AuthStateStoreFactory struct {
	redisConfig           config.RedisConfig
	ttl                   time.Duration
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// AuthStateStoreFactoryOption is a functional option for configuring the factory
type AuthStateStoreFactoryOption func(*AuthStateStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) AuthStateStoreFactoryOption {
	return func(f *AuthStateStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory store when Redis is unavailable.
// Default is true.
func WithInMemoryFallback(allow bool) AuthStateStoreFactoryOption {
	return func(f *AuthStateStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewAuthStateStoreFactory creates a new factory
func NewAuthStateStoreFactory(cfg config.RedisConfig, ttl time.Duration, opts ...AuthStateStoreFactoryOption) *AuthStateStoreFactory {
	f := &AuthStateStoreFactory{
		redisConfig:           cfg,
		ttl:                   ttl,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisStore creates a Redis-based auth state store
func (f *AuthStateStoreFactory) CreateRedisStore() (*RedisAuthStateStore, error) {
	store, err := NewRedisAuthStateStore(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}, f.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis auth state store: %w", err)
	}
	return store, nil
}

// CreateInMemoryStore creates an in-memory auth state store.
// WARNING: states are not shared across instances, so a callback routed to another
// instance fails with an invalid state.
func (f *AuthStateStoreFactory) CreateInMemoryStore() *InMemoryAuthStateStore {
	return NewInMemoryAuthStateStore(f.ttl)
}

// CreateStore tries Redis first and falls back to memory when Redis is unreachable and fallback is allowed
func (f *AuthStateStoreFactory) CreateStore() (integration.AuthStateStore, error) {
	store, err := f.CreateRedisStore()
	if err == nil {
		f.logger.Info("Using Redis auth state store")
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for auth state but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory auth state store. "+
		"Authorization callbacks must reach the instance that started them.",
		zap.Error(err),
	)
	return f.CreateInMemoryStore(), nil
}
