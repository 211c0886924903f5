package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sellerlink/backend/internal/domain/integration"
)

const defaultAuthStateKeyPrefix = "marketplace:auth_state:"

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// RedisAuthStateStore implements integration.AuthStateStore using Redis.
// This is suitable for distributed deployments where the callback may land on
// a different instance than the one that started the authorization.
type RedisAuthStateStore struct {
	client     *redis.Client
	ownsClient bool
	keyPrefix  string
	ttl        time.Duration
	now        func() time.Time
}

// storedAuthState is the JSON value kept under each state key
type storedAuthState struct {
	CodeVerifier string    `json:"code_verifier,omitempty"`
	ReturnTo     string    `json:"return_to,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// NewRedisAuthStateStore creates a new Redis-based auth state store and verifies the connection
func NewRedisAuthStateStore(cfg RedisConfig, ttl time.Duration) (*RedisAuthStateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := NewRedisAuthStateStoreWithClient(client, "", ttl)
	store.ownsClient = true
	return store, nil
}

// NewRedisAuthStateStoreWithClient creates a store with an existing Redis client.
// The caller retains ownership of the client.
func NewRedisAuthStateStoreWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisAuthStateStore {
	if keyPrefix == "" {
		keyPrefix = defaultAuthStateKeyPrefix
	}
	if ttl <= 0 {
		ttl = integration.DefaultStateTTL
	}
	return &RedisAuthStateStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Create stores a new state with SET NX so a colliding token is never overwritten.
// The key expires with the state, so Cleanup has nothing to do.
func (s *RedisAuthStateStore) Create(ctx context.Context, codeVerifier, returnTo string) (*integration.AuthorizationState, error) {
	state, err := integration.NewAuthorizationState(codeVerifier, returnTo, s.now(), s.ttl)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(storedAuthState{
		CodeVerifier: state.CodeVerifier,
		ReturnTo:     state.ReturnTo,
		CreatedAt:    state.CreatedAt,
		ExpiresAt:    state.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal auth state: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.keyPrefix+state.State, data, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to store auth state: %w", err)
	}
	if !ok {
		return nil, errors.New("auth state collision")
	}
	return state, nil
}

// Consume reads and deletes the state in one GETDEL round trip
func (s *RedisAuthStateStore) Consume(ctx context.Context, state string) (*integration.AuthorizationState, error) {
	if state == "" {
		return nil, nil
	}

	data, err := s.client.GetDel(ctx, s.keyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume auth state: %w", err)
	}

	var stored storedAuthState
	if err := json.Unmarshal(data, &stored); err != nil {
		// A corrupted entry is already gone; treat it like an unknown state.
		return nil, nil
	}

	found := &integration.AuthorizationState{
		State:        state,
		CodeVerifier: stored.CodeVerifier,
		ReturnTo:     stored.ReturnTo,
		CreatedAt:    stored.CreatedAt,
		ExpiresAt:    stored.ExpiresAt,
	}
	if found.IsExpired(s.now()) {
		return nil, nil
	}
	return found, nil
}

// Cleanup is a no-op; Redis expires keys on its own
func (s *RedisAuthStateStore) Cleanup(ctx context.Context) (int64, error) {
	return 0, nil
}

// Ping checks that Redis is reachable
func (s *RedisAuthStateStore) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client when the store created it
func (s *RedisAuthStateStore) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}

// Ensure RedisAuthStateStore implements AuthStateStore
var _ integration.AuthStateStore = (*RedisAuthStateStore)(nil)
