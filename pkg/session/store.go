package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrNoSession indicates the session ID is unknown or expired.
var ErrNoSession = errors.New("no such session")

// View is the structured object written to the session store: the public user
// partition, the server-only secure partition, and an optional one-shot status.
type View struct {
	User       *PublicProfile      `json:"user,omitempty"`
	Secure     *SecureCapabilities `json:"secure,omitempty"`
	AuthStatus *AuthStatus         `json:"authStatus,omitempty"`
}

// Config for the Redis session store.
type Config struct {
	// URL is a redis:// connection URL.
	URL      string
	Password string
	DB       int
	PoolSize int

	// TTL is the session lifetime, refreshed on every write.
	TTL time.Duration
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		URL:      "redis://localhost:6379",
		PoolSize: 10,
		TTL:      7 * 24 * time.Hour,
	}
}

// RedisStore keeps session views in Redis with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg Config) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests with miniredis.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// NewSessionID generates an unguessable session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

func sessionKey(id string) string {
	return "firn:session:" + id
}

// Write replaces the stored view for the session and refreshes its TTL.
func (s *RedisStore) Write(ctx context.Context, sessionID string, view View) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Read returns the session view. An attached AuthStatus is consumed: it is
// returned to this caller and cleared from the store so the next read won't see
// a stale message.
func (s *RedisStore) Read(ctx context.Context, sessionID string) (*View, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var view View
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	if view.AuthStatus != nil {
		cleared := view
		cleared.AuthStatus = nil
		if err := s.Write(ctx, sessionID, cleared); err != nil {
			return nil, err
		}
	}
	return &view, nil
}

// Peek returns the session view without consuming the auth status. Used by
// middleware that must not eat the message meant for the client.
func (s *RedisStore) Peek(ctx context.Context, sessionID string) (*View, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	var view View
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &view, nil
}

// Delete removes the session.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// HealthCheck pings Redis.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
