package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in Redis. The connection pool is sized
// independently of the relational pool; pool exhaustion surfaces as an error
// after PoolTimeout rather than blocking forever.
type RedisStore struct {
	client *redis.Client
}

// RedisOptions bounds the session pool.
type RedisOptions struct {
	PoolSize    int
	PoolTimeout time.Duration
}

// NewRedisStore dials Redis using a URL ("redis://host:port/db").
func NewRedisStore(url string, opts RedisOptions) (*RedisStore, error) {
	parsed, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("session: parse redis url: %w", err)
	}
	if opts.PoolSize > 0 {
		parsed.PoolSize = opts.PoolSize
	}
	if opts.PoolTimeout > 0 {
		parsed.PoolTimeout = opts.PoolTimeout
	}
	return &RedisStore{client: redis.NewClient(parsed)}, nil
}

// Ping verifies connectivity; used by the readiness probe.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Put(ctx context.Context, accessToken string, data Data, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("session: encode entry: %w", err)
	}
	if err := s.client.Set(ctx, accessToken, payload, ttl).Err(); err != nil {
		return fmt.Errorf("session: put: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, accessToken string) (Data, bool, error) {
	raw, err := s.client.Get(ctx, accessToken).Bytes()
	if errors.Is(err, redis.Nil) {
		return Data{}, false, nil
	}
	if err != nil {
		return Data{}, false, fmt.Errorf("session: get: %w", err)
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return Data{}, false, fmt.Errorf("session: decode entry: %w", err)
	}
	return data, true, nil
}

func (s *RedisStore) Remove(ctx context.Context, accessToken string) (bool, error) {
	data, ok, err := s.Get(ctx, accessToken)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	// Companion delete; refresh tokens are not stored as their own session
	// keys, so this is a no-op today. Kept so a future refresh-token index
	// is invalidated on logout.
	if data.RefreshToken != "" {
		if err := s.client.Del(ctx, data.RefreshToken).Err(); err != nil {
			return false, fmt.Errorf("session: remove refresh key: %w", err)
		}
	}
	if err := s.client.Del(ctx, accessToken).Err(); err != nil {
		return false, fmt.Errorf("session: remove: %w", err)
	}
	return true, nil
}

var _ Store = (*RedisStore)(nil)
