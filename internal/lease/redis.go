package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
)

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
}

// NewRedisLocker connects to Redis and verifies it answers.
func NewRedisLocker(ctx context.Context, cfg config.RedisConfig) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisLocker{client: client}, nil
}

// NewRedisLockerFromClient wraps an existing client.
func NewRedisLockerFromClient(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &Lease{Key: key, Token: token}, nil
}

func (r *RedisLocker) Release(ctx context.Context, l *Lease) error {
	if l == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, r.client, []string{l.Key}, l.Token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lease %s: %w", l.Key, err)
	}
	return nil
}

func (r *RedisLocker) Held(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check lease %s: %w", key, err)
	}
	return n > 0, nil
}

func (r *RedisLocker) Close() error {
	return r.client.Close()
}
