package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// DefaultTTL ограничивает время жизни блокировки, если процесс упал посреди саги.
const DefaultTTL = 5 * time.Minute

// redisStore: команды Redis, нужные блокировке.
type redisStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// releaseScript удаляет ключ, только если в нём всё ещё наш владелец.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisLocker: блокировка между инстансами сервиса: SETNX + TTL с владельцем.
type RedisLocker struct {
	client redisStore
	ttl    time.Duration
}

// NewRedisLocker создаёт блокировку поверх Redis.
func NewRedisLocker(client redisStore, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{client: client, ttl: ttl}, nil
}

// Acquire занимает ключ на ttl или возвращает ErrSagaInProgress.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return nil, domain.ErrSagaInProgress
	}

	return func(ctx context.Context) error {
		return l.release(ctx, key, owner)
	}, nil
}

// release снимает блокировку, только если владелец не сменился после истечения TTL.
// Проверка и удаление идут одним скриптом, поэтому чужой ключ не удаляется.
func (l *RedisLocker) release(ctx context.Context, key, owner string) error {
	if err := l.client.Eval(ctx, releaseScript, []string{key}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

var _ domain.SagaLocker = (*RedisLocker)(nil)
