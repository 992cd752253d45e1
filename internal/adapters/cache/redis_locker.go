package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
	redisclient "github.com/zatekoja/medlogistics/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
)

const lockKeyPrefix = "allocation:lock:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lease re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements the Locker interface with SET NX PX. It serializes
// check-then-insert on a resource across processes sharing one Redis.
type RedisLocker struct {
	client *redisclient.Client
}

// NewRedisLocker creates a new Redis-backed locker
func NewRedisLocker(client *redisclient.Client) providers.Locker {
	return &RedisLocker{client: client}
}

// LockKey returns the Redis key guarding key
func LockKey(key string) string {
	return lockKeyPrefix + key
}

// TryLock acquires key without waiting
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	redisKey := LockKey(key)

	ok, err := l.client.Client().SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() {
		// released on a fresh context; the caller's may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client.Client(), []string{redisKey}, token).Err(); err != nil {
			observability.GetLogger().Warn().Err(err).Str("lock", redisKey).Msg("failed to release lock")
		}
	}, true, nil
}
