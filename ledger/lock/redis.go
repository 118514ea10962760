package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// release only deletes the lease if this holder still owns it; an expired
// lease reacquired by someone else must not be clobbered.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// RedisLock is a lease-based per-key lock for multi-instance deployments.
// Acquire polls SET NX until the lease is granted or ctx is done. The TTL
// bounds how long a crashed holder can block a worker's ledger.
type RedisLock struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	poll   time.Duration
	scrRel *redis.Script
}

func NewRedisLock(rdb redis.UniversalClient, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLock{
		rdb:    rdb,
		ttl:    ttl,
		poll:   25 * time.Millisecond,
		scrRel: redis.NewScript(releaseScript),
	}
}

func lockKey(key string) string { return fmt.Sprintf("ledger:lock:{%s}", key) }

func (l *RedisLock) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	k := lockKey(key)

	for {
		ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { l.release(k, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}

func (l *RedisLock) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	// Best-effort: an expired lease self-heals via TTL.
	_, _ = l.scrRel.Run(ctx, l.rdb, []string{key}, token).Result()
}
