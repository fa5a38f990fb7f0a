// Package coordinator implements the distributed runtime coordinator
// (spec.md C12): a Redis-backed mutual-exclusion lock plus a running-state
// hash and active-worker set, so exactly one worker process runs a given
// strategy at a time and every worker can see what every other worker is
// doing. Grounded on original_source/shared/core/redis_client.py's
// RedisClient (acquire_lock/release_lock/set_running_info/
// update_running_status/register_worker), rebuilt on redis/go-redis/v9
// (the pack's rishavpaul-system-design gateway uses the same client for a
// comparable SET-NX-EX primitive).
package coordinator

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"gridwarden/internal/core"
)

const lockKeyPrefix = "strategy:lock:"

// RedisLock implements core.DistributedLock with Redis's SET NX EX for
// acquisition and a value-checked DEL (via a small Lua script, to avoid
// releasing a lock some other holder has since re-acquired) for release.
type RedisLock struct {
	client redis.Cmdable
	holder string
}

// NewRedisLock builds a lock whose acquisitions are tagged with holder (a
// worker or task identifier), so Release/Refresh never touch a lock that
// another holder has since taken over.
func NewRedisLock(client redis.Cmdable, holder string) *RedisLock {
	return &RedisLock{client: client, holder: holder}
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("expire", KEYS[1], ARGV[2])
end
return 0
`)

// TryAcquire attempts to set key to l.holder with the given ttl (seconds),
// succeeding only if the key did not already exist.
func (l *RedisLock) TryAcquire(ctx context.Context, key string, ttl int64) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKeyPrefix+key, l.holder, time.Duration(ttl)*time.Second).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release deletes the lock, but only if it is still held by l.holder.
func (l *RedisLock) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, l.client, []string{lockKeyPrefix + key}, l.holder).Err()
}

// Refresh extends the lock's TTL, but only if it is still held by l.holder.
// Used by the coordinator's heartbeat to keep a long-running strategy's
// lock alive past the original acquisition TTL.
func (l *RedisLock) Refresh(ctx context.Context, key string, ttl int64) error {
	return refreshScript.Run(ctx, l.client, []string{lockKeyPrefix + key}, l.holder, ttl).Err()
}

// Holder returns the lock's configured holder identifier.
func (l *RedisLock) Holder() string { return l.holder }

var _ core.DistributedLock = (*RedisLock)(nil)
