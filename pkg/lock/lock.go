package lock

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker serializes critical sections by key. Commit paths acquire the lock
// for a user id so read-modify-write ledger updates never race.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyed returns an in-process Locker. Entries are reclaimed once the last
// holder releases, so the map stays bounded by concurrent keys.
func NewKeyed() Locker {
	return &keyedMutex{entries: make(map[string]*entry)}
}

func (k *keyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	released := false
	return func() {
		if released {
			return
		}
		released = true
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	rdb   *redis.Client
	ttl   time.Duration
	retry time.Duration
}

// NewRedis returns a Locker backed by a redis SETNX lease, for deployments
// running more than one engine instance. The lease TTL bounds how long a
// crashed holder can block a user's commits.
func NewRedis(rdb *redis.Client, ttl time.Duration) Locker {
	return &redisLocker{rdb: rdb, ttl: ttl, retry: 25 * time.Millisecond}
}

func (r *redisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := time.Now().UTC().Format(time.RFC3339Nano)
	lockKey := "lock:user:" + key

	for {
		ok, err := r.rdb.SetNX(ctx, lockKey, token, r.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}

	return func() {
		_, _ = releaseScript.Run(context.Background(), r.rdb, []string{lockKey}, token).Result()
	}, nil
}
