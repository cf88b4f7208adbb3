package locks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// ErrBusy is returned when another holder owns the key.
var ErrBusy = errors.New("lock busy")

// Locker hands out non-blocking, keyed exclusive locks.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), err error)
}

type localLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() Locker {
	return &localLocker{held: map[string]struct{}{}}
}

func (l *localLocker) TryLock(_ context.Context, key string) (func(), error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("lock key required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrBusy
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// Deletes the key only while it still holds our token, so an expired lock re-acquired elsewhere survives.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

var extendScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// redisLocker re-arms the TTL every ttl/3 while a lock is held; the TTL only bounds a crashed holder.
type redisLocker struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(rdb goredis.UniversalClient, prefix string, ttl time.Duration) Locker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if prefix == "" {
		prefix = "lock:"
	}
	return &redisLocker{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (l *redisLocker) TryLock(ctx context.Context, key string) (func(), error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("lock key required")
	}
	fullKey := l.prefix + key
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, fullKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", fullKey, err)
	}
	if !ok {
		return nil, ErrBusy
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(fullKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.rdb, []string{fullKey}, token).Err()
		})
	}, nil
}

func (l *redisLocker) keepAlive(fullKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := l.ttl / 3
	if interval <= 0 {
		interval = l.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := extendScript.Run(ctx, l.rdb, []string{fullKey}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && n == 0 {
				// lost to expiry or another holder
				return
			}
		}
	}
}
