package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"offramp.backend/pkg/crypto"
	"offramp.backend/pkg/utils"
)

var (
	// ErrLockHeld is returned when another holder owns the lock past the wait budget
	ErrLockHeld = errors.New("lock held by another worker")
	// ErrLockLost is returned by Refresh once the key expired or changed hands
	ErrLockLost = errors.New("lock no longer held")
)

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// extendScript resets the expiry only if the key still carries our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Locker is a SET NX PX mutual exclusion lock shared by every process using the same Redis.
type Locker struct {
	prefix  string
	ttl     time.Duration
	wait    time.Duration
	backoff time.Duration
}

// NewLocker creates a locker. ttl bounds how long a crashed holder blocks others.
func NewLocker(prefix string, ttl, wait time.Duration) *Locker {
	return &Locker{
		prefix:  prefix,
		ttl:     ttl,
		wait:    wait,
		backoff: 50 * time.Millisecond,
	}
}

// Lock acquires key, retrying until the wait budget or ctx runs out.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	lease, err := l.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	return lease.Release, nil
}

// Acquire is Lock returning a lease that lapses after ttl unless refreshed.
func (l *Locker) Acquire(ctx context.Context, key string) (utils.Lease, error) {
	token, err := crypto.GenerateRandomToken(16)
	if err != nil {
		return nil, err
	}
	storageKey := fmt.Sprintf("%s:%s", l.prefix, key)
	deadline := time.Now().Add(l.wait)

	for {
		start := time.Now()
		ok, err := SetNX(ctx, storageKey, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", storageKey, err)
		}
		if ok {
			return &lease{key: storageKey, token: token, ttl: l.ttl, expires: start.Add(l.ttl)}, nil
		}
		if !time.Now().Add(l.backoff).Before(deadline) {
			return nil, ErrLockHeld
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.backoff):
		}
	}
}

type lease struct {
	key   string
	token string
	ttl   time.Duration

	mu      sync.Mutex
	expires time.Time
	once    sync.Once
}

// Deadline keeps a fifth of the ttl in reserve.
func (l *lease) Deadline() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expires.Add(-l.ttl / 5)
}

func (l *lease) Refresh(ctx context.Context) error {
	start := time.Now()
	n, err := extendScript.Run(ctx, client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("refresh lock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLockLost, l.key)
	}
	l.mu.Lock()
	l.expires = start.Add(l.ttl)
	l.mu.Unlock()
	return nil
}

func (l *lease) Release() {
	l.once.Do(func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, client, []string{l.key}, l.token).Err()
	})
}
