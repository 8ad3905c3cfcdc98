package coordination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockHeld is returned by TryAcquire when another holder owns the lease.
	ErrLockHeld = errors.New("lock held by another process")
	// ErrLockNotHeld is returned when releasing or extending a lease that has expired or moved.
	ErrLockNotHeld = errors.New("lock not held")
)

var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// SourceLocker hands out per-source leases.
type SourceLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewSourceLocker creates a locker using cfg's key prefix and lease TTL.
func NewSourceLocker(client redis.UniversalClient, cfg Config) *SourceLocker {
	cfg.SetDefaults()
	return &SourceLocker{client: client, prefix: cfg.KeyPrefix, ttl: cfg.LockTTL}
}

// TryAcquire takes the lease for sourceID without blocking. It returns ErrLockHeld
// when another holder has it. A held lease is refreshed until released.
func (l *SourceLocker) TryAcquire(ctx context.Context, sourceID string) (*Lease, error) {
	lease := &Lease{
		client: l.client,
		key:    l.prefix + sourceID,
		token:  uuid.NewString(),
		ttl:    l.ttl,
		done:   make(chan struct{}),
	}

	ok, err := l.client.SetNX(ctx, lease.key, lease.token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	go lease.keepAlive()
	return lease, nil
}

// Lease is a held source lock.
type Lease struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration

	done chan struct{}
	once sync.Once
}

// Key returns the Redis key of the lease.
func (l *Lease) Key() string { return l.key }

func (l *Lease) keepAlive() {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
			err := l.Extend(ctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// Extend pushes the lease expiry out by its TTL.
func (l *Lease) Extend(ctx context.Context) error {
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Release stops the refresher and deletes the key if this lease still owns it.
func (l *Lease) Release(ctx context.Context) error {
	l.once.Do(func() { close(l.done) })

	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Guard acquires the lease for sourceID and returns its release function.
func (l *SourceLocker) Guard(ctx context.Context, sourceID string) (func(context.Context) error, error) {
	lease, err := l.TryAcquire(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	return lease.Release, nil
}
