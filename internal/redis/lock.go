package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
)

const (
	// DefaultLockTTL is the key expiry used when a locker is built with a
	// non-positive ttl.
	DefaultLockTTL = 30 * time.Second
	// DefaultRunHold bounds how long a crashed run keeps its key.
	DefaultRunHold = 10 * time.Minute
)

// Locker guards a critical section by key. The booking engine locks one
// doctor/date/time slot, the scheduler locks one job run.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// SlotKey is the lock key of one bookable slot.
func SlotKey(doctorID uuid.UUID, date, startTime string) string {
	return fmt.Sprintf("lock:slot:%s:%s:%s", doctorID.String(), date, startTime)
}

// JobKey is the lock key of one scheduled job run. period names the run,
// a date for daily jobs or a date and hour for hourly ones.
func JobKey(job, period string) string {
	return fmt.Sprintf("scheduler:%s:%s", job, period)
}

type redisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration // bounds fn; zero leaves ctx untouched
}

// NewRedisLocker creates a locker that holds a Redis key for at most ttl
// and cancels fn's context when ttl runs out. A non-positive ttl keeps the
// caller's context and expires the key after DefaultLockTTL.
func NewRedisLocker(client *redis.Client, ttl time.Duration) Locker {
	l := &redisLocker{
		client:  client,
		ttl:     ttl,
		timeout: ttl,
	}
	if ttl <= 0 {
		l.ttl, l.timeout = DefaultLockTTL, 0
	}
	return l
}

func (l *redisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token, err := l.acquire(ctx, key, l.ttl)
	if err != nil {
		return err
	}

	defer func() {
		// release with a fresh context so a cancelled caller still frees the key
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	if l.timeout <= 0 {
		return fn(ctx)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisLocker) acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", ErrLockNotAcquired
	}
	return token, nil
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
  return 0
end
`)

// runLocker claims one run of a periodic job. The key is held for hold
// while fn runs; after a successful run it is kept for keep, so a later
// attempt on the same key (another replica, or a retried trigger) is
// refused. A failed run releases the key so the run can be repeated.
type runLocker struct {
	redisLocker
	keep time.Duration
}

// NewRunLocker creates a run-once locker. fn's context is left to the
// caller to bound. A non-positive hold falls back to DefaultRunHold.
func NewRunLocker(client *redis.Client, hold, keep time.Duration) Locker {
	if hold <= 0 {
		hold = DefaultRunHold
	}
	if keep < hold {
		keep = hold
	}
	return &runLocker{redisLocker: redisLocker{client: client, ttl: hold}, keep: keep}
}

func (l *runLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token, err := l.acquire(ctx, key, l.ttl)
	if err != nil {
		return err
	}

	done := false
	defer func() {
		// failed or panicked runs free the period for a retry
		if !done {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			_ = l.release(releaseCtx, key, token)
		}
	}()

	if err := fn(ctx); err != nil {
		return err
	}
	done = true

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := extendScript.Run(bg, l.client, []string{key}, token, l.keep.Milliseconds()).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("mark run %s done: %w", key, err)
	}
	return nil
}

// NopLocker runs fn without locking. Used when Redis is not configured.
type NopLocker struct{}

func (NopLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
