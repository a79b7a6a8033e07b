package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Only the holder's token may delete or extend the lock.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

// RunLock serializes observer runs across processes sharing one checkpoint.
type RunLock struct {
	client *Client
	key    string
	ttl    time.Duration
}

// NewRunLock creates a lock for the named checkpoint.
func NewRunLock(client *Client, name string, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RunLock{client: client, key: lockKey(name), ttl: ttl}
}

// LockHandle is a held RunLock.
type LockHandle struct {
	lock  *RunLock
	token string
}

// TryAcquire takes the lock if nobody holds it. It returns nil without
// error when the lock is held elsewhere.
func (l *RunLock) TryAcquire(ctx context.Context) (*LockHandle, error) {
	token := uuid.NewString()
	ok, err := l.client.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &LockHandle{lock: l, token: token}, nil
}

// Refresh extends the TTL. It reports false when the lock expired and was
// taken by someone else.
func (h *LockHandle) Refresh(ctx context.Context) (bool, error) {
	n, err := refreshScript.Run(ctx, h.lock.client.rdb, []string{h.lock.key}, h.token, h.lock.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("refresh lock failed: %w", err)
	}
	return n == 1, nil
}

// Release deletes the lock if it is still ours.
func (h *LockHandle) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, h.lock.client.rdb, []string{h.lock.key}, h.token).Err(); err != nil {
		return fmt.Errorf("release lock failed: %w", err)
	}
	return nil
}

// TryLock takes the lock and refreshes it every third of the TTL until
// unlock is called. ok is false when another process holds the lock.
func (l *RunLock) TryLock(ctx context.Context) (unlock func(), ok bool, err error) {
	h, err := l.TryAcquire(ctx)
	if err != nil || h == nil {
		return nil, false, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(h, l.ttl/3, stop)
	}()

	return func() {
		close(stop)
		<-done
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Release(releaseCtx)
	}, true, nil
}

type refresher interface {
	Refresh(ctx context.Context) (bool, error)
}

// keepAlive refreshes the lock every interval until stop is closed or the
// lock is lost. A failed refresh is retried on the next tick; the TTL covers
// two more attempts before the key can expire.
func keepAlive(h refresher, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			held, err := h.Refresh(context.Background())
			if err == nil && !held {
				return
			}
		}
	}
}
