package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// SyncLocker serializes provider reconciliation per user across processes, so
// a background sweep and a user-initiated sync don't hit PayPal for the same
// agreement at once. It is advisory only: database locks still guard the
// writes, and a held lock means "skip this user for now", not "wait".
type SyncLocker interface {
	// Acquire returns ok=false when someone else holds the user's lock.
	Acquire(ctx context.Context, userID string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, userID, token string) error
}

var _ SyncLocker = (*SyncLock)(nil)

type SyncLock struct {
	cli *redis.Client
}

func NewSyncLock(c *Client) *SyncLock { return &SyncLock{cli: c.cli} }

func syncLockKey(userID string) string { return "sync:user:" + userID }

func (l *SyncLock) Acquire(ctx context.Context, userID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.cli.SetNX(ctx, syncLockKey(userID), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// releaseScript deletes the key only while our token still owns it, so an
// expired lock reacquired by another process is never released from here.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *SyncLock) Release(ctx context.Context, userID, token string) error {
	_, err := releaseScript.Run(ctx, l.cli, []string{syncLockKey(userID)}, token).Result()
	return err
}
