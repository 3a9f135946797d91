package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ImportLockKey guards catalog imports so only one runs at a time.
const ImportLockKey = "lock:import"

// ErrLocked is returned by TryLock when the lock is already held.
var ErrLocked = errors.New("lock is already held")

// unlockScript deletes the key only if it still carries the holder's token.
const unlockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`

// TryLock attempts to acquire a lock identified by key using SET NX EX.
// On success it returns an unlock function that must be called (typically
// via defer). If the lock is already held, ErrLocked is returned.
func TryLock(ctx context.Context, r *Redis, key string, ttl time.Duration) (unlock func(), err error) {
	token, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("cache lock %s: %w", key, err)
	}
	full := KeyPrefix + key

	ok, err := r.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("cache lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return func() {
		// Background context: release must happen even if ctx was cancelled.
		_ = r.client.Eval(context.Background(), unlockScript, []string{full}, token).Err()
	}, nil
}

// IsLocked reports whether the lock key is currently held.
func IsLocked(ctx context.Context, r *Redis, key string) (bool, error) {
	n, err := r.client.Exists(ctx, KeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("cache exists %s: %w", key, err)
	}
	return n > 0, nil
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
