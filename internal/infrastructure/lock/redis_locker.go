package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/counsel-settlement/internal/application/port"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockTimeout is returned when a key stays held past the caller's patience
var ErrLockTimeout = errors.New("timed out waiting for quota lock")

// releaseScript deletes the key only if this holder still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockerConfig tunes RedisLocker
type RedisLockerConfig struct {
	// TTL bounds how long a crashed holder can block a key
	TTL time.Duration
	// RetryInterval is the pause between acquisition attempts
	RetryInterval time.Duration
	// WaitTimeout caps the total wait when ctx has no deadline
	WaitTimeout time.Duration
	// Prefix namespaces the lock keys
	Prefix string
}

// RedisLocker is a port.QuotaLocker shared by every process using the same Redis
type RedisLocker struct {
	client *redis.Client
	cfg    RedisLockerConfig
	logger *zap.Logger
}

// NewRedisLocker creates a RedisLocker
func NewRedisLocker(client *redis.Client, cfg RedisLockerConfig, logger *zap.Logger) *RedisLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 25 * time.Millisecond
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 5 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "counsel-settlement:lock:"
	}
	return &RedisLocker{client: client, cfg: cfg, logger: logger}
}

// Lock acquires every distinct key in sorted order with SET NX PX
func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.WaitTimeout)
		defer cancel()
	}

	token := uuid.NewString()
	held := make([]string, 0, len(keys))
	release := func() {
		// release must work after the acquiring context is gone
		relCtx, cancel := context.WithTimeout(context.Background(), l.cfg.TTL)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := releaseScript.Run(relCtx, l.client, []string{held[i]}, token).Err(); err != nil {
				l.logger.Error("Failed to release quota lock", zap.String("key", held[i]), zap.Error(err))
			}
		}
	}

	for _, key := range keys {
		redisKey := l.cfg.Prefix + key
		if err := l.acquire(ctx, redisKey, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, redisKey)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		release()
	}, nil
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(l.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %s", ErrLockTimeout, key)
			}
			return fmt.Errorf("failed to acquire quota lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-ticker.C:
		}
	}
}

// Verify interface compliance
var _ port.QuotaLocker = (*RedisLocker)(nil)
