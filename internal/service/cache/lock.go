package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kapu/top-music-bot-go/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Lock is a held single-instance lock. Release only deletes the key while it
// still carries this holder's token.
type Lock struct {
	key   string
	token string
	cache *CacheService
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLock tries SET NX on key. It returns (nil, nil) when another holder
// owns the lock.
func (c *CacheService) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		c.logger.Error("Lock acquire failed", zap.String("key", key), zap.Error(err))
		return nil, errors.NewCacheError("lock acquire failed", "setnx", key, err)
	}
	if !ok {
		c.logger.Info("Lock held elsewhere", zap.String("key", key))
		return nil, nil
	}

	c.logger.Debug("Lock acquired", zap.String("key", key), zap.Duration("ttl", ttl))
	return &Lock{key: key, token: token, cache: c}, nil
}

func (l *Lock) Key() string {
	return l.key
}

func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	released, err := releaseScript.Run(ctx, l.cache.client, []string{l.key}, l.token).Int64()
	if err != nil {
		l.cache.logger.Error("Lock release failed", zap.String("key", l.key), zap.Error(err))
		return errors.NewCacheError("lock release failed", "eval", l.key, err)
	}
	if released == 0 {
		l.cache.logger.Warn("Lock expired before release", zap.String("key", l.key))
	}
	return nil
}
