package window

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"edgegate/internal/admission/models"
	dErrors "edgegate/pkg/domain-errors"
)

// RedisStore keeps fixed windows in Redis so multiple gateway instances can
// share rate-limit state. INCR provides the atomic read-check-increment; the
// key TTL is set only when the window opens, which makes the window fixed
// rather than sliding.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

type RedisOption func(*RedisStore)

func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: "edgegate:window"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hit implements the window store contract on Redis.
func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	now := time.Now()
	fullKey := s.prefix + ":" + key

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	// NX: only the first hit of a window sets the expiry, later hits keep
	// the original window end.
	pipe.ExpireNX(ctx, fullKey, window)
	ttl := pipe.PTTL(ctx, fullKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "redis window update failed")
	}

	count := int(incr.Val())
	resetAt := now.Add(window)
	if d := ttl.Val(); d > 0 {
		resetAt = now.Add(d)
	}
	return models.NewResult(count, limit, resetAt, now), nil
}

// Reset clears the window for a key.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+":"+key).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "redis window reset failed")
	}
	return nil
}

// Sweep is a no-op on Redis: key TTLs already expire idle windows.
func (s *RedisStore) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}
