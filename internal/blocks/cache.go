package blocks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultCacheTTL bounds how long a resolved block stays cached.
const DefaultCacheTTL = 30 * 24 * time.Hour

// CachedResolverOptions configures CachedResolver.
type CachedResolverOptions struct {
	// Prefix namespaces cache keys, e.g. per resolver kind.
	// Default: "curvelp:block"
	Prefix string
	// TTL of cached entries. Default: DefaultCacheTTL
	TTL    time.Duration
	Logger *zap.Logger
}

// CachedResolver caches timestamp resolutions in Redis.
// Cache failures are logged and fall through to the inner resolver.
type CachedResolver struct {
	inner  TimestampResolver
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedResolver wraps inner with a Redis cache.
func NewCachedResolver(inner TimestampResolver, rdb redis.UniversalClient, opts CachedResolverOptions) *CachedResolver {
	if opts.Prefix == "" {
		opts.Prefix = "curvelp:block"
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultCacheTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &CachedResolver{
		inner:  inner,
		rdb:    rdb,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		logger: opts.Logger,
	}
}

var (
	_ Resolver          = (*CachedResolver)(nil)
	_ TimestampResolver = (*CachedResolver)(nil)
)

// Resolve resolves a date string.
func (c *CachedResolver) Resolve(ctx context.Context, date string) (uint64, error) {
	return resolveDate(ctx, c, date)
}

// ResolveTimestamp answers from the cache or resolves and stores the result.
// Misses (ErrNoBlockFound) are not cached.
func (c *CachedResolver) ResolveTimestamp(ctx context.Context, ts int64) (uint64, error) {
	key := c.key(ts)

	val, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if block, perr := strconv.ParseUint(val, 10, 64); perr == nil {
			c.logger.Debug("block cache hit", zap.Int64("ts", ts), zap.Uint64("block", block))
			return block, nil
		}
		c.logger.Warn("discarding malformed cache entry", zap.String("key", key), zap.String("value", val))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("block cache read failed", zap.String("key", key), zap.Error(err))
	}

	block, err := c.inner.ResolveTimestamp(ctx, ts)
	if err != nil {
		return 0, err
	}

	if err := c.rdb.Set(ctx, key, strconv.FormatUint(block, 10), c.ttl).Err(); err != nil {
		c.logger.Warn("block cache write failed", zap.String("key", key), zap.Error(err))
	}
	return block, nil
}

func (c *CachedResolver) key(ts int64) string {
	return fmt.Sprintf("%s:%d", c.prefix, ts)
}
