package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NERVsystems/osmbounds/pkg/monitoring"
	"github.com/NERVsystems/osmbounds/pkg/osm"
	"github.com/NERVsystems/osmbounds/pkg/tracing"
)

const (
	// DefaultRedisTTL bounds how stale a shared document can get.
	DefaultRedisTTL = 7 * 24 * time.Hour

	redisPrefix = "osmbounds:doc:"
)

// OpenRedis returns a client for addr, or nil when addr is empty.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// Redis shares documents between processes through a Redis server. Redis
// failures are logged and treated as misses.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
	next   osm.Source
	logger *slog.Logger
}

// NewRedis returns a Redis cache in front of next. A zero ttl uses
// DefaultRedisTTL.
func NewRedis(client redis.Cmdable, ttl time.Duration, next osm.Source) *Redis {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &Redis{
		client: client,
		ttl:    ttl,
		next:   next,
		logger: slog.Default(),
	}
}

// SetLogger sets the logger for the cache
func (r *Redis) SetLogger(logger *slog.Logger) {
	r.logger = logger
}

func redisKey(kind osm.Kind, id int64) string {
	return fmt.Sprintf("%s%s:%d", redisPrefix, kind, id)
}

// Fetch serves a shared document, reading it through on a miss.
func (r *Redis) Fetch(ctx context.Context, kind osm.Kind, id int64) (io.ReadCloser, error) {
	key := redisKey(kind, id)

	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		observe(ctx, tracing.CacheLayerRedis, true, key)
		return io.NopCloser(bytes.NewReader(data)), nil
	case errors.Is(err, redis.Nil):
	default:
		monitoring.RecordError(tracing.CacheLayerRedis, "get")
		r.logger.Warn("redis get failed", "key", key, "error", err)
	}
	observe(ctx, tracing.CacheLayerRedis, false, key)

	rc, err := r.next.Fetch(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err = io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s/%d: %w", kind, id, err)
	}

	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		monitoring.RecordError(tracing.CacheLayerRedis, "set")
		r.logger.Warn("redis set failed", "key", key, "error", err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Invalidate deletes the shared document and forwards to the next layer.
func (r *Redis) Invalidate(ctx context.Context, kind osm.Kind, id int64) error {
	if err := r.client.Del(ctx, redisKey(kind, id)).Err(); err != nil {
		return fmt.Errorf("deleting %s/%d from redis: %w", kind, id, err)
	}
	return r.next.Invalidate(ctx, kind, id)
}

// Ping checks the connection to the server.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
