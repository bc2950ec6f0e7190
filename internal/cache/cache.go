// Package cache stores generated weekly insights in Redis so repeat requests
// for the same user and week skip the LLM and the database.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/oracle/pkg/models"
)

const keyPrefix = "oracle:insights:"

// InsightCache is a best-effort cache of weekly insights.
type InsightCache interface {
	Get(ctx context.Context, userID, weekOf string) (*models.WeeklyInsight, bool)
	Set(ctx context.Context, insight *models.WeeklyInsight) error
	Close() error
}

// Key returns the cache key for a user's week.
func Key(userID, weekOf string) string {
	return keyPrefix + userID + ":" + weekOf
}

// Noop is used when no Redis URL is configured.
type Noop struct{}

func (Noop) Get(context.Context, string, string) (*models.WeeklyInsight, bool) { return nil, false }
func (Noop) Set(context.Context, *models.WeeklyInsight) error                  { return nil }
func (Noop) Close() error                                                      { return nil }

// Redis caches insights as JSON strings with a TTL.
type Redis struct {
	pool *redis.Pool
	ttl  time.Duration
}

var (
	_ InsightCache = (*Redis)(nil)
	_ InsightCache = Noop{}
)

// NewRedis connects to url and verifies the connection with PING.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	pool := &redis.Pool{
		MaxIdle:     4,
		MaxActive:   16,
		IdleTimeout: 5 * time.Minute,
		Wait:        true,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialURLContext(ctx, url,
				redis.DialConnectTimeout(2*time.Second),
				redis.DialReadTimeout(time.Second),
				redis.DialWriteTimeout(time.Second),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}

	c := newRedis(pool, ttl)
	if err := c.Ping(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return c, nil
}

func newRedis(pool *redis.Pool, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{pool: pool, ttl: ttl}
}

// Ping checks that Redis answers.
func (r *Redis) Ping(ctx context.Context) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Get returns the cached insight. Misses and errors both report false; errors
// are logged.
func (r *Redis) Get(ctx context.Context, userID, weekOf string) (*models.WeeklyInsight, bool) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Insight cache unavailable")
		return nil, false
	}
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", Key(userID, weekOf)))
	if err != nil {
		if !errors.Is(err, redis.ErrNil) {
			log.Warn().Err(err).Str("user_id", userID).Msg("Insight cache read failed")
		}
		return nil, false
	}

	var insight models.WeeklyInsight
	if err := json.Unmarshal(data, &insight); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Discarding corrupt cached insight")
		return nil, false
	}
	insight.Cached = true
	return &insight, true
}

// Set stores insight under its user and week.
func (r *Redis) Set(ctx context.Context, insight *models.WeeklyInsight) error {
	stored := *insight
	stored.Cached = false
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("marshal insight: %w", err)
	}

	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("SET", Key(insight.UserID, insight.WeekOf), data, "EX", int64(r.ttl.Seconds())); err != nil {
		return fmt.Errorf("cache insight: %w", err)
	}
	return nil
}

// Close releases pooled connections.
func (r *Redis) Close() error {
	return r.pool.Close()
}
