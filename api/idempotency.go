package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// HeaderIdempotencyKey carries a client-chosen key for a mutating request.
const HeaderIdempotencyKey = "Idempotency-Key"

const dedupeKeyPrefix = "idem"

// RedisDeduper stores seen idempotency keys in Redis so every instance
// rejects a replayed mutation.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID, key string) string {
	return userID + ":" + dedupeKeyPrefix + ":" + key
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, userID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(userID, key), 1, r.ttl).Result()
}

// Remove deletes a previously recorded key so the caller may retry.
func (r *RedisDeduper) Remove(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}

// idempotency answers 409 to a replayed key. A key is released again when
// the handler fails server-side. Deduper outages let the request through.
func idempotency(d Deduper, logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
			if d == nil || key == "" || c.Request().Method == http.MethodGet {
				return next(c)
			}
			ctx := c.Request().Context()
			user := userID(c)
			added, err := d.Add(ctx, user, key)
			if err != nil {
				logger.WithError(err).Warn("idempotency check unavailable")
				return next(c)
			}
			if !added {
				setErrorStage(c, "duplicate")
				return c.JSON(http.StatusConflict, errorResponse{Error: "duplicate request"})
			}

			err = next(c)
			if err != nil || c.Response().Status >= http.StatusInternalServerError {
				if rmErr := d.Remove(context.WithoutCancel(ctx), user, key); rmErr != nil {
					logger.WithError(rmErr).Warn("release idempotency key")
				}
			}
			return err
		}
	}
}
