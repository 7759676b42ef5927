package store

import (
	"context"
	"errors"
	"time"

	"github.com/gomodule/redigo/redis"

	"certagent/internal/domain"
)

// Redis stores records as plain string values under prefix.
type Redis struct {
	pool   *redis.Pool
	prefix string
}

// NewRedis returns a store talking to the server at url (redis://host:port/db).
func NewRedis(url, prefix string) *Redis {
	pool := &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 2 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialURLContext(ctx, url)
		},
		TestOnBorrow: func(c redis.Conn, lastUsed time.Time) error {
			if time.Since(lastUsed) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
	return &Redis{pool: pool, prefix: prefix}
}

// Close releases pooled connections.
func (r *Redis) Close() error { return r.pool.Close() }

func (r *Redis) key(k domain.StorageKey) string { return r.prefix + k.String() }

func (r *Redis) do(ctx context.Context, cmd string, args ...any) (any, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return redis.DoContext(conn, ctx, cmd, args...)
}

func (r *Redis) Get(ctx context.Context, key domain.StorageKey) ([]byte, bool, error) {
	b, err := redis.Bytes(r.do(ctx, "GET", r.key(key)))
	if errors.Is(err, redis.ErrNil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, readErr("redis", key, err)
	}
	return b, true, nil
}

func (r *Redis) Set(ctx context.Context, key domain.StorageKey, value []byte) error {
	if _, err := r.do(ctx, "SET", r.key(key), value); err != nil {
		return writeErr("redis", "set", key, err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, key domain.StorageKey) error {
	if _, err := r.do(ctx, "DEL", r.key(key)); err != nil {
		return writeErr("redis", "remove", key, err)
	}
	return nil
}

var _ domain.KeyStorage = (*Redis)(nil)
