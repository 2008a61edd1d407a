// Package goredis provides a store for bulkclean backed by go-redis.
package goredis

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/codeGROOVE-dev/bulkclean/pkg/store"
	"github.com/redis/go-redis/v9"
)

// Store implements store.Store using go-redis.
type Store struct {
	rdb *redis.Client
	cfg store.Config
}

// New connects to the store described by cfg and verifies it with PING.
func New(ctx context.Context, cfg store.Config) (*Store, error) {
	opt := &redis.Options{
		Addr:     cfg.Address(),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.Timeout > 0 {
		opt.DialTimeout = cfg.Timeout
		opt.ReadTimeout = cfg.Timeout
		opt.WriteTimeout = cfg.Timeout
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, wrap("ping", err)
	}

	return &Store{rdb: rdb, cfg: cfg}, nil
}

// Scan runs one SCAN step without MATCH; filtering happens client-side.
func (s *Store) Scan(ctx context.Context, cursor uint64, count int64) (uint64, []string, error) {
	keys, next, err := s.rdb.Scan(ctx, cursor, "", count).Result()
	if err != nil {
		return 0, nil, wrap("scan", err)
	}
	if s.cfg.Encoding == store.EncodingRaw {
		for i, k := range keys {
			keys[i] = hex.EncodeToString([]byte(k))
		}
	}
	return next, keys, nil
}

// Delete removes keys with a single DEL.
func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, wrap("del", err)
	}
	return n, nil
}

// Size returns DBSIZE.
func (s *Store) Size(ctx context.Context) (int64, error) {
	n, err := s.rdb.DBSize(ctx).Result()
	if err != nil {
		return 0, wrap("dbsize", err)
	}
	return n, nil
}

// GetField runs HGET.
func (s *Store) GetField(ctx context.Context, key, field string) (string, bool, error) {
	v, err := s.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("hget", err)
	}
	return v, true, nil
}

// SetField pipelines HSET and EXPIRE.
func (s *Store) SetField(ctx context.Context, key, field, value string, ttl time.Duration) error {
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, field, value)
		if ttl > 0 {
			p.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return wrap("hset", err)
	}
	return nil
}

// DeleteField runs HDEL.
func (s *Store) DeleteField(ctx context.Context, key, field string) error {
	if err := s.rdb.HDel(ctx, key, field).Err(); err != nil {
		return wrap("hdel", err)
	}
	return nil
}

// KeyEncoding reports the configured key encoding.
func (s *Store) KeyEncoding() store.Encoding {
	return s.cfg.Encoding
}

// Close closes the client and its pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// wrap marks everything except server replies and cancellation as unavailable.
func wrap(op string, err error) error {
	var rerr redis.Error
	if errors.As(err, &rerr) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("redis %s: %w", op, err)
	}
	return fmt.Errorf("redis %s: %w: %w", op, store.ErrUnavailable, err)
}
