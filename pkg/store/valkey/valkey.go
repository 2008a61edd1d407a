// Package valkey provides a Valkey/Redis store for bulkclean.
package valkey

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/codeGROOVE-dev/bulkclean/pkg/store"
	"github.com/valkey-io/valkey-go"
)

// Store implements store.Store using valkey-go.
type Store struct {
	client  valkey.Client
	cfg     store.Config
	timeout time.Duration
}

// New connects to the store described by cfg and verifies it with PING.
func New(ctx context.Context, cfg store.Config) (*Store, error) {
	opt := valkey.ClientOption{
		InitAddress:  []string{cfg.Address()},
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	}
	if cfg.Timeout > 0 {
		opt.Dialer = net.Dialer{Timeout: cfg.Timeout}
		opt.ConnWriteTimeout = cfg.Timeout
	}

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w: %w", store.ErrUnavailable, err)
	}

	s := &Store{client: client, cfg: cfg, timeout: cfg.Timeout}

	pctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := client.Do(pctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, wrap("ping", err)
	}

	return s, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Scan runs one SCAN step.
func (s *Store) Scan(ctx context.Context, cursor uint64, count int64) (uint64, []string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	entry, err := s.client.Do(ctx, s.client.B().Scan().Cursor(cursor).Count(count).Build()).AsScanEntry()
	if err != nil {
		return 0, nil, wrap("scan", err)
	}
	return entry.Cursor, encodeKeys(s.cfg.Encoding, entry.Elements), nil
}

// Delete removes keys with a single DEL.
func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Do(ctx, s.client.B().Del().Key(keys...).Build()).AsInt64()
	if err != nil {
		return 0, wrap("del", err)
	}
	return n, nil
}

// Size returns DBSIZE.
func (s *Store) Size(ctx context.Context) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Do(ctx, s.client.B().Dbsize().Build()).AsInt64()
	if err != nil {
		return 0, wrap("dbsize", err)
	}
	return n, nil
}

// GetField runs HGET.
func (s *Store) GetField(ctx context.Context, key, field string) (string, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	v, err := s.client.Do(ctx, s.client.B().Hget().Key(key).Field(field).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return "", false, nil
		}
		return "", false, wrap("hget", err)
	}
	return v, true, nil
}

// SetField pipelines HSET and EXPIRE.
func (s *Store) SetField(ctx context.Context, key, field, value string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cmds := []valkey.Completed{
		s.client.B().Hset().Key(key).FieldValue().FieldValue(field, value).Build(),
	}
	if ttl > 0 {
		secs := int64(ttl / time.Second)
		if secs < 1 {
			secs = 1
		}
		cmds = append(cmds, s.client.B().Expire().Key(key).Seconds(secs).Build())
	}

	for i, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			op := "hset"
			if i > 0 {
				op = "expire"
			}
			return wrap(op, err)
		}
	}
	return nil
}

// DeleteField runs HDEL.
func (s *Store) DeleteField(ctx context.Context, key, field string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Do(ctx, s.client.B().Hdel().Key(key).Field(field).Build()).Error(); err != nil {
		return wrap("hdel", err)
	}
	return nil
}

// KeyEncoding reports the configured key encoding.
func (s *Store) KeyEncoding() store.Encoding {
	return s.cfg.Encoding
}

// Close releases valkey client resources.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}

func encodeKeys(enc store.Encoding, keys []string) []string {
	if enc != store.EncodingRaw {
		return keys
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = hex.EncodeToString([]byte(k))
	}
	return out
}

// wrap marks everything except server replies and cancellation as unavailable.
func wrap(op string, err error) error {
	if _, ok := valkey.IsValkeyErr(err); ok {
		return fmt.Errorf("valkey %s: %w", op, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("valkey %s: %w", op, err)
	}
	return fmt.Errorf("valkey %s: %w: %w", op, store.ErrUnavailable, err)
}
