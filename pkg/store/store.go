// Package store defines the key-value store contract used by bulkclean.
//
// Implementations wrap a Redis-protocol store that exposes a cursor-based
// SCAN. Cursor 0 is both the start and the end of a full pass; the protocol
// may return a key more than once and may miss keys written during the pass.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks transport failures (dial, timeout, closed connection).
// Backends wrap it together with the driver error so callers can use errors.Is
// on either.
var ErrUnavailable = errors.New("store unavailable")

// Encoding describes how a store returns key names.
type Encoding int

const (
	// EncodingString returns key names as decoded strings.
	EncodingString Encoding = iota
	// EncodingRaw returns key bytes hex-encoded. Useful for dumping binary
	// keys, but patterns will not match against it.
	EncodingRaw
)

func (e Encoding) String() string {
	switch e {
	case EncodingString:
		return "string"
	case EncodingRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Store is the subset of a key-value store the cleaner needs.
type Store interface {
	// Scan runs one SCAN step from cursor. count is a hint; the store may
	// return more or fewer keys. A returned cursor of 0 ends the pass.
	Scan(ctx context.Context, cursor uint64, count int64) (next uint64, keys []string, err error)

	// Delete removes keys and returns how many actually existed.
	Delete(ctx context.Context, keys ...string) (int64, error)

	// Size returns the approximate number of keys in the store.
	Size(ctx context.Context) (int64, error)

	// GetField reads a hash field. found is false when key or field is absent.
	GetField(ctx context.Context, key, field string) (value string, found bool, err error)

	// SetField writes a hash field and (re)sets the TTL of the whole hash.
	SetField(ctx context.Context, key, field, value string, ttl time.Duration) error

	// DeleteField removes a hash field. Removing an absent field is not an error.
	DeleteField(ctx context.Context, key, field string) error

	// KeyEncoding reports how Scan returns key names.
	KeyEncoding() Encoding

	// Close releases the connection.
	Close() error
}

// DefaultAddr is used when Config.Addr is empty.
const DefaultAddr = "localhost:6379"

// Config describes how to connect to a store.
type Config struct {
	Addr     string        // host:port, defaults to DefaultAddr
	Username string        // ACL user, optional
	Password string        // optional
	DB       int           // logical database index
	Timeout  time.Duration // per-command and dial timeout; 0 disables
	Encoding Encoding      // how Scan returns key names
}

// Address returns Addr or DefaultAddr.
func (c Config) Address() string {
	if c.Addr == "" {
		return DefaultAddr
	}
	return c.Addr
}
