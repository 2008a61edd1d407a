// Package memory provides an in-process store that mimics the SCAN behavior
// of a Redis-protocol server: keys live in a power-of-two bucket table and
// SCAN walks buckets in reverse-binary order, so cursors are not monotonic.
//
// It exists for tests; it is safe for concurrent use.
package memory

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"math/bits"
	"slices"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/bulkclean/pkg/store"
)

const minBuckets = 4

type entry struct {
	value    string
	fields   map[string]string // non-nil for hashes
	expireAt time.Time         // zero means no TTL
}

// Store is an in-memory store.Store.
//
//nolint:govet // fieldalignment - mutex kept next to the data it guards
type Store struct {
	mu       sync.Mutex
	buckets  [][]string
	entries  map[string]*entry
	encoding store.Encoding
	now      func() time.Time
	fault    func(op string) error
	calls    map[string]int
}

// Option configures a Store.
type Option func(*Store)

// WithEncoding sets the key encoding reported to callers.
func WithEncoding(e store.Encoding) Option {
	return func(s *Store) {
		s.encoding = e
	}
}

// WithClock overrides time.Now for TTL handling.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithBuckets sets the initial table size, rounded up to a power of two.
func WithBuckets(n int) Option {
	return func(s *Store) {
		s.buckets = make([][]string, roundPow2(n))
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		buckets: make([][]string, minBuckets),
		entries: make(map[string]*entry),
		now:     time.Now,
		calls:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFault installs a hook called before every operation. A non-nil result
// fails the operation as a transport error.
func (s *Store) SetFault(fn func(op string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Store) begin(op string) error {
	s.calls[op]++
	if s.fault == nil {
		return nil
	}
	if err := s.fault(op); err != nil {
		return fmt.Errorf("memory %s: %w: %w", op, store.ErrUnavailable, err)
	}
	return nil
}

func roundPow2(n int) int {
	if n <= minBuckets {
		return minBuckets
	}
	return 1 << bits.Len(uint(n-1))
}

func bucketOf(key string, size int) int {
	h := fnv.New64a()
	h.Write([]byte(key)) //nolint:errcheck // hash writes never fail
	return int(h.Sum64() & uint64(size-1))
}

// live returns the entry for key, dropping it if expired.
func (s *Store) live(key string) (*entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expireAt.IsZero() && !s.now().Before(e.expireAt) {
		s.removeLocked(key)
		return nil, false
	}
	return e, true
}

func (s *Store) insertLocked(key string, e *entry) {
	if _, ok := s.entries[key]; !ok {
		if len(s.entries) >= len(s.buckets) {
			s.growLocked()
		}
		b := bucketOf(key, len(s.buckets))
		s.buckets[b] = append(s.buckets[b], key)
	}
	s.entries[key] = e
}

func (s *Store) removeLocked(key string) {
	if _, ok := s.entries[key]; !ok {
		return
	}
	delete(s.entries, key)
	b := bucketOf(key, len(s.buckets))
	if i := slices.Index(s.buckets[b], key); i >= 0 {
		s.buckets[b] = slices.Delete(s.buckets[b], i, i+1)
	}
}

// growLocked doubles the table. The reverse-binary cursor stays valid
// across growth, which is what makes SCAN resumable.
func (s *Store) growLocked() {
	next := make([][]string, len(s.buckets)*2)
	for _, bucket := range s.buckets {
		for _, k := range bucket {
			b := bucketOf(k, len(next))
			next[b] = append(next[b], k)
		}
	}
	s.buckets = next
}

// Set stores a string value. ttl <= 0 means no expiry.
func (s *Store) Set(key, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry{value: value}
	if ttl > 0 {
		e.expireAt = s.now().Add(ttl)
	}
	s.insertLocked(key, e)
}

// Exists reports whether key is present and not expired.
func (s *Store) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(key)
	return ok
}

// Keys returns all live keys, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	out := keys[:0]
	for _, k := range keys {
		if _, ok := s.live(k); ok {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// TTL returns the remaining time to live of key.
func (s *Store) TTL(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok || e.expireAt.IsZero() {
		return 0, false
	}
	return e.expireAt.Sub(s.now()), true
}

// Scan walks buckets from cursor in reverse-binary order until at least
// count keys were collected or the walk wraps to 0.
func (s *Store) Scan(_ context.Context, cursor uint64, count int64) (uint64, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("scan"); err != nil {
		return 0, nil, err
	}
	if count <= 0 {
		count = 10
	}

	mask := uint64(len(s.buckets) - 1)
	v := cursor
	var keys []string
	for {
		bucket := slices.Clone(s.buckets[v&mask])
		for _, k := range bucket {
			if _, ok := s.live(k); ok {
				keys = append(keys, k)
			}
		}

		v |= ^mask
		v = bits.Reverse64(v)
		v++
		v = bits.Reverse64(v)

		if v == 0 || int64(len(keys)) >= count {
			break
		}
	}

	if s.encoding == store.EncodingRaw {
		for i, k := range keys {
			keys[i] = hex.EncodeToString([]byte(k))
		}
	}
	return v, keys, nil
}

// Delete removes keys and returns how many were live.
func (s *Store) Delete(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("del"); err != nil {
		return 0, err
	}
	var n int64
	for _, k := range keys {
		if _, ok := s.live(k); ok {
			s.removeLocked(k)
			n++
		}
	}
	return n, nil
}

// Size returns the number of stored keys, including not-yet-purged expired ones.
func (s *Store) Size(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("dbsize"); err != nil {
		return 0, err
	}
	return int64(len(s.entries)), nil
}

// GetField reads a hash field.
func (s *Store) GetField(_ context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("hget"); err != nil {
		return "", false, err
	}
	e, ok := s.live(key)
	if !ok {
		return "", false, nil
	}
	if e.fields == nil {
		return "", false, fmt.Errorf("memory hget %q: WRONGTYPE", key)
	}
	v, ok := e.fields[field]
	return v, ok, nil
}

// SetField writes a hash field and resets the TTL of the hash.
func (s *Store) SetField(_ context.Context, key, field, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("hset"); err != nil {
		return err
	}
	e, ok := s.live(key)
	if !ok {
		e = &entry{fields: make(map[string]string)}
		s.insertLocked(key, e)
	}
	if e.fields == nil {
		return fmt.Errorf("memory hset %q: WRONGTYPE", key)
	}
	e.fields[field] = value
	if ttl > 0 {
		e.expireAt = s.now().Add(ttl)
	}
	return nil
}

// DeleteField removes a hash field; the hash is dropped when it becomes empty.
func (s *Store) DeleteField(_ context.Context, key, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("hdel"); err != nil {
		return err
	}
	e, ok := s.live(key)
	if !ok || e.fields == nil {
		return nil
	}
	delete(e.fields, field)
	if len(e.fields) == 0 {
		s.removeLocked(key)
	}
	return nil
}

// KeyEncoding reports the configured encoding.
func (s *Store) KeyEncoding() store.Encoding {
	return s.encoding
}

// Close is a no-op.
func (*Store) Close() error {
	return nil
}
