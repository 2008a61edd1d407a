// Package bulkclean deletes keys matching a set of patterns from a
// Redis-protocol key-value store.
//
// The Cleaner walks the keyspace with SCAN, filters each batch client-side
// with a compiled matcher, deletes the matches and periodically saves the
// SCAN cursor inside the same store so an interrupted run can resume.
//
// SCAN is approximate: keys written or removed during a run may be missed
// or visited twice. Every key that exists for the whole run is visited at
// least once. Deletion is idempotent, so duplicates and re-scans after a
// resume are harmless.
//
// Example:
//
//	st, _ := valkey.New(ctx, store.Config{Addr: "localhost:6379"})
//	c, err := bulkclean.New(st, []string{"user:*:junk", "test"},
//	    bulkclean.WithBatchSize(500),
//	    bulkclean.WithSleep(10*time.Millisecond),
//	)
//	if err != nil {
//	    return err
//	}
//	res, err := c.Cleanup(ctx, false)
package bulkclean

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/codeGROOVE-dev/bulkclean/pkg/cursor"
	"github.com/codeGROOVE-dev/bulkclean/pkg/pattern"
	"github.com/codeGROOVE-dev/bulkclean/pkg/store"
	"github.com/google/uuid"
)

// sizeSlack inflates DBSIZE to absorb keys SCAN returns more than once.
const sizeSlack = 1.1

// Result summarizes a run.
type Result struct {
	Deleted     int64  // keys the store reported as removed
	Matched     int64  // scanned keys that matched, duplicates included
	Scanned     int64  // keys returned by SCAN, duplicates included
	Batches     int64  // SCAN steps
	StartCursor uint64 // cursor the run started from
	Resumed     bool   // StartCursor came from a checkpoint
	DryRun      bool
}

// Cleaner runs pattern-filtered bulk deletes against a store.
// A Cleaner is not safe for concurrent Cleanup calls.
type Cleaner struct {
	store       store.Store
	matcher     *pattern.Matcher
	checkpoints *CheckpointStore // nil when checkpointing is disabled
	cfg         *config
	id          string
	patterns    []string
	interval    time.Duration
}

// New validates the store and options and compiles patterns.
// The store is borrowed; closing it remains the caller's job.
func New(st store.Store, patterns []string, opts ...Option) (*Cleaner, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if st == nil {
		return nil, fmt.Errorf("%w: nil store", ErrConfiguration)
	}
	if enc := st.KeyEncoding(); enc != store.EncodingString {
		return nil, fmt.Errorf("%w: store returns %s key names; patterns need decoded strings", ErrConfiguration, enc)
	}
	if cfg.batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", ErrConfiguration, cfg.batchSize)
	}
	if cfg.sleep < 0 {
		return nil, fmt.Errorf("%w: negative sleep %v", ErrConfiguration, cfg.sleep)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	c := &Cleaner{
		store:    st,
		cfg:      cfg,
		id:       pattern.Identity(patterns),
		patterns: pattern.Normalize(patterns),
	}

	switch p := cfg.checkpoints.(type) {
	case CheckpointsDisabled:
	case CheckpointsEnabled:
		if p.Interval < 0 || p.TTL < 0 {
			return nil, fmt.Errorf("%w: negative checkpoint interval or ttl", ErrConfiguration)
		}
		if cfg.checkpointKey == "" {
			return nil, fmt.Errorf("%w: empty checkpoint key", ErrConfiguration)
		}
		c.checkpoints = NewCheckpointStore(st, cfg.checkpointKey, p.TTL)
		c.checkpoints.logger = cfg.logger
		c.interval = p.Interval
	default:
		return nil, fmt.Errorf("%w: unknown checkpoint policy %T", ErrConfiguration, p)
	}

	m, err := pattern.Compile(
		pattern.Parse(patterns, cfg.regex),
		pattern.WithZeroWidthWildcard(cfg.zeroWidthWildcard),
	)
	if err != nil {
		return nil, err
	}
	c.matcher = m

	return c, nil
}

// Identity returns the checkpoint identity of the pattern set.
func (c *Cleaner) Identity() string {
	return c.id
}

// Patterns returns the normalized pattern set.
func (c *Cleaner) Patterns() []string {
	return append([]string(nil), c.patterns...)
}

// Checkpoint returns the saved cursor for this pattern set, if any.
func (c *Cleaner) Checkpoint(ctx context.Context) (uint64, bool, error) {
	if c.checkpoints == nil {
		return 0, false, nil
	}
	return c.checkpoints.Load(ctx, c.id)
}

// ClearCheckpoint drops the saved cursor for this pattern set.
func (c *Cleaner) ClearCheckpoint(ctx context.Context) error {
	if c.checkpoints == nil {
		return nil
	}
	return c.checkpoints.Clear(ctx, c.id)
}

// Cleanup runs until SCAN returns to cursor 0. With restart the saved
// checkpoint is ignored. In dry-run mode matching keys go to the Observer
// and nothing is deleted or checkpointed.
//
// On error the partial Result is returned; deletes already issued stay in
// effect and a later run resumes from the last checkpoint.
func (c *Cleaner) Cleanup(ctx context.Context, restart bool) (Result, error) {
	return c.run(ctx, restart, c.cfg.dryRun, nil)
}

// Matches lazily yields keys matching the pattern set without deleting
// anything. Breaking out of the loop stops the scan. A store error is
// yielded once as the final element.
func (c *Cleaner) Matches(ctx context.Context, restart bool) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stopped := false
		_, err := c.run(ctx, restart, true, func(key string) bool {
			if !yield(key, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield("", err)
		}
	}
}

// runState is the loop-local state of one run.
type runState struct {
	lastSave  time.Time
	cursor    uint64
	maxCursor uint64
}

func (c *Cleaner) run(ctx context.Context, restart, dryRun bool, emit func(string) bool) (res Result, err error) {
	obs := c.cfg.observer
	log := c.cfg.logger.With("run_id", uuid.NewString(), "patterns", c.id)
	res.DryRun = dryRun
	defer func() { obs.Done(res) }()

	st := runState{lastSave: c.cfg.now()}
	if !restart && c.checkpoints != nil {
		cur, found, err := c.checkpoints.Load(ctx, c.id)
		if err != nil {
			return res, err
		}
		if found {
			st.cursor = cur
			res.Resumed = true
		}
	}
	st.maxCursor = st.cursor
	res.StartCursor = st.cursor

	size, err := c.store.Size(ctx)
	if err != nil {
		return res, fmt.Errorf("estimate size: %w", err)
	}
	total := uint64(float64(size) * sizeSlack)
	obs.Start(cursor.Progress(st.cursor, st.maxCursor), total)
	log.Info("cleanup started",
		"cursor", st.cursor, "resumed", res.Resumed, "approx_keys", total,
		"keyspace_bound", cursor.KeyspaceSize(st.maxCursor),
		"dry_run", dryRun, "kind", c.matcher.Patterns()[0].Kind.String(), "matcher", c.matcher.String())

	for {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("cleanup stopped at cursor %d: %w", st.cursor, err)
		}

		start := time.Now()
		next, keys, err := c.store.Scan(ctx, st.cursor, c.cfg.batchSize)
		if err != nil {
			return res, fmt.Errorf("scan at cursor %d: %w", st.cursor, err)
		}
		res.Batches++
		res.Scanned += int64(len(keys))
		st.maxCursor = max(st.maxCursor, next)
		pos := cursor.Progress(next, st.maxCursor)
		obs.Progress(pos)
		c.cfg.metrics.RecordProgress(pos)

		matched := c.matcher.Filter(keys)
		if c.checkpoints != nil {
			matched = slices.DeleteFunc(matched, func(k string) bool { return k == c.checkpoints.Key() })
		}
		res.Matched += int64(len(matched))

		switch {
		case len(matched) == 0:
		case dryRun:
			for _, k := range matched {
				obs.Matched(k)
				if emit != nil && !emit(k) {
					return res, nil
				}
			}
		default:
			n, err := c.store.Delete(ctx, matched...)
			if err != nil {
				return res, fmt.Errorf("delete %d keys at cursor %d: %w", len(matched), st.cursor, err)
			}
			res.Deleted += n
			obs.Deleted(n)
			c.cfg.metrics.RecordDeleted(n)
			log.Debug("batch deleted", "cursor", next, "matched", len(matched), "deleted", n)

			c.maybeCheckpoint(ctx, log, &st, next)

			if err := c.pause(ctx); err != nil {
				return res, fmt.Errorf("cleanup stopped at cursor %d: %w", next, err)
			}
		}
		c.cfg.metrics.RecordBatch(len(keys), len(matched), time.Since(start).Seconds())

		st.cursor = next
		if next == 0 {
			break
		}
	}

	if !dryRun && c.checkpoints != nil {
		if err := c.checkpoints.Clear(ctx, c.id); err != nil {
			log.Warn("failed to clear checkpoint after completion", "error", err)
		}
	}

	log.Info("cleanup finished",
		"deleted", res.Deleted, "matched", res.Matched, "scanned", res.Scanned, "batches", res.Batches,
		"keyspace_bound", cursor.KeyspaceSize(st.maxCursor))
	return res, nil
}

// maybeCheckpoint saves next when the interval elapsed. A failed save is
// logged and retried after the next delete; it never fails the run.
func (c *Cleaner) maybeCheckpoint(ctx context.Context, log *slog.Logger, st *runState, next uint64) {
	if c.checkpoints == nil || next == 0 {
		return
	}
	now := c.cfg.now()
	if !checkpointDue(now, st.lastSave, c.interval) {
		return
	}

	err := c.checkpoints.Save(ctx, c.id, next)
	c.cfg.metrics.RecordCheckpoint(err)
	if err != nil {
		log.Warn("checkpoint save failed", "cursor", next, "error", err)
		c.cfg.observer.CheckpointFailed(err)
		return
	}
	st.lastSave = now
	log.Info("checkpoint saved", "cursor", next)
	c.cfg.observer.CheckpointSaved(next)
}

func (c *Cleaner) pause(ctx context.Context) error {
	if c.cfg.sleep <= 0 {
		return nil
	}
	t := time.NewTimer(c.cfg.sleep)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
