package bulkclean

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/codeGROOVE-dev/bulkclean/pkg/store"
)

// CheckpointStore keeps one cursor per pattern-set identity in a single
// hash inside the store being cleaned. Each save refreshes the hash TTL so
// abandoned checkpoints expire on their own.
//
// The hash lives in the keyspace being cleaned. A Cleaner with checkpoints
// enabled never deletes it, even when a pattern such as "*" matches it.
//
// Two runs with the same pattern set share a checkpoint; nothing prevents
// them from overwriting each other.
type CheckpointStore struct {
	store  store.Store
	logger *slog.Logger
	key    string
	ttl    time.Duration
}

// NewCheckpointStore returns a CheckpointStore writing to the hash at key.
func NewCheckpointStore(st store.Store, key string, ttl time.Duration) *CheckpointStore {
	return &CheckpointStore{store: st, key: key, ttl: ttl, logger: slog.Default()}
}

// Key returns the hash key holding checkpoints.
func (c *CheckpointStore) Key() string {
	return c.key
}

// Load returns the saved cursor for id. A missing or unparsable value
// reports found=false.
func (c *CheckpointStore) Load(ctx context.Context, id string) (cursor uint64, found bool, err error) {
	raw, ok, err := c.store.GetField(ctx, c.key, id)
	if err != nil {
		return 0, false, fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok {
		return 0, false, nil
	}
	cursor, err = strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.logger.Warn("ignoring corrupt checkpoint", "key", c.key, "patterns", id, "value", raw)
		return 0, false, nil
	}
	return cursor, true, nil
}

// Save stores cursor for id as a decimal string and refreshes the TTL.
func (c *CheckpointStore) Save(ctx context.Context, id string, cursor uint64) error {
	if err := c.store.SetField(ctx, c.key, id, strconv.FormatUint(cursor, 10), c.ttl); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Clear removes the checkpoint for id.
func (c *CheckpointStore) Clear(ctx context.Context, id string) error {
	if err := c.store.DeleteField(ctx, c.key, id); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// checkpointDue reports whether more than interval passed since last.
func checkpointDue(now, last time.Time, interval time.Duration) bool {
	return now.Sub(last) > interval
}
