package bulkclean

import (
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/bulkclean/pkg/metrics"
)

// Defaults applied by New.
const (
	DefaultBatchSize          = 1000
	DefaultCheckpointInterval = time.Minute
	DefaultCheckpointTTL      = 30 * 24 * time.Hour
	DefaultCheckpointKey      = "redis_cleaner:cursor"
)

// CheckpointPolicy controls cursor checkpointing.
// It is either CheckpointsDisabled or CheckpointsEnabled.
type CheckpointPolicy interface {
	checkpointPolicy()
}

// CheckpointsDisabled turns checkpointing off; every run starts at cursor 0.
type CheckpointsDisabled struct{}

// CheckpointsEnabled saves the cursor at most once per Interval and keeps
// the checkpoint record alive for TTL after the last save.
type CheckpointsEnabled struct {
	Interval time.Duration
	TTL      time.Duration
}

func (CheckpointsDisabled) checkpointPolicy() {}
func (CheckpointsEnabled) checkpointPolicy()  {}

type config struct {
	checkpoints       CheckpointPolicy
	observer          Observer
	logger            *slog.Logger
	metrics           *metrics.Metrics
	now               func() time.Time
	checkpointKey     string
	batchSize         int64
	sleep             time.Duration
	regex             bool
	zeroWidthWildcard bool
	dryRun            bool
}

func defaultConfig() *config {
	return &config{
		checkpoints: CheckpointsEnabled{
			Interval: DefaultCheckpointInterval,
			TTL:      DefaultCheckpointTTL,
		},
		observer:      nopObserver{},
		now:           time.Now,
		checkpointKey: DefaultCheckpointKey,
		batchSize:     DefaultBatchSize,
	}
}

// Option configures a Cleaner.
type Option func(*config)

// WithRegexPatterns treats patterns as RE2 regular expressions instead of globs.
func WithRegexPatterns(enabled bool) Option {
	return func(c *config) {
		c.regex = enabled
	}
}

// WithZeroWidthWildcard lets '*' in globs match the empty string.
// Default: '*' requires at least one character.
func WithZeroWidthWildcard(enabled bool) Option {
	return func(c *config) {
		c.zeroWidthWildcard = enabled
	}
}

// WithBatchSize sets the SCAN COUNT hint. Default is 1000.
func WithBatchSize(n int64) Option {
	return func(c *config) {
		c.batchSize = n
	}
}

// WithSleep pauses for d after every delete. Zero disables the pause.
func WithSleep(d time.Duration) Option {
	return func(c *config) {
		c.sleep = d
	}
}

// WithCheckpoints sets the checkpoint policy.
// Default is CheckpointsEnabled{Interval: 1m, TTL: 30 days}.
func WithCheckpoints(p CheckpointPolicy) Option {
	return func(c *config) {
		c.checkpoints = p
	}
}

// WithCheckpointKey overrides the hash key holding checkpoints.
func WithCheckpointKey(key string) Option {
	return func(c *config) {
		c.checkpointKey = key
	}
}

// WithDryRun reports matching keys without deleting them.
func WithDryRun(enabled bool) Option {
	return func(c *config) {
		c.dryRun = enabled
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithObserver receives progress callbacks.
func WithObserver(o Observer) Option {
	return func(c *config) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithMetrics records run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithClock overrides time.Now for checkpoint timing.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}
