package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
)

// runFlags are the per-invocation flags that have no config file equivalent.
type runFlags struct {
	configPath      string
	output          string
	patterns        []string
	dryRun          bool
	restart         bool
	yes             bool
	showCheckpoint  bool
	clearCheckpoint bool
	help            bool
}

// bindConfigFlags registers the flags backed by Config fields, using the
// current field values as defaults.
func bindConfigFlags(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "store address as host:port (env BULKCLEAN_ADDR)")
	fs.IntVar(&c.DB, "db", c.DB, "database number")
	fs.StringVar(&c.Username, "username", c.Username, "ACL username")
	fs.StringVarP(&c.Password, "password", "P", c.Password, "password (env BULKCLEAN_PASSWORD)")
	fs.StringVar(&c.Driver, "driver", c.Driver, "client library: valkey or redis")
	fs.DurationVar((*time.Duration)(&c.Timeout), "timeout", time.Duration(c.Timeout), "socket timeout per command")
	fs.Int64VarP(&c.Batch, "batch", "b", c.Batch, "SCAN COUNT hint")
	fs.DurationVar((*time.Duration)(&c.Sleep), "sleep", time.Duration(c.Sleep), "pause after every delete")
	fs.BoolVar(&c.Regex, "regex", c.Regex, "treat patterns as regular expressions")
	fs.BoolVar(&c.GlobEmpty, "glob-empty", c.GlobEmpty, "let * in globs match the empty string")
	fs.BoolVar(&c.NoCheckpoint, "no-checkpoint", c.NoCheckpoint, "do not save the SCAN cursor")
	fs.DurationVar((*time.Duration)(&c.CheckpointInterval), "checkpoint-interval", time.Duration(c.CheckpointInterval), "minimum time between cursor saves")
	fs.DurationVar((*time.Duration)(&c.CheckpointTTL), "checkpoint-ttl", time.Duration(c.CheckpointTTL), "expiry of the saved cursor")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve Prometheus metrics on this address during the run")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: text or json")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn or error")
}

func newFlagSet(c *Config, r *runFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("bulkclean", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false

	fs.BoolVarP(&r.dryRun, "dry-run", "D", false, "print matching keys instead of deleting them")
	fs.BoolVarP(&r.restart, "restart", "R", false, "ignore the saved cursor and start from the beginning")
	fs.BoolVarP(&r.yes, "yes", "y", false, "do not ask for confirmation")
	fs.StringVarP(&r.output, "output", "o", "", "with --dry-run, write keys to this file (.zst and .s2 are compressed)")
	fs.BoolVar(&r.showCheckpoint, "show-checkpoint", false, "print the saved cursor for the patterns and exit")
	fs.BoolVar(&r.clearCheckpoint, "clear-checkpoint", false, "remove the saved cursor for the patterns and exit")
	fs.StringVarP(&r.configPath, "config", "c", "", "JSONC config file (default $XDG_CONFIG_HOME/bulkclean/config.json)")
	bindConfigFlags(fs, c)
	fs.BoolVarP(&r.help, "help", "h", false, "show this help")
	return fs
}

// parseArgs resolves the configuration with precedence
// defaults < config file < environment < flags.
// It returns flag.ErrHelp when help was requested.
func parseArgs(args []string, env map[string]string) (Config, runFlags, error) {
	var r runFlags
	parsed := DefaultConfig()
	fs := newFlagSet(&parsed, &r)
	if err := fs.Parse(args); err != nil {
		return Config{}, r, fmt.Errorf("%w: %w", errUsage, err)
	}
	if r.help {
		return Config{}, r, flag.ErrHelp
	}
	r.patterns = fs.Args()

	cfg, err := loadConfig(r.configPath, env)
	if err != nil {
		return Config{}, r, err
	}

	// Replay only the flags given on the command line so they win over
	// the file and the environment without resetting them to defaults.
	final := flag.NewFlagSet("final", flag.ContinueOnError)
	bindConfigFlags(final, &cfg)
	var setErr error
	fs.Visit(func(f *flag.Flag) {
		if setErr != nil || final.Lookup(f.Name) == nil {
			return
		}
		setErr = final.Set(f.Name, f.Value.String())
	})
	if setErr != nil {
		return Config{}, r, fmt.Errorf("%w: %w", errUsage, setErr)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, r, err
	}
	switch {
	case len(r.patterns) == 0:
		return Config{}, r, fmt.Errorf("%w: at least one pattern is required", errUsage)
	case r.output != "" && !r.dryRun:
		return Config{}, r, fmt.Errorf("%w: --output requires --dry-run", errUsage)
	case r.showCheckpoint && r.clearCheckpoint:
		return Config{}, r, fmt.Errorf("%w: --show-checkpoint and --clear-checkpoint are exclusive", errUsage)
	}
	return cfg, r, nil
}

func printUsage(w io.Writer) {
	var r runFlags
	c := DefaultConfig()
	fs := newFlagSet(&c, &r)

	var b strings.Builder
	b.WriteString("Usage: bulkclean [flags] PATTERN...\n\n")
	b.WriteString("Delete every key matching any PATTERN, walking the keyspace with SCAN.\n")
	b.WriteString("Globs use * as a wildcard; other characters match literally.\n\n")
	b.WriteString("Flags:\n")
	b.WriteString(fs.FlagUsages())
	fmt.Fprint(w, b.String()) //nolint:errcheck // nothing to do if the terminal is gone
}
