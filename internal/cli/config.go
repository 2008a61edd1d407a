package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/codeGROOVE-dev/bulkclean"
	"github.com/codeGROOVE-dev/bulkclean/pkg/store"
	"github.com/tailscale/hujson"
)

// Drivers accepted by --driver.
const (
	DriverValkey = "valkey"
	DriverRedis  = "redis"
)

var (
	errUsage          = errors.New("usage error")
	errConfigNotFound = errors.New("config file not found")
	errConfigInvalid  = errors.New("invalid config file")
)

// Duration is a time.Duration read from config files as "90s" or "1h".
type Duration time.Duration

// UnmarshalJSON accepts a Go duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		secs, nerr := strconv.ParseFloat(string(b), 64)
		if nerr != nil {
			return fmt.Errorf("duration must be a string like \"30s\" or a number of seconds: %s", b)
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalJSON writes the duration in Go syntax.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config holds the settings that can come from a config file,
// the environment or flags.
type Config struct {
	Addr               string   `json:"addr"`
	Username           string   `json:"username,omitempty"`
	Password           string   `json:"password,omitempty"`
	DB                 int      `json:"db"`
	Driver             string   `json:"driver"`
	Batch              int64    `json:"batch"`
	Timeout            Duration `json:"timeout"`
	Sleep              Duration `json:"sleep,omitempty"`
	CheckpointInterval Duration `json:"checkpoint_interval"`
	CheckpointTTL      Duration `json:"checkpoint_ttl"`
	NoCheckpoint       bool     `json:"no_checkpoint,omitempty"`
	Regex              bool     `json:"regex,omitempty"`
	GlobEmpty          bool     `json:"glob_empty,omitempty"`
	LogFormat          string   `json:"log_format"`
	LogLevel           string   `json:"log_level"`
	MetricsAddr        string   `json:"metrics_addr,omitempty"`

	// Source is the config file that was loaded, if any.
	Source string `json:"-"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Addr:               store.DefaultAddr,
		Driver:             DriverValkey,
		Batch:              500,
		Timeout:            Duration(60 * time.Second),
		CheckpointInterval: Duration(bulkclean.DefaultCheckpointInterval),
		CheckpointTTL:      Duration(bulkclean.DefaultCheckpointTTL),
		LogFormat:          "text",
		LogLevel:           "warn",
	}
}

// defaultConfigPath returns $XDG_CONFIG_HOME/bulkclean/config.json, falling
// back to ~/.config. It returns "" when neither variable is set.
func defaultConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "bulkclean", "config.json")
	}
	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "bulkclean", "config.json")
	}
	return ""
}

// loadConfig layers the config file and environment over the defaults.
// An explicit path must exist; the default path is optional.
func loadConfig(path string, env map[string]string) (Config, error) {
	cfg := DefaultConfig()

	mustExist := path != ""
	if !mustExist {
		path = defaultConfigPath(env)
	}
	if path != "" {
		loaded, err := loadConfigFile(path, mustExist, &cfg)
		if err != nil {
			return Config{}, err
		}
		if loaded {
			cfg.Source = path
		}
	}

	if v := env["BULKCLEAN_ADDR"]; v != "" {
		cfg.Addr = v
	}
	if v := env["BULKCLEAN_PASSWORD"]; v != "" {
		cfg.Password = v
	}
	return cfg, nil
}

// loadConfigFile decodes the JSONC file at path onto cfg. Fields missing
// from the file keep their current value.
func loadConfigFile(path string, mustExist bool, cfg *Config) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, fmt.Errorf("%w: %s", errConfigNotFound, path)
		}
		return false, fmt.Errorf("read config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return false, fmt.Errorf("%w %s: invalid JSONC: %w", errConfigInvalid, path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}
	return true, nil
}

// validate checks values that flags and files cannot constrain by type.
func (c *Config) validate() error {
	switch c.Driver {
	case DriverValkey, DriverRedis:
	default:
		return fmt.Errorf("%w: unknown driver %q (want %s or %s)", errUsage, c.Driver, DriverValkey, DriverRedis)
	}
	if c.Batch <= 0 {
		return fmt.Errorf("%w: --batch must be positive, got %d", errUsage, c.Batch)
	}
	if c.DB < 0 {
		return fmt.Errorf("%w: --db must not be negative, got %d", errUsage, c.DB)
	}
	if c.Timeout < 0 || c.Sleep < 0 || c.CheckpointInterval < 0 || c.CheckpointTTL < 0 {
		return fmt.Errorf("%w: durations must not be negative", errUsage)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q (want text or json)", errUsage, c.LogFormat)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: log level: %w", errUsage, err)
	}
	return nil
}

// storeConfig returns the connection settings for the store drivers.
func (c *Config) storeConfig() store.Config {
	return store.Config{
		Addr:     c.Addr,
		Username: c.Username,
		Password: c.Password,
		DB:       c.DB,
		Timeout:  time.Duration(c.Timeout),
	}
}

// cleanerOptions converts the settings into Cleaner options.
func (c *Config) cleanerOptions() []bulkclean.Option {
	opts := []bulkclean.Option{
		bulkclean.WithBatchSize(c.Batch),
		bulkclean.WithSleep(time.Duration(c.Sleep)),
		bulkclean.WithRegexPatterns(c.Regex),
		bulkclean.WithZeroWidthWildcard(c.GlobEmpty),
	}
	if c.NoCheckpoint {
		opts = append(opts, bulkclean.WithCheckpoints(bulkclean.CheckpointsDisabled{}))
	} else {
		opts = append(opts, bulkclean.WithCheckpoints(bulkclean.CheckpointsEnabled{
			Interval: time.Duration(c.CheckpointInterval),
			TTL:      time.Duration(c.CheckpointTTL),
		}))
	}
	return opts
}
