// Package cli implements the bulkclean command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/codeGROOVE-dev/bulkclean"
	"github.com/codeGROOVE-dev/bulkclean/pkg/keylog"
	"github.com/codeGROOVE-dev/bulkclean/pkg/metrics"
	"github.com/codeGROOVE-dev/bulkclean/pkg/store"
	"github.com/codeGROOVE-dev/bulkclean/pkg/store/goredis"
	"github.com/codeGROOVE-dev/bulkclean/pkg/store/valkey"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// Run is the main entry point. args includes the program name.
// Returns exit code.
func Run(ctx context.Context, in io.Reader, out, errOut io.Writer, args []string, env map[string]string) int {
	if len(args) > 0 {
		args = args[1:]
	}
	cfg, flags, err := parseArgs(args, env)
	if errors.Is(err, flag.ErrHelp) {
		printUsage(out)
		return exitOK
	}
	if err != nil {
		fprintln(errOut, "error:", err)
		if errors.Is(err, errUsage) {
			fprintln(errOut)
			printUsage(errOut)
		}
		return exitCode(err)
	}

	logger := newLogger(errOut, cfg.LogFormat, cfg.LogLevel)
	if cfg.Source != "" {
		logger.Debug("loaded config", "path", cfg.Source)
	}
	if err := run(ctx, in, out, errOut, cfg, flags, logger); err != nil {
		fprintln(errOut, "error:", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage),
		errors.Is(err, errConfigNotFound),
		errors.Is(err, errConfigInvalid),
		errors.Is(err, bulkclean.ErrConfiguration),
		errors.Is(err, bulkclean.ErrInvalidPattern):
		return exitUsage
	default:
		return exitFailure
	}
}

func run(ctx context.Context, in io.Reader, out, errOut io.Writer, cfg Config, flags runFlags, logger *slog.Logger) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck // connection teardown at exit

	reg := prometheus.NewRegistry()
	prog := newProgress(errOut, flags.dryRun)
	opts := append(cfg.cleanerOptions(),
		bulkclean.WithLogger(logger),
		bulkclean.WithMetrics(metrics.New(reg)),
		bulkclean.WithObserver(prog),
	)
	c, err := bulkclean.New(st, flags.patterns, opts...)
	if err != nil {
		return err
	}

	switch {
	case flags.showCheckpoint:
		return showCheckpoint(ctx, out, c)
	case flags.clearCheckpoint:
		if err := c.ClearCheckpoint(ctx); err != nil {
			return err
		}
		fprintln(out, "cleared checkpoint for", c.Identity())
		return nil
	}

	if flags.dryRun {
		fmt.Fprintf(errOut, "Search for keys:\n%s\n===========\n", strings.Join(c.Patterns(), ", ")) //nolint:errcheck // interactive output
	} else if !flags.yes {
		ok, err := confirm(in, out, c.Patterns())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	return withMetrics(ctx, cfg.MetricsAddr, reg, logger, func(ctx context.Context) error {
		if flags.dryRun {
			return listMatches(ctx, c, flags, out, errOut)
		}
		_, err := c.Cleanup(ctx, flags.restart)
		return err
	})
}

func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.Driver {
	case DriverRedis:
		st, err := goredis.New(ctx, cfg.storeConfig())
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		st, err := valkey.New(ctx, cfg.storeConfig())
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

func showCheckpoint(ctx context.Context, out io.Writer, c *bulkclean.Cleaner) error {
	cur, found, err := c.Checkpoint(ctx)
	if err != nil {
		return err
	}
	if !found {
		fprintln(out, "no checkpoint for", c.Identity())
		return nil
	}
	fmt.Fprintf(out, "checkpoint for %s: cursor %d\n", c.Identity(), cur) //nolint:errcheck // interactive output
	return nil
}

// listMatches streams dry-run matches to out, or to a key log file.
func listMatches(ctx context.Context, c *bulkclean.Cleaner, flags runFlags, out, errOut io.Writer) error {
	add := func(key string) error {
		_, err := fmt.Fprintln(out, key)
		return err
	}
	var kl *keylog.Writer
	if flags.output != "" {
		w, err := keylog.Create(flags.output)
		if err != nil {
			return err
		}
		kl, add = w, w.Add
	}

	for key, err := range c.Matches(ctx, flags.restart) {
		if err == nil {
			err = add(key)
		}
		if err != nil {
			if kl != nil {
				kl.Abort(err)
			}
			return err
		}
	}

	if kl != nil {
		if err := kl.Close(); err != nil {
			return err
		}
		fmt.Fprintf(errOut, "wrote %s keys to %s\n", humanize.Comma(kl.Count()), kl.Path()) //nolint:errcheck // interactive output
	}
	return nil
}

// withMetrics runs work while serving /metrics on addr. The server stops
// when work returns; a server failure cancels work.
func withMetrics(ctx context.Context, addr string, g prometheus.Gatherer, logger *slog.Logger, work func(context.Context) error) error {
	if addr == "" {
		return work(ctx)
	}
	srv, err := listenMetrics(addr, g)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	logger.Info("serving metrics", "addr", srv.Addr())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return srv.Serve(egCtx) })
	eg.Go(func() error {
		defer cancel()
		return work(egCtx)
	})
	return eg.Wait()
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}
