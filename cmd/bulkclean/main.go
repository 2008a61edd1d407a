// Package main provides bulkclean, a pattern-based bulk key deleter for
// Redis-protocol stores.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/codeGROOVE-dev/bulkclean/internal/cli"
)

func main() {
	environ := os.Environ()
	env := make(map[string]string, len(environ))
	for _, e := range environ {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args, env)
	stop()
	os.Exit(code)
}
