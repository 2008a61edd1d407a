package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/codeGROOVE-dev/bulkclean"
	"github.com/codeGROOVE-dev/bulkclean/pkg/keylog"
	"github.com/google/go-cmp/cmp"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	env := map[string]string{"XDG_CONFIG_HOME": t.TempDir()}
	code := Run(context.Background(), strings.NewReader(stdin), &out, &errOut, append([]string{"bulkclean"}, args...), env)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func seed(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	for i := range 50 {
		mr.Set(fmt.Sprintf("user:%d:session", i), "v")
		mr.Set(fmt.Sprintf("user:%d:junk", i), "v")
	}
	mr.Set("test", "v")
	mr.Set("test_important", "v")
	return mr
}

func redisArgs(mr *miniredis.Miniredis, args ...string) []string {
	return append([]string{"--driver", "redis", "--addr", mr.Addr(), "--batch", "7"}, args...)
}

func junkKeys(n int) []string {
	var keys []string
	for i := range n {
		keys = append(keys, fmt.Sprintf("user:%d:junk", i))
	}
	slices.Sort(keys)
	return keys
}

func TestRun_DeletesWithYes(t *testing.T) {
	mr := seed(t)
	res := runCLI(t, "", redisArgs(mr, "--yes", "user:*:junk", "test")...)
	if res.code != exitOK {
		t.Fatalf("exit %d; stderr:\n%s", res.code, res.stderr)
	}
	if got := len(mr.Keys()); got != 51 {
		t.Errorf("keys left = %d; want 51", got)
	}
	if !mr.Exists("test_important") || mr.Exists("test") {
		t.Error("only the exact key test should be deleted")
	}
	if !strings.Contains(res.stderr, "51 keys deleted") {
		t.Errorf("summary missing from stderr:\n%s", res.stderr)
	}
}

func TestRun_Prompt(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		mr := seed(t)
		res := runCLI(t, "n\n", redisArgs(mr, "user:*:junk")...)
		if res.code != exitOK {
			t.Fatalf("exit %d; stderr:\n%s", res.code, res.stderr)
		}
		if !strings.Contains(res.stdout, "Do you want to continue? [y/n]") {
			t.Errorf("prompt missing:\n%s", res.stdout)
		}
		if got := len(mr.Keys()); got != 102 {
			t.Errorf("keys left = %d; want all 102", got)
		}
	})
	t.Run("accepted after retry", func(t *testing.T) {
		mr := seed(t)
		res := runCLI(t, "maybe\ny\n", redisArgs(mr, "user:*:junk")...)
		if res.code != exitOK {
			t.Fatalf("exit %d; stderr:\n%s", res.code, res.stderr)
		}
		if n := strings.Count(res.stdout, "Do you want to continue?"); n != 2 {
			t.Errorf("asked %d times; want 2", n)
		}
		if got := len(mr.Keys()); got != 52 {
			t.Errorf("keys left = %d; want 52", got)
		}
	})
}

func TestRun_DryRunPrintsKeys(t *testing.T) {
	mr := seed(t)
	res := runCLI(t, "", redisArgs(mr, "--dry-run", "user:*:junk")...)
	if res.code != exitOK {
		t.Fatalf("exit %d; stderr:\n%s", res.code, res.stderr)
	}
	got := strings.Fields(res.stdout)
	slices.Sort(got)
	if diff := cmp.Diff(junkKeys(50), got); diff != "" {
		t.Errorf("printed keys mismatch (-want +got):\n%s", diff)
	}
	if got := len(mr.Keys()); got != 102 {
		t.Errorf("dry run deleted keys: %d left", got)
	}
	if strings.Contains(res.stdout, "continue?") {
		t.Error("dry run should not prompt")
	}
}

func TestRun_DryRunOutputFile(t *testing.T) {
	mr := seed(t)
	path := filepath.Join(t.TempDir(), "keys.zst")
	res := runCLI(t, "", redisArgs(mr, "-D", "-o", path, "user:*:junk")...)
	if res.code != exitOK {
		t.Fatalf("exit %d; stderr:\n%s", res.code, res.stderr)
	}
	if res.stdout != "" {
		t.Errorf("keys leaked to stdout:\n%s", res.stdout)
	}
	got, err := keylog.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	slices.Sort(got)
	if diff := cmp.Diff(junkKeys(50), got); diff != "" {
		t.Errorf("key log mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_Checkpoint(t *testing.T) {
	mr := seed(t)
	mr.HSet(bulkclean.DefaultCheckpointKey, "test;user:*:junk", "42")

	res := runCLI(t, "", redisArgs(mr, "--show-checkpoint", "user:*:junk", "test")...)
	if res.code != exitOK || !strings.Contains(res.stdout, "cursor 42") {
		t.Fatalf("show: exit %d stdout %q stderr %q", res.code, res.stdout, res.stderr)
	}

	res = runCLI(t, "", redisArgs(mr, "--clear-checkpoint", "test", "user:*:junk")...)
	if res.code != exitOK {
		t.Fatalf("clear: exit %d stderr %q", res.code, res.stderr)
	}
	if mr.Exists(bulkclean.DefaultCheckpointKey) {
		t.Error("checkpoint hash should be gone")
	}

	res = runCLI(t, "", redisArgs(mr, "--show-checkpoint", "test", "user:*:junk")...)
	if !strings.Contains(res.stdout, "no checkpoint") {
		t.Errorf("show after clear = %q", res.stdout)
	}
}

func TestRun_MetricsServer(t *testing.T) {
	mr := seed(t)
	res := runCLI(t, "", redisArgs(mr, "-y", "--metrics-addr", "127.0.0.1:0", "user:*:junk")...)
	if res.code != exitOK {
		t.Fatalf("exit %d; stderr:\n%s", res.code, res.stderr)
	}
	if got := len(mr.Keys()); got != 52 {
		t.Errorf("keys left = %d; want 52", got)
	}
}

func TestRun_ExitCodes(t *testing.T) {
	mr := seed(t)
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"help", []string{"--help"}, exitOK},
		{"no patterns", redisArgs(mr, "-y"), exitUsage},
		{"unknown flag", []string{"--bogus", "x"}, exitUsage},
		{"unknown driver", []string{"--driver", "memcached", "x"}, exitUsage},
		{"bad log level", []string{"--log-level", "loud", "x"}, exitUsage},
		{"output without dry run", []string{"--output", "keys.txt", "x"}, exitUsage},
		{"missing config", []string{"--config", "/nonexistent/bulkclean.json", "x"}, exitUsage},
		{"bad regex", redisArgs(mr, "-y", "--regex", "user:("), exitUsage},
		{"unreachable", []string{"--driver", "redis", "--addr", "127.0.0.1:1", "--timeout", "200ms", "-y", "x"}, exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, "", tt.args...)
			if res.code != tt.want {
				t.Errorf("exit %d; want %d\nstderr:\n%s", res.code, tt.want, res.stderr)
			}
		})
	}
}

func TestParseArgs_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	conf := `{
		// comments and trailing commas are fine
		"addr": "file:6379",
		"password": "from-file",
		"batch": 100,
		"timeout": "5s",
		"checkpoint_interval": 30,
	}`
	if err := os.WriteFile(path, []byte(conf), 0o600); err != nil {
		t.Fatal(err)
	}
	env := map[string]string{"BULKCLEAN_ADDR": "env:6379"}

	cfg, flags, err := parseArgs([]string{"--config", path, "--batch", "9", "a", "b"}, env)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if cfg.Addr != "env:6379" {
		t.Errorf("Addr = %q; env should beat the file", cfg.Addr)
	}
	if cfg.Password != "from-file" {
		t.Errorf("Password = %q; want from-file", cfg.Password)
	}
	if cfg.Batch != 9 {
		t.Errorf("Batch = %d; flag should beat the file", cfg.Batch)
	}
	if time.Duration(cfg.Timeout) != 5*time.Second {
		t.Errorf("Timeout = %v; want 5s", time.Duration(cfg.Timeout))
	}
	if time.Duration(cfg.CheckpointInterval) != 30*time.Second {
		t.Errorf("CheckpointInterval = %v; want 30s", time.Duration(cfg.CheckpointInterval))
	}
	if time.Duration(cfg.CheckpointTTL) != bulkclean.DefaultCheckpointTTL {
		t.Errorf("CheckpointTTL = %v; want default", time.Duration(cfg.CheckpointTTL))
	}
	if cfg.Source != path {
		t.Errorf("Source = %q; want %q", cfg.Source, path)
	}
	if diff := cmp.Diff([]string{"a", "b"}, flags.patterns); diff != "" {
		t.Errorf("patterns mismatch (-want +got):\n%s", diff)
	}

	cfg, _, err = parseArgs([]string{"--config", path, "--addr", "flag:6379", "a"}, env)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if cfg.Addr != "flag:6379" {
		t.Errorf("Addr = %q; flag should beat env", cfg.Addr)
	}
}

func TestParseArgs_DefaultConfigPath(t *testing.T) {
	xdg := t.TempDir()
	if err := os.MkdirAll(filepath.Join(xdg, "bulkclean"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(xdg, "bulkclean", "config.json"), []byte(`{"driver": "redis", "db": 3}`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := parseArgs([]string{"x"}, map[string]string{"XDG_CONFIG_HOME": xdg})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if cfg.Driver != DriverRedis || cfg.DB != 3 {
		t.Errorf("cfg = %+v; want redis driver on db 3", cfg)
	}
	if cfg.Batch != 500 || cfg.Addr != "localhost:6379" {
		t.Errorf("defaults lost: batch %d addr %q", cfg.Batch, cfg.Addr)
	}
}

func TestParseArgs_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"adress": "typo"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := parseArgs([]string{"--config", path, "x"}, nil); exitCode(err) != exitUsage {
		t.Errorf("unknown field: err = %v; want usage error", err)
	}
}
