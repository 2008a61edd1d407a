package keylog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriter_RoundTrip(t *testing.T) {
	for _, name := range []string{"keys.txt", "keys.zst", "keys.s2"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			w, err := Create(path)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			var want []string
			for i := range 1000 {
				k := fmt.Sprintf("user:%d:junk", i)
				want = append(want, k)
				if err := w.Add(k); err != nil {
					t.Fatalf("Add: %v", err)
				}
			}
			if _, err := os.Stat(path); !os.IsNotExist(err) {
				t.Errorf("log visible before Close: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if w.Count() != 1000 {
				t.Errorf("Count = %d; want 1000", w.Count())
			}

			got, err := Read(path)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("keys mismatch (-want +got):\n%s", diff)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("Stat: %v", err)
			}
			if perm := info.Mode().Perm(); perm != filePerms {
				t.Errorf("permissions = %v; want %v", perm, os.FileMode(filePerms))
			}
		})
	}
}

func TestWriter_EscapesLineBreaks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.txt")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.Add("a\nb"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff([]string{`a\nb`}, got); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestWriter_AbortKeepsPreviousFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.txt")
	if err := os.WriteFile(path, []byte("old\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.Add("new"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	w.Abort(errors.New("run failed"))

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff([]string{"old"}, got); diff != "" {
		t.Errorf("aborted log replaced the file (-want +got):\n%s", diff)
	}
	if err := w.Add("late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Add after Abort = %v; want ErrClosed", err)
	}
	if err := w.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("Close after Abort = %v; want ErrClosed", err)
	}
}

func TestWriter_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "keys.txt")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w.Add("k") //nolint:errcheck // the failure surfaces on Close
	if err := w.Close(); err == nil {
		t.Error("Close should fail when the directory does not exist")
	}
}

func TestWriter_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.zst")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				if err := w.Add(fmt.Sprintf("g%d:%d", g, i)); err != nil {
					t.Errorf("Add: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 800 {
		t.Errorf("read %d keys; want 800", len(got))
	}
}

func TestCreate_EmptyPath(t *testing.T) {
	if _, err := Create(""); err == nil {
		t.Error("Create(\"\") should fail")
	}
}
