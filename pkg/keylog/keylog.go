// Package keylog writes matched key names to a file, one per line.
//
// The file is compressed according to its extension (see compress.ForPath)
// and published atomically on Close: readers see either the previous file
// or the complete new one, never a partial log.
package keylog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/codeGROOVE-dev/bulkclean/pkg/store/compress"
	"github.com/natefinch/atomic"
)

const filePerms = 0o644

// ErrClosed is returned by Add after Close or Abort.
var ErrClosed = errors.New("key log closed")

// Writer streams keys into a pending file.
// It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	path   string
	pw     *io.PipeWriter
	enc    io.WriteCloser
	buf    *bufio.Writer
	done   chan error
	count  int64
	closed bool
}

// Create starts a key log at path. Nothing is visible at path until Close.
func Create(path string) (*Writer, error) {
	if path == "" {
		return nil, errors.New("key log: empty path")
	}
	pr, pw := io.Pipe()
	enc, err := compress.ForPath(path).NewWriter(pw)
	if err != nil {
		pw.Close() //nolint:errcheck // pipe close never fails
		return nil, fmt.Errorf("key log %s: %w", path, err)
	}

	w := &Writer{
		path: path,
		pw:   pw,
		enc:  enc,
		buf:  bufio.NewWriter(enc),
		done: make(chan error, 1),
	}
	go func() {
		err := atomic.WriteFile(path, pr)
		pr.CloseWithError(err) //nolint:errcheck // unblocks a writer stuck on a failed publish
		w.done <- err
	}()
	return w, nil
}

// Add appends key. Keys containing line breaks are written with the break
// escaped so the log stays one key per line.
func (w *Writer) Add(key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if strings.ContainsAny(key, "\r\n") {
		key = strings.NewReplacer("\r", `\r`, "\n", `\n`).Replace(key)
	}
	if _, err := w.buf.WriteString(key); err != nil {
		return fmt.Errorf("key log %s: %w", w.path, err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("key log %s: %w", w.path, err)
	}
	w.count++
	return nil
}

// Count returns the number of keys added.
func (w *Writer) Count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Path returns the destination path.
func (w *Writer) Path() string {
	return w.path
}

// Close flushes the log and publishes it at its path.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.closed = true

	err := w.buf.Flush()
	if cerr := w.enc.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		w.pw.CloseWithError(err) //nolint:errcheck // pipe close never fails
		<-w.done
		return fmt.Errorf("key log %s: %w", w.path, err)
	}
	w.pw.Close() //nolint:errcheck // pipe close never fails
	if err := <-w.done; err != nil {
		return fmt.Errorf("key log %s: %w", w.path, err)
	}
	if err := os.Chmod(w.path, filePerms); err != nil {
		return fmt.Errorf("key log %s: set permissions: %w", w.path, err)
	}
	return nil
}

// Abort discards the pending log. An existing file at path is left alone.
func (w *Writer) Abort(cause error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	if cause == nil {
		cause = errors.New("aborted")
	}
	w.pw.CloseWithError(cause) //nolint:errcheck // pipe close never fails
	w.enc.Close()              //nolint:errcheck // releases encoder goroutines; the pipe is already broken
	<-w.done
}

// Read returns every key in the log at path.
func Read(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only file

	r, err := compress.ForPath(path).NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("key log %s: %w", path, err)
	}
	defer r.Close() //nolint:errcheck // decoder close has nothing to report

	var keys []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 512*1024*1024)
	for sc.Scan() {
		keys = append(keys, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("key log %s: %w", path, err)
	}
	return keys, nil
}
