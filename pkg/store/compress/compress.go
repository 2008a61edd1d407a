// Package compress provides streaming codecs for key logs written by dry runs.
package compress

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Codec wraps a stream with compression.
type Codec interface {
	NewWriter(w io.Writer) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
	Extension() string
}

type none struct{}

// None returns a pass-through codec (no compression).
func None() Codec { return none{} }

func (none) NewWriter(w io.Writer) (io.WriteCloser, error) { return nopWriteCloser{w}, nil }
func (none) NewReader(r io.Reader) (io.ReadCloser, error)  { return io.NopCloser(r), nil }
func (none) Extension() string                             { return "" }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type s2c struct{}

// S2 returns a fast codec using S2 (improved Snappy) framing.
func S2() Codec { return s2c{} }

func (s2c) NewWriter(w io.Writer) (io.WriteCloser, error) { return s2.NewWriter(w), nil }
func (s2c) NewReader(r io.Reader) (io.ReadCloser, error)  { return io.NopCloser(s2.NewReader(r)), nil }
func (s2c) Extension() string                             { return ".s2" }

type zstdc struct {
	level zstd.EncoderLevel
}

// Zstd returns a codec using Zstandard.
// Level: 1 (fastest) to 4 (best compression).
func Zstd(level int) Codec {
	lvl := zstd.SpeedDefault
	if level <= 1 {
		lvl = zstd.SpeedFastest
	} else if level >= 4 {
		lvl = zstd.SpeedBestCompression
	}
	return zstdc{level: lvl}
}

func (z zstdc) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w, zstd.WithEncoderLevel(z.level))
}

func (zstdc) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

func (zstdc) Extension() string { return ".zst" }

// ForPath picks a codec from the file extension: ".zst" for Zstandard,
// ".s2" for S2 and no compression otherwise.
func ForPath(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst":
		return Zstd(2)
	case ".s2":
		return S2()
	default:
		return None()
	}
}
