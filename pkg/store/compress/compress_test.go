package compress

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestCodecs(t *testing.T) {
	input := strings.Repeat("user:1234:junk\n", 2000)
	for _, c := range []Codec{None(), S2(), Zstd(1), Zstd(2), Zstd(4)} {
		t.Run(c.Extension(), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := c.NewWriter(&buf)
			if err != nil {
				t.Fatalf("NewWriter: %v", err)
			}
			if _, err := io.WriteString(w, input); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if c.Extension() != "" && buf.Len() >= len(input) {
				t.Errorf("compressed size %d not smaller than input %d", buf.Len(), len(input))
			}

			r, err := c.NewReader(&buf)
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}
			defer r.Close()
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if string(got) != input {
				t.Errorf("round trip lost data: got %d bytes, want %d", len(got), len(input))
			}
		})
	}
}

func TestForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"keys.txt", ""},
		{"keys", ""},
		{"/tmp/keys.zst", ".zst"},
		{"keys.ZST", ".zst"},
		{"keys.s2", ".s2"},
	}
	for _, tt := range tests {
		if got := ForPath(tt.path).Extension(); got != tt.want {
			t.Errorf("ForPath(%q).Extension() = %q; want %q", tt.path, got, tt.want)
		}
	}
}
