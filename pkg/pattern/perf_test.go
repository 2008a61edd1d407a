//go:build !race

package pattern

import (
	"fmt"
	"testing"
	"time"
)

func TestMatcher_FilterPerformance(t *testing.T) {
	m, err := Compile(Parse([]string{"user:*:junk", "tmp:*", "session:*:expired", "test"}, false))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	keys := make([]string, 1000)
	for i := range keys {
		keys[i] = fmt.Sprintf("user:%d:session", i)
	}

	// Warm up
	m.Filter(keys)

	const iterations = 200
	start := time.Now()
	for range iterations {
		m.Filter(keys)
	}
	nsPerKey := float64(time.Since(start).Nanoseconds()) / float64(iterations*len(keys))

	const maxNsPerKey = 5000.0
	if nsPerKey > maxNsPerKey {
		t.Errorf("filter performance: %.0f ns/key exceeds %.0f ns/key threshold", nsPerKey, maxNsPerKey)
	}
	t.Logf("filter performance: %.0f ns/key", nsPerKey)
}

func BenchmarkMatcher_Match(b *testing.B) {
	m, err := Compile(Parse([]string{"user:*:junk", "tmp:*", "test"}, false))
	if err != nil {
		b.Fatalf("Compile: %v", err)
	}
	for b.Loop() {
		m.Match("user:123456:session")
	}
}
