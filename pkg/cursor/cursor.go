// Package cursor converts SCAN cursors into monotonic progress values.
//
// Redis-protocol stores walk their hash table in reverse-binary bucket order,
// so the raw cursor jumps around. Reversing the low Width(max) bits of the
// cursor yields a value that grows steadily over a full pass.
//
// See https://engineering.q42.nl/redis-scan-cursor/ for the background.
package cursor

import "math/bits"

// Width returns the number of bits needed to represent maxCursor.
// Zero is rendered as a single "0" bit, so Width(0) is 1.
func Width(maxCursor uint64) int {
	if maxCursor == 0 {
		return 1
	}
	return bits.Len64(maxCursor)
}

// Reverse reverses the low width bits of v. Bits above width are discarded.
func Reverse(v uint64, width int) uint64 {
	if width <= 0 {
		return 0
	}
	if width >= 64 {
		return bits.Reverse64(v)
	}
	return bits.Reverse64(v) >> (64 - width)
}

// Progress converts cursor into a progress value given the largest cursor
// observed so far. A cursor wider than maxCursor is rendered at its own width.
func Progress(cursor, maxCursor uint64) uint64 {
	w := Width(maxCursor)
	if cw := Width(cursor); cw > w {
		w = cw
	}
	return Reverse(cursor, w)
}

// KeyspaceSize returns 2^(Width(maxCursor)+1), an upper bound on the number
// of buckets implied by maxCursor. It saturates at the largest uint64.
func KeyspaceSize(maxCursor uint64) uint64 {
	w := Width(maxCursor) + 1
	if w >= 64 {
		return ^uint64(0)
	}
	return 1 << w
}
