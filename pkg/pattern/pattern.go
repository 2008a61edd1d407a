// Package pattern compiles key patterns into a single anchored matcher.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ErrInvalid is returned when a pattern set cannot be compiled.
var ErrInvalid = errors.New("invalid pattern")

// Kind distinguishes how a pattern's source is interpreted.
type Kind int

const (
	// KindGlob treats '*' as a wildcard and everything else literally.
	KindGlob Kind = iota
	// KindRegex treats the source as an RE2 regular expression.
	KindRegex
)

func (k Kind) String() string {
	switch k {
	case KindGlob:
		return "glob"
	case KindRegex:
		return "regex"
	default:
		return "unknown"
	}
}

// Pattern is a single user pattern tagged with its kind.
type Pattern struct {
	Source string
	Kind   Kind
}

// Glob returns a glob pattern.
func Glob(s string) Pattern { return Pattern{Source: s, Kind: KindGlob} }

// Regex returns a raw regular-expression pattern.
func Regex(s string) Pattern { return Pattern{Source: s, Kind: KindRegex} }

// Normalize trims whitespace, drops duplicates and sorts.
// Empty entries are kept as "" so Compile can reject them.
func Normalize(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		out = append(out, strings.TrimSpace(s))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Identity is the checkpoint identity of a pattern set: the normalized
// patterns joined with ';'. It does not depend on input order.
func Identity(raw []string) string {
	return strings.Join(Normalize(raw), ";")
}

// Parse tags each normalized source with the given kind.
func Parse(raw []string, regex bool) []Pattern {
	kind := KindGlob
	if regex {
		kind = KindRegex
	}
	norm := Normalize(raw)
	ps := make([]Pattern, len(norm))
	for i, s := range norm {
		ps[i] = Pattern{Source: s, Kind: kind}
	}
	return ps
}

type options struct {
	zeroWidthWildcard bool
}

// Option configures Compile.
type Option func(*options)

// WithZeroWidthWildcard makes '*' in globs match the empty string too.
// By default '*' requires at least one character, so "user:*:junk"
// does not match "user::junk".
func WithZeroWidthWildcard(enabled bool) Option {
	return func(o *options) {
		o.zeroWidthWildcard = enabled
	}
}

// Matcher is an immutable predicate over key names.
type Matcher struct {
	re       *regexp.Regexp
	patterns []Pattern
}

// Compile builds a single anchored alternation ^(?:(?:p1)|(?:p2)|...)$ from ps.
func Compile(ps []Pattern, opts ...Option) (*Matcher, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if len(ps) == 0 {
		return nil, fmt.Errorf("%w: empty pattern set", ErrInvalid)
	}

	star := ".+"
	if o.zeroWidthWildcard {
		star = ".*"
	}

	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		if p.Source == "" {
			return nil, fmt.Errorf("%w: empty pattern", ErrInvalid)
		}
		switch p.Kind {
		case KindGlob:
			parts = append(parts, "(?:"+strings.ReplaceAll(regexp.QuoteMeta(p.Source), `\*`, star)+")")
		case KindRegex:
			if _, err := regexp.Compile(p.Source); err != nil {
				return nil, fmt.Errorf("%w: %q: %w", ErrInvalid, p.Source, err)
			}
			// Each source gets its own group so inline flags like (?i) stay local.
			parts = append(parts, "(?:"+p.Source+")")
		default:
			return nil, fmt.Errorf("%w: unknown kind %d for %q", ErrInvalid, p.Kind, p.Source)
		}
	}

	re, err := regexp.Compile("^(?:" + strings.Join(parts, "|") + ")$")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return &Matcher{re: re, patterns: slices.Clone(ps)}, nil
}

// Match reports whether key fully matches any pattern. Matching is case-sensitive.
func (m *Matcher) Match(key string) bool {
	return m.re.MatchString(key)
}

// Filter returns the keys that match, preserving order.
// It allocates only when at least one key matches.
func (m *Matcher) Filter(keys []string) []string {
	var out []string
	for _, k := range keys {
		if m.re.MatchString(k) {
			out = append(out, k)
		}
	}
	return out
}

// Patterns returns a copy of the compiled patterns.
func (m *Matcher) Patterns() []Pattern {
	return slices.Clone(m.patterns)
}

// String returns the combined expression.
func (m *Matcher) String() string {
	return m.re.String()
}
