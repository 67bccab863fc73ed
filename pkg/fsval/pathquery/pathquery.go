// Package pathquery matches slash-separated paths against glob patterns.
//
// Pattern syntax:
//
//	*       any run of characters inside one segment
//	?       one character other than "/"
//	**      as a whole segment, zero or more segments
//	[abc]   one character from the set; [a-z] a range; [!a] or [^a] negates
//	{a,b}   either alternative; braces without a comma are literal
//
// Patterns are anchored to the whole path. A trailing "/" selects directories
// only. Directory paths (which end in "/") match a pattern without the
// trailing "/" unless its last segment is a plain literal, so "a" never
// matches "a/". A trailing "**" after another segment needs at least one
// more segment: "a/**" matches what is under a, not a itself.
//
// Wildcards skip names starting with "." unless the pattern segment itself
// starts with a literal ".".
package pathquery

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// ErrEmptyPattern is returned for an empty pattern or an empty segment.
var ErrEmptyPattern = errors.New("empty pattern")

// QueryError reports an invalid pattern.
type QueryError struct {
	Pattern string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid path query %q: %v", e.Pattern, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

const globstar = "**"

// segment is one "/"-delimited piece of a compiled pattern.
type segment struct {
	any     bool // "**"
	literal string
	g       glob.Glob
}

func (s segment) match(part string) bool {
	if s.g == nil {
		return s.literal == part
	}
	if hidden(part) && !strings.HasPrefix(s.literal, ".") {
		return false
	}
	return s.g.Match(part)
}

// exact reports whether the segment is a plain literal.
func (s segment) exact() bool {
	return !s.any && s.g == nil
}

func hidden(part string) bool {
	return strings.HasPrefix(part, ".")
}

// Pattern is a compiled path query. It is safe for concurrent use.
type Pattern struct {
	raw      string
	segments []segment
	dirOnly  bool
}

// Compile parses pattern.
func Compile(pattern string) (*Pattern, error) {
	p := &Pattern{raw: pattern}

	body := strings.TrimLeft(pattern, "/")
	if strings.HasSuffix(body, "/") {
		p.dirOnly = true
		body = strings.TrimSuffix(body, "/")
	}
	if body == "" {
		return nil, &QueryError{Pattern: pattern, Err: ErrEmptyPattern}
	}

	for _, part := range strings.Split(body, "/") {
		switch {
		case part == "":
			return nil, &QueryError{Pattern: pattern, Err: fmt.Errorf("%w segment", ErrEmptyPattern)}
		case part == globstar:
			// "**/**" is the same as "**".
			if n := len(p.segments); n > 0 && p.segments[n-1].any {
				continue
			}
			p.segments = append(p.segments, segment{any: true})
		case !hasMeta(part):
			p.segments = append(p.segments, segment{literal: part})
		default:
			g, err := glob.Compile(escapeBraces(normalizeClasses(part)), '/')
			if err != nil {
				return nil, &QueryError{Pattern: pattern, Err: err}
			}
			p.segments = append(p.segments, segment{literal: part, g: g})
		}
	}

	return p, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the pattern as given to Compile.
func (p *Pattern) String() string {
	return p.raw
}

// Match reports whether path matches the pattern.
func (p *Pattern) Match(path string) bool {
	path = strings.TrimLeft(path, "/")
	isDir := strings.HasSuffix(path, "/")
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return false
	}

	if p.dirOnly && !isDir {
		return false
	}
	if isDir && !p.dirOnly && p.segments[len(p.segments)-1].exact() {
		return false
	}

	return matchSegments(p.segments, strings.Split(path, "/"))
}

// matchSegments matches pattern segments against path parts. "**" consumes
// zero or more visible parts, or at least one when it ends the pattern.
func matchSegments(segs []segment, parts []string) bool {
	for len(segs) > 0 {
		if segs[0].any {
			rest := segs[1:]
			if len(rest) == 0 {
				if len(parts) == 0 {
					return false
				}
				for _, part := range parts {
					if hidden(part) {
						return false
					}
				}
				return true
			}
			for i := 0; i <= len(parts); i++ {
				if matchSegments(rest, parts[i:]) {
					return true
				}
				if i < len(parts) && hidden(parts[i]) {
					return false
				}
			}
			return false
		}
		if len(parts) == 0 || !segs[0].match(parts[0]) {
			return false
		}
		segs, parts = segs[1:], parts[1:]
	}
	return len(parts) == 0
}

// Match returns the paths matching pattern, in input order.
func Match(paths []string, pattern string) ([]string, error) {
	p, err := Compile(pattern)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		if p.Match(path) {
			out = append(out, path)
		}
	}
	return out, nil
}

// hasMeta reports whether s contains glob syntax.
func hasMeta(s string) bool {
	if strings.ContainsAny(s, `*?[]\`) {
		return true
	}
	return strings.Contains(strings.ReplaceAll(escapeBraces(s), `\{`, ""), "{")
}

// escapeBraces escapes brace groups that hold no comma, so "{x}" matches
// itself. Groups with a comma stay alternations.
func escapeBraces(s string) string {
	var (
		b    strings.Builder
		open int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			b.WriteByte(c)
			b.WriteByte(s[i+1])
			i++
		case c == '{':
			end := strings.IndexByte(s[i:], '}')
			if end > 0 && strings.Contains(s[i:i+end], ",") {
				open++
				b.WriteByte(c)
				continue
			}
			b.WriteString(`\{`)
		case c == '}':
			if open > 0 {
				open--
				b.WriteByte(c)
				continue
			}
			b.WriteString(`\}`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// normalizeClasses rewrites "[^" negation to the "[!" form the glob compiler
// understands.
func normalizeClasses(s string) string {
	return strings.ReplaceAll(s, "[^", "[!")
}
