// Package query selects subsets of a snapshot by path pattern and entry kind.
//
// All queries preserve snapshot order: the output of Filter is always a
// subsequence of its input.
package query

import (
	"fmt"
	"strings"

	"github.com/jamesainslie/fsval/pkg/fsval/pathquery"
	"github.com/jamesainslie/fsval/pkg/fsval/snapshot"
)

// DefaultPattern selects every entry.
const DefaultPattern = "**"

// Query filters a snapshot.
type Query interface {
	// Filter returns the selected entries in their original order.
	Filter(snap snapshot.Snapshot) snapshot.Snapshot

	// Key is a canonical text form. Equal queries have equal keys.
	Key() string
}

// Glob selects entries whose path matches a pattern.
type Glob struct {
	pattern *pathquery.Pattern
}

// NewGlob compiles pattern into a Glob query.
func NewGlob(pattern string) (*Glob, error) {
	p, err := pathquery.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &Glob{pattern: p}, nil
}

// Pattern returns the source pattern.
func (g *Glob) Pattern() string {
	return g.pattern.String()
}

// Filter implements Query.
func (g *Glob) Filter(snap snapshot.Snapshot) snapshot.Snapshot {
	return snap.Select(func(e snapshot.Entry) bool {
		return g.pattern.Match(e.Path)
	})
}

// Key implements Query.
func (g *Glob) Key() string {
	return fmt.Sprintf("glob(%q)", g.pattern.String())
}

// Type selects entries of one kind. The zero value selects everything.
type Type struct {
	Kind snapshot.Kind
}

// Filter implements Query.
func (t Type) Filter(snap snapshot.Snapshot) snapshot.Snapshot {
	if t.Kind == "" {
		return snap.Select(func(snapshot.Entry) bool { return true })
	}
	return snap.Select(func(e snapshot.Entry) bool {
		return e.Kind == t.Kind
	})
}

// Key implements Query.
func (t Type) Key() string {
	return fmt.Sprintf("type(%q)", string(t.Kind))
}

// Composite narrows a snapshot through each part in turn.
type Composite struct {
	Parts []Query
}

// Filter implements Query.
func (c *Composite) Filter(snap snapshot.Snapshot) snapshot.Snapshot {
	out := snap.Select(func(snapshot.Entry) bool { return true })
	for _, part := range c.Parts {
		out = part.Filter(out)
	}
	return out
}

// Key implements Query.
func (c *Composite) Key() string {
	keys := make([]string, len(c.Parts))
	for i, part := range c.Parts {
		keys[i] = part.Key()
	}
	return "and(" + strings.Join(keys, ",") + ")"
}

// Configured reports whether the composite has any parts.
func (c *Composite) Configured() bool {
	return len(c.Parts) > 0
}

// And combines two queries into a Composite.
func And(a, b Query) *Composite {
	return &Composite{Parts: []Query{a, b}}
}

// Equal reports whether two queries select by the same criteria.
func Equal(a, b Query) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Key() == b.Key()
}

var (
	_ Query = (*Glob)(nil)
	_ Query = Type{}
	_ Query = (*Composite)(nil)
)
