package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jamesainslie/fsval/pkg/fsval/snapshot"
)

// InvalidQueryError reports a declarative query that cannot be built.
type InvalidQueryError struct {
	Query any
	Err   error
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query %v: %v", e.Query, e.Err)
}

func (e *InvalidQueryError) Unwrap() error {
	return e.Err
}

// ErrEmptyQuery is returned for an empty query mapping.
var ErrEmptyQuery = errors.New("query mapping is empty")

// FromMap builds a Composite from {path: <pattern>, type: file|directory}.
// A missing path uses defaultPattern; a missing type selects every kind.
func FromMap(m map[string]any, defaultPattern string) (*Composite, error) {
	if len(m) == 0 {
		return nil, &InvalidQueryError{Query: m, Err: ErrEmptyQuery}
	}

	var unknown []string
	for k := range m {
		if k != "path" && k != "type" {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &InvalidQueryError{
			Query: m,
			Err:   fmt.Errorf("unknown keys: %s", strings.Join(unknown, ", ")),
		}
	}

	pattern := defaultPattern
	if raw, ok := m["path"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, &InvalidQueryError{Query: m, Err: fmt.Errorf("path must be a string, not %T", raw)}
		}
		pattern = s
	}

	glob, err := NewGlob(pattern)
	if err != nil {
		return nil, &InvalidQueryError{Query: m, Err: err}
	}

	var kind snapshot.Kind
	if raw, ok := m["type"]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, &InvalidQueryError{Query: m, Err: fmt.Errorf("type must be a string, not %T", raw)}
		}
		kind, err = snapshot.ParseKind(s)
		if err != nil {
			return nil, &InvalidQueryError{Query: m, Err: err}
		}
	}

	return &Composite{Parts: []Query{glob, Type{Kind: kind}}}, nil
}

// Parse builds a query from a manifest value: a pattern string, a mapping
// for FromMap, or nil for defaultPattern.
func Parse(raw any, defaultPattern string) (Query, error) {
	switch v := raw.(type) {
	case nil:
		return globQuery(defaultPattern)
	case string:
		return globQuery(v)
	case map[string]any:
		c, err := FromMap(v, defaultPattern)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, &InvalidQueryError{
			Query: raw,
			Err:   fmt.Errorf("query must be a string or a mapping, not %T", raw),
		}
	}
}

func globQuery(pattern string) (Query, error) {
	g, err := NewGlob(pattern)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Raw returns the manifest form of q, the inverse of Parse: a pattern string
// for a Glob and a {path, type} mapping for composites and kind filters.
func Raw(q Query) any {
	if g, ok := q.(*Glob); ok {
		return g.Pattern()
	}
	m := make(map[string]any)
	mergeRaw(m, q)
	return m
}

func mergeRaw(m map[string]any, q Query) {
	switch v := q.(type) {
	case *Glob:
		m["path"] = v.Pattern()
	case Type:
		if v.Kind != "" {
			m["type"] = string(v.Kind)
		}
	case *Composite:
		for _, part := range v.Parts {
			mergeRaw(m, part)
		}
	}
}
