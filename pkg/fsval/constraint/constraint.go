// Package constraint implements the pass/fail checks a rule applies to its
// selected entries.
//
// The set of constraints is closed: CountMin, CountMax, Regex and Eval. Each
// one is built from a manifest key and value through New.
package constraint

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jamesainslie/fsval/pkg/fsval/snapshot"
)

// Constraint names as they appear in manifests.
const (
	NameCountMin = "count_min"
	NameCountMax = "count_max"
	NameRegex    = "regex"
	NameEval     = "eval"
)

// ErrUnknownConstraint is returned by New for an unregistered name.
var ErrUnknownConstraint = errors.New("unknown constraint")

// Env carries the evaluation settings a constraint may depend on.
type Env struct {
	// AllowEval enables the eval constraint.
	AllowEval bool

	// Predicates resolves eval predicate names. Nil uses Builtins().
	Predicates *PredicateRegistry
}

// Context records what a result was computed from.
type Context struct {
	Snapshot   snapshot.Snapshot
	Constraint Constraint
}

// Result is the outcome of one constraint.
type Result struct {
	Status bool

	// Message is nil on success. It is a string or, for Regex, a map from
	// path to diagnostic.
	Message any

	Context Context
}

// OK reports whether the constraint passed.
func (r Result) OK() bool {
	return r.Status
}

// Constraint is a single pass/fail check over a snapshot.
type Constraint interface {
	// Name is the manifest key, unless overridden with a label.
	Name() string

	// Value is the configured manifest value.
	Value() any

	// Validate checks snap. A failed check is a Result with Status false;
	// errors are reserved for checks that could not run at all.
	Validate(env Env, snap snapshot.Snapshot) (Result, error)

	sealed()
}

func labelOr(label, name string) string {
	if label != "" {
		return label
	}
	return name
}

// CountMin requires at least N entries.
type CountMin struct {
	N     int
	Label string
}

func (c CountMin) Name() string { return labelOr(c.Label, NameCountMin) }
func (c CountMin) Value() any   { return c.N }
func (CountMin) sealed()        {}

// Validate implements Constraint.
func (c CountMin) Validate(_ Env, snap snapshot.Snapshot) (Result, error) {
	res := Result{Status: len(snap) >= c.N, Context: Context{Snapshot: snap, Constraint: c}}
	if !res.Status {
		res.Message = fmt.Sprintf("Expected at least %d entries, found %d", c.N, len(snap))
	}
	return res, nil
}

// CountMax allows at most N entries.
type CountMax struct {
	N     int
	Label string
}

func (c CountMax) Name() string { return labelOr(c.Label, NameCountMax) }
func (c CountMax) Value() any   { return c.N }
func (CountMax) sealed()        {}

// Validate implements Constraint.
func (c CountMax) Validate(_ Env, snap snapshot.Snapshot) (Result, error) {
	res := Result{Status: len(snap) <= c.N, Context: Context{Snapshot: snap, Constraint: c}}
	if !res.Status {
		res.Message = fmt.Sprintf("Expected at most %d entries, found %d", c.N, len(snap))
	}
	return res, nil
}

// Regex requires every entry path to match Pattern in full.
type Regex struct {
	Pattern string
	Label   string

	re *regexp.Regexp
}

// NewRegex compiles pattern, anchored to the whole path.
func NewRegex(pattern string) (*Regex, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("compiling regex %q: %w", pattern, err)
	}
	return &Regex{Pattern: pattern, re: re}, nil
}

func (r *Regex) Name() string { return labelOr(r.Label, NameRegex) }
func (r *Regex) Value() any   { return r.Pattern }
func (*Regex) sealed()        {}

// Validate implements Constraint.
func (r *Regex) Validate(_ Env, snap snapshot.Snapshot) (Result, error) {
	failed := make(map[string]string)
	for _, e := range snap {
		if !r.re.MatchString(e.Path) {
			failed[e.Path] = fmt.Sprintf("does not match regex %q", r.Pattern)
		}
	}

	res := Result{Status: len(failed) == 0, Context: Context{Snapshot: snap, Constraint: r}}
	if !res.Status {
		res.Message = failed
	}
	return res, nil
}

// Factory builds a constraint from its manifest value.
type Factory func(value any) (Constraint, error)

var factories = map[string]Factory{
	NameCountMin: func(v any) (Constraint, error) {
		n, err := toCount(v)
		if err != nil {
			return nil, err
		}
		return CountMin{N: n}, nil
	},
	NameCountMax: func(v any) (Constraint, error) {
		n, err := toCount(v)
		if err != nil {
			return nil, err
		}
		return CountMax{N: n}, nil
	},
	NameRegex: func(v any) (Constraint, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("regex must be a string, not %T", v)
		}
		return NewRegex(s)
	},
	NameEval: func(v any) (Constraint, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("eval must be a string, not %T", v)
		}
		return &Eval{Source: s}, nil
	},
}

// New builds the constraint registered under name.
func New(name string, value any) (Constraint, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConstraint, name)
	}
	c, err := f(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return c, nil
}

// Names returns the registered constraint names, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// toCount coerces a decoded manifest value to a non-negative count.
func toCount(v any) (int, error) {
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case uint64:
		if x > math.MaxInt32 {
			return 0, fmt.Errorf("count %d out of range", x)
		}
		n = int(x)
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("count must be an integer, got %v", x)
		}
		n = int(x)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("count must be an integer, got %q", x)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("count must be an integer, not %T", v)
	}
	if n < 0 {
		return 0, fmt.Errorf("count must not be negative, got %d", n)
	}
	return n, nil
}

var (
	_ Constraint = CountMin{}
	_ Constraint = CountMax{}
	_ Constraint = (*Regex)(nil)
	_ Constraint = (*Eval)(nil)
)
