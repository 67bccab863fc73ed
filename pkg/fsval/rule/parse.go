package rule

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jamesainslie/fsval/pkg/fsval/constraint"
	"github.com/jamesainslie/fsval/pkg/fsval/query"
)

// ErrNoConstraints is returned for a rule that declares no constraints.
var ErrNoConstraints = errors.New("rule has no constraints")

// InvalidRuleError reports a rule that cannot be built. RuleID is empty when
// the rule declared no id.
type InvalidRuleError struct {
	RuleID string
	Err    error
}

func (e *InvalidRuleError) Error() string {
	if e.RuleID == "" {
		return fmt.Sprintf("error parsing rule: %v", e.Err)
	}
	return fmt.Sprintf("error parsing rule %q: %v", e.RuleID, e.Err)
}

func (e *InvalidRuleError) Unwrap() error {
	return e.Err
}

// Options configures rule parsing.
type Options struct {
	// DefaultQuery is used when a rule has no query or a query mapping has no
	// path.
	DefaultQuery string
}

// Option is a functional option for FromMap.
type Option func(*Options)

// WithDefaultQuery sets the pattern used for rules without a query.
func WithDefaultQuery(pattern string) Option {
	return func(o *Options) {
		if pattern != "" {
			o.DefaultQuery = pattern
		}
	}
}

// reserved keys are rule fields; every other key names a constraint.
var reserved = map[string]bool{"id": true, "description": true, "query": true}

// constraintOrder fixes the evaluation order of a rule's constraints, since
// decoded mappings carry no key order.
var constraintOrder = map[string]int{
	constraint.NameCountMin: 0,
	constraint.NameCountMax: 1,
	constraint.NameRegex:    2,
	constraint.NameEval:     3,
}

// FromMap builds a rule from its manifest mapping.
func FromMap(m map[string]any, opts ...Option) (*Rule, error) {
	o := Options{DefaultQuery: query.DefaultPattern}
	for _, opt := range opts {
		opt(&o)
	}

	var id, description string
	if raw, ok := m["id"]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, &InvalidRuleError{Err: fmt.Errorf("id must be a string, not %T", raw)}
		}
		id = s
	}
	if raw, ok := m["description"]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, &InvalidRuleError{RuleID: id, Err: fmt.Errorf("description must be a string, not %T", raw)}
		}
		description = s
	}

	q, err := query.Parse(m["query"], o.DefaultQuery)
	if err != nil {
		return nil, &InvalidRuleError{RuleID: id, Err: fmt.Errorf("error parsing query: %w", err)}
	}

	names := make([]string, 0, len(m))
	for k := range m {
		if !reserved[k] {
			names = append(names, k)
		}
	}
	if len(names) == 0 {
		return nil, &InvalidRuleError{RuleID: id, Err: ErrNoConstraints}
	}
	sort.Slice(names, func(i, j int) bool {
		oi, iKnown := constraintOrder[names[i]]
		oj, jKnown := constraintOrder[names[j]]
		if iKnown != jKnown {
			return iKnown
		}
		if oi != oj {
			return oi < oj
		}
		return names[i] < names[j]
	})

	cs := make([]constraint.Constraint, 0, len(names))
	for _, name := range names {
		c, err := constraint.New(name, m[name])
		if err != nil {
			return nil, &InvalidRuleError{RuleID: id, Err: err}
		}
		cs = append(cs, c)
	}

	return New(id, description, q, cs...), nil
}
