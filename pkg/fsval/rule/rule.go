// Package rule couples a query with the constraints checked against the
// entries it selects.
package rule

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/jamesainslie/fsval/pkg/fsval/constraint"
	"github.com/jamesainslie/fsval/pkg/fsval/query"
	"github.com/jamesainslie/fsval/pkg/fsval/snapshot"
)

// IDLength is the number of hex digits in a generated id.
const IDLength = 7

// Rule is a query plus the constraints its selection must satisfy.
type Rule struct {
	ID          string
	Description string
	Query       query.Query
	Constraints []constraint.Constraint
}

// New builds a rule. An empty id is replaced by GenerateID.
func New(id, description string, q query.Query, cs ...constraint.Constraint) *Rule {
	if q == nil {
		q, _ = query.NewGlob(query.DefaultPattern)
	}
	if id == "" {
		id = GenerateID(q, cs)
	}
	return &Rule{ID: id, Description: description, Query: q, Constraints: cs}
}

// Outcome pairs a constraint with its result.
type Outcome struct {
	Constraint constraint.Constraint
	Result     constraint.Result
}

// Validate filters snap through the rule's query once and checks every
// constraint against the selection, in order. A failed constraint does not
// stop the others; an error from any constraint aborts the rule.
func (r *Rule) Validate(env constraint.Env, snap snapshot.Snapshot) ([]Outcome, error) {
	selected := r.Query.Filter(snap)

	outcomes := make([]Outcome, 0, len(r.Constraints))
	for _, c := range r.Constraints {
		res, err := c.Validate(env, selected)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		outcomes = append(outcomes, Outcome{Constraint: c, Result: res})
	}
	return outcomes, nil
}

// OK reports whether every outcome passed.
func OK(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if !o.Result.OK() {
			return false
		}
	}
	return true
}

// Equal reports whether two rules have the same id, description, query and
// constraints.
func (r *Rule) Equal(o *Rule) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.ID == o.ID &&
		r.Description == o.Description &&
		query.Equal(r.Query, o.Query) &&
		constraintsKey(r.Constraints) == constraintsKey(o.Constraints)
}

// GenerateID derives a short id from the rule content: the first IDLength
// hex digits of the SHA-1 of the canonical JSON encoding of
// [query key, [[constraint name, value], ...]].
func GenerateID(q query.Query, cs []constraint.Constraint) string {
	qk := ""
	if q != nil {
		qk = q.Key()
	}
	return Hash([]any{qk, constraintPairs(cs)})
}

// Hash returns the short content hash of v's JSON encoding.
func Hash(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Only plain strings and numbers reach here.
		data = []byte(fmt.Sprintf("%v", v))
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])[:IDLength]
}

func constraintPairs(cs []constraint.Constraint) [][]any {
	pairs := make([][]any, len(cs))
	for i, c := range cs {
		pairs[i] = []any{c.Name(), c.Value()}
	}
	return pairs
}

func constraintsKey(cs []constraint.Constraint) string {
	data, _ := json.Marshal(constraintPairs(cs))
	return string(data)
}
