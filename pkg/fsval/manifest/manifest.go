// Package manifest declares what a conforming fileset looks like: a version,
// a description and an ordered list of rules.
package manifest

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/jamesainslie/fsval/pkg/fsval/query"
	"github.com/jamesainslie/fsval/pkg/fsval/rule"
)

// Manifest is an ordered set of rules a fileset must satisfy.
type Manifest struct {
	ID          string
	Version     string
	Description string
	URI         string
	Rules       []*rule.Rule

	// Meta records where the manifest was loaded from. It is not part of
	// the manifest's identity.
	Meta Meta
}

// Meta is registry bookkeeping for a loaded manifest.
type Meta struct {
	// Path is the file the manifest was read from.
	Path string

	// Name is the registry reference that resolved to Path.
	Name string
}

// Options configures manifest construction.
type Options struct {
	// Check runs the structural check before construction.
	Check bool

	// DefaultQuery is the pattern for rules without a query.
	DefaultQuery string
}

// Option is a functional option for FromMap and the loaders.
type Option func(*Options)

// WithCheck enables or disables the structural check.
func WithCheck(check bool) Option {
	return func(o *Options) {
		o.Check = check
	}
}

// WithDefaultQuery sets the pattern used for rules without a query.
func WithDefaultQuery(pattern string) Option {
	return func(o *Options) {
		if pattern != "" {
			o.DefaultQuery = pattern
		}
	}
}

func applyOptions(o Options, opts []Option) Options {
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// FromMap builds a manifest from its decoded document. Construction fails
// fast: no partial manifest is returned.
func FromMap(m map[string]any, opts ...Option) (*Manifest, error) {
	o := applyOptions(Options{DefaultQuery: query.DefaultPattern}, opts)

	if o.Check {
		if err := Check(m); err != nil {
			return nil, err
		}
	}

	id, err := optionalString(m, "id")
	if err != nil {
		return nil, &InvalidManifestError{Err: err}
	}
	uri, err := optionalString(m, "uri")
	if err != nil {
		return nil, &InvalidManifestError{Err: err}
	}
	description, err := optionalString(m, "description")
	if err != nil {
		return nil, &InvalidManifestError{Err: err}
	}
	version, err := versionString(m["version"])
	if err != nil {
		return nil, &InvalidManifestError{Err: err}
	}

	rawRules, err := ruleMaps(m["rules"])
	if err != nil {
		return nil, &InvalidManifestError{Err: err}
	}

	rules := make([]*rule.Rule, 0, len(rawRules))
	for i, rm := range rawRules {
		r, err := rule.FromMap(rm, rule.WithDefaultQuery(o.DefaultQuery))
		if err != nil {
			var re *rule.InvalidRuleError
			if errors.As(err, &re) && re.RuleID == "" {
				re.RuleID = fmt.Sprintf("rules[%d]", i)
				return nil, &InvalidManifestError{Err: re}
			}
			return nil, &InvalidManifestError{Err: fmt.Errorf("rules[%d]: %w", i, err)}
		}
		rules = append(rules, r)
	}

	return New(id, version, description, uri, rules...), nil
}

// New builds a manifest. An empty id is replaced by GenerateID.
func New(id, version, description, uri string, rules ...*rule.Rule) *Manifest {
	if id == "" {
		id = GenerateID(version, rules)
	}
	return &Manifest{
		ID:          id,
		Version:     version,
		Description: description,
		URI:         uri,
		Rules:       rules,
	}
}

// GenerateID derives an id from the version and the rule ids, hashed the
// same way as rule ids.
func GenerateID(version string, rules []*rule.Rule) string {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return rule.Hash([]any{version, ids})
}

// Equal reports whether two manifests have the same id, version and rules in
// the same order.
func (m *Manifest) Equal(o *Manifest) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.ID != o.ID || m.Version != o.Version || len(m.Rules) != len(o.Rules) {
		return false
	}
	for i := range m.Rules {
		if !m.Rules[i].Equal(o.Rules[i]) {
			return false
		}
	}
	return true
}

// Rule returns the rule with the given id.
func (m *Manifest) Rule(id string) (*rule.Rule, bool) {
	for _, r := range m.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

func optionalString(m map[string]any, key string) (string, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, not %T", key, raw)
	}
	return s, nil
}

// versionString accepts the YAML scalars a version is commonly written as;
// `version: 0.1` decodes to a float.
func versionString(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("version must be a string or number, not %T", raw)
	}
}

func ruleMaps(raw any) ([]map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, len(v))
		for i, item := range v {
			rm, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("rules[%d] must be a mapping, not %T", i, item)
			}
			out[i] = rm
		}
		return out, nil
	default:
		return nil, fmt.Errorf("rules must be a list, not %T", raw)
	}
}
