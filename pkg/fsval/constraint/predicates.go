package constraint

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jamesainslie/fsval/pkg/fsval/snapshot"
)

// Predicate is a named check an eval constraint can run.
type Predicate func(snap snapshot.Snapshot) (bool, error)

// PredicateRegistry maps predicate names to implementations.
// It is safe for concurrent use.
type PredicateRegistry struct {
	mu    sync.RWMutex
	preds map[string]Predicate
}

// NewPredicateRegistry returns an empty registry.
func NewPredicateRegistry() *PredicateRegistry {
	return &PredicateRegistry{preds: make(map[string]Predicate)}
}

// Register adds or replaces a predicate.
func (r *PredicateRegistry) Register(name string, p Predicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preds[name] = p
}

// Lookup returns the predicate registered under name.
func (r *PredicateRegistry) Lookup(name string) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.preds[name]
	return p, ok
}

// Names returns the registered names, sorted.
func (r *PredicateRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.preds))
	for name := range r.preds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy of the registry.
func (r *PredicateRegistry) Clone() *PredicateRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := NewPredicateRegistry()
	for name, p := range r.preds {
		c.preds[name] = p
	}
	return c
}

var (
	builtinsOnce sync.Once
	builtins     *PredicateRegistry
)

// Builtins returns the shared registry of built-in predicates. Callers that
// need extra predicates should Clone it first.
func Builtins() *PredicateRegistry {
	builtinsOnce.Do(func() {
		builtins = NewPredicateRegistry()
		builtins.Register("nonempty", nonEmpty)
		builtins.Register("unique_names", uniqueNames)
		builtins.Register("files_only", filesOnly)
		builtins.Register("no_hidden", noHidden)
	})
	return builtins
}

func nonEmpty(snap snapshot.Snapshot) (bool, error) {
	return len(snap) > 0, nil
}

// uniqueNames fails when two files share a base name anywhere in the tree.
func uniqueNames(snap snapshot.Snapshot) (bool, error) {
	seen := make(map[string]struct{}, len(snap))
	for _, e := range snap {
		if e.IsDir() {
			continue
		}
		if _, dup := seen[e.Name]; dup {
			return false, nil
		}
		seen[e.Name] = struct{}{}
	}
	return true, nil
}

func filesOnly(snap snapshot.Snapshot) (bool, error) {
	for _, e := range snap {
		if e.Kind == "" {
			return false, fmt.Errorf("entry %q has no type", e.Path)
		}
		if e.IsDir() {
			return false, nil
		}
	}
	return true, nil
}

func noHidden(snap snapshot.Snapshot) (bool, error) {
	for _, e := range snap {
		for _, seg := range strings.Split(strings.TrimSuffix(e.Path, "/"), "/") {
			if strings.HasPrefix(seg, ".") {
				return false, nil
			}
		}
	}
	return true, nil
}
