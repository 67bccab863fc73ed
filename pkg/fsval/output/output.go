// Package output renders validation reports, snapshots and manifest
// listings in the formats offered by the CLI (table, plain, json, yaml and
// others).
//
// The package uses a registry pattern so formatters can be selected by name
// at runtime.
//
// Basic usage:
//
//	formatter, err := output.Get("table")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, output.ForReport(report)); err != nil {
//	    return err
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jamesainslie/fsval/pkg/fsval/logging"
	"github.com/jamesainslie/fsval/pkg/fsval/registry"
	"github.com/jamesainslie/fsval/pkg/fsval/snapshot"
	"github.com/jamesainslie/fsval/pkg/fsval/validate"
)

var logger = logging.Get("output")

// Kind identifies what a Result carries.
type Kind int

// Result kinds.
const (
	KindReport Kind = iota
	KindSnapshot
	KindManifests
)

// ErrUnsupportedKind is returned by formatters that cannot render a kind of
// result.
var ErrUnsupportedKind = errors.New("result kind not supported by formatter")

// Result is the data handed to a formatter. Exactly one payload is set,
// according to Kind.
type Result struct {
	Kind Kind

	// Report is set for KindReport.
	Report *validate.Report

	// Root and Snapshot are set for KindSnapshot.
	Root     string
	Snapshot snapshot.Snapshot

	// Manifests is set for KindManifests.
	Manifests []registry.Info
}

// ForReport wraps a validation report.
func ForReport(r validate.Report) *Result {
	return &Result{Kind: KindReport, Report: &r}
}

// ForSnapshot wraps a snapshot of root.
func ForSnapshot(root string, snap snapshot.Snapshot) *Result {
	return &Result{Kind: KindSnapshot, Root: root, Snapshot: snap}
}

// ForManifests wraps a manifest listing.
func ForManifests(infos []registry.Info) *Result {
	return &Result{Kind: KindManifests, Manifests: infos}
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory, replacing any with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown format: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

// Render formats r with the named formatter from the default registry.
func Render(name string, r *Result) ([]byte, error) {
	f, err := Get(name)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := f.Format(&buf, r); err != nil {
		logger.Debug("format failed", "format", name, "error", err)
		return nil, err
	}
	return buf.Bytes(), nil
}
