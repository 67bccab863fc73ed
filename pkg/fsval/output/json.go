package output

import (
	"bytes"
	"encoding/json"

	"github.com/jamesainslie/fsval/pkg/fsval/registry"
	"github.com/jamesainslie/fsval/pkg/fsval/snapshot"
)

// snapshotOutput is the document form of a snapshot, shared by the JSON and
// YAML formatters.
type snapshotOutput struct {
	Root      string            `json:"root" yaml:"root"`
	Entries   snapshot.Snapshot `json:"entries" yaml:"entries"`
	Count     int               `json:"count" yaml:"count"`
	TotalSize int64             `json:"total_size" yaml:"total_size"`
}

// manifestsOutput is the document form of a manifest listing.
type manifestsOutput struct {
	Manifests []registry.Info `json:"manifests" yaml:"manifests"`
}

// document returns the value the structured formatters encode.
func document(r *Result) (any, error) {
	switch r.Kind {
	case KindReport:
		if r.Report == nil {
			return nil, ErrUnsupportedKind
		}
		return r.Report, nil
	case KindSnapshot:
		entries := r.Snapshot
		if entries == nil {
			entries = snapshot.Snapshot{}
		}
		return snapshotOutput{
			Root:      r.Root,
			Entries:   entries,
			Count:     len(entries),
			TotalSize: entries.TotalSize(),
		}, nil
	case KindManifests:
		infos := r.Manifests
		if infos == nil {
			infos = []registry.Info{}
		}
		return manifestsOutput{Manifests: infos}, nil
	default:
		return nil, ErrUnsupportedKind
	}
}

// JSONFormatter formats output as a single indented JSON document.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Result) error {
	doc, err := document(r)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

// Ensure JSONFormatter implements Formatter.
var _ Formatter = (*JSONFormatter)(nil)

// JSONLFormatter writes one compact JSON object per line: failures for a
// report, entries for a snapshot and infos for a manifest listing. It suits
// streaming tools like jq.
type JSONLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONLFormatter) Format(w *bytes.Buffer, r *Result) error {
	var items []any
	switch r.Kind {
	case KindReport:
		if r.Report == nil {
			return ErrUnsupportedKind
		}
		for _, failure := range r.Report.Failures {
			items = append(items, failure)
		}
	case KindSnapshot:
		for _, e := range r.Snapshot {
			items = append(items, e)
		}
	case KindManifests:
		for _, info := range r.Manifests {
			items = append(items, info)
		}
	default:
		return ErrUnsupportedKind
	}

	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("jsonl", func() Formatter {
		return &JSONLFormatter{}
	})
}

// Ensure JSONLFormatter implements Formatter.
var _ Formatter = (*JSONLFormatter)(nil)
