package output

import (
	"bytes"
	"sort"
)

// paths lists the path-like values of a result: entry paths for a snapshot,
// manifest names for a listing and the offending paths of a report.
func paths(r *Result) ([]string, error) {
	switch r.Kind {
	case KindSnapshot:
		return r.Snapshot.Paths(), nil
	case KindManifests:
		out := make([]string, len(r.Manifests))
		for i, info := range r.Manifests {
			out[i] = info.Name
		}
		return out, nil
	case KindReport:
		if r.Report == nil {
			return nil, ErrUnsupportedKind
		}
		seen := make(map[string]bool)
		var out []string
		for _, f := range r.Report.Failures {
			byPath, ok := f.Errors.(map[string]string)
			if !ok {
				continue
			}
			for p := range byPath {
				if !seen[p] {
					seen[p] = true
					out = append(out, p)
				}
			}
		}
		sort.Strings(out)
		return out, nil
	default:
		return nil, ErrUnsupportedKind
	}
}

// PathsFormatter writes one path per line, for piping to other tools.
type PathsFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PathsFormatter) Format(w *bytes.Buffer, r *Result) error {
	ps, err := paths(r)
	if err != nil {
		return err
	}
	for _, p := range ps {
		w.WriteString(p)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("paths", func() Formatter {
		return &PathsFormatter{}
	})
}

// Ensure PathsFormatter implements Formatter.
var _ Formatter = (*PathsFormatter)(nil)

// NullFormatter writes paths separated by null bytes, for xargs -0.
type NullFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *NullFormatter) Format(w *bytes.Buffer, r *Result) error {
	ps, err := paths(r)
	if err != nil {
		return err
	}
	for _, p := range ps {
		w.WriteString(p)
		w.WriteByte(0)
	}
	return nil
}

func init() {
	Register("null", func() Formatter {
		return &NullFormatter{}
	})
}

// Ensure NullFormatter implements Formatter.
var _ Formatter = (*NullFormatter)(nil)
