package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// tabular converts a result into a header row and data rows shared by the
// table, plain, csv and markdown formatters. sep joins multi-part cells.
func tabular(r *Result, sep string) ([]string, [][]string, error) {
	switch r.Kind {
	case KindReport:
		if r.Report == nil {
			return nil, nil, fmt.Errorf("%w: empty report", ErrUnsupportedKind)
		}
		headers := []string{"RULE", "DESCRIPTION", "CONSTRAINT", "VALUE", "ERRORS"}
		rows := make([][]string, 0, len(r.Report.Failures))
		for _, f := range r.Report.Failures {
			rows = append(rows, []string{
				f.Rule,
				f.RuleDescription,
				f.Constraint,
				FormatValue(f.ConstraintValue),
				FormatErrors(f.Errors, sep),
			})
		}
		return headers, rows, nil

	case KindSnapshot:
		headers := []string{"TYPE", "SIZE", "MODIFIED", "PATH"}
		rows := make([][]string, 0, len(r.Snapshot))
		for _, e := range r.Snapshot {
			size := humanize.IBytes(uint64(e.Size))
			if e.IsDir() {
				size = "-"
			}
			rows = append(rows, []string{
				string(e.Kind),
				size,
				formatModified(e.ModifyNS),
				e.Path,
			})
		}
		return headers, rows, nil

	case KindManifests:
		headers := []string{"NAME", "ID", "VERSION", "SOURCE", "DESCRIPTION"}
		rows := make([][]string, 0, len(r.Manifests))
		for _, info := range r.Manifests {
			id := info.ID
			if info.Reference {
				id = "(include)"
			}
			rows = append(rows, []string{info.Name, id, info.Version, info.Source, info.Description})
		}
		return headers, rows, nil

	default:
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedKind, r.Kind)
	}
}

// FormatValue renders a constraint value for a table cell.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// FormatErrors renders a failure's errors: a plain message, or path-keyed
// messages sorted by path and joined by sep.
func FormatErrors(v any, sep string) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]string:
		paths := make([]string, 0, len(val))
		for p := range val {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		parts := make([]string, len(paths))
		for i, p := range paths {
			parts[i] = p + ": " + val[p]
		}
		return strings.Join(parts, sep)
	default:
		return fmt.Sprint(val)
	}
}

func formatModified(ns int64) string {
	if ns == 0 {
		return "-"
	}
	return humanize.Time(time.Unix(0, ns))
}
