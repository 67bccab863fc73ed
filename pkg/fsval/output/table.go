package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

// TableFormatter renders a bordered, colored table with a header box for
// reports and a footer with totals.
type TableFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *TableFormatter) Format(w *bytes.Buffer, r *Result) error {
	headers, rows, err := tabular(r, "\n")
	if err != nil {
		return err
	}

	if r.Kind == KindReport {
		w.WriteString(f.formatHeader(r))
		w.WriteString("\n")
	}

	if len(rows) == 0 {
		w.WriteString(MutedStyle.Render("  "+emptyMessage(r.Kind)) + "\n")
	} else {
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(TableBorderStyle).
			Headers(headers...).
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return TableHeaderStyle
				}
				if r.Kind == KindReport && col == 2 {
					return TableCellStyle.Foreground(ColorDanger)
				}
				return TableCellStyle
			})
		w.WriteString(t.String())
		w.WriteString("\n")
	}

	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")
	return nil
}

func (f *TableFormatter) formatHeader(r *Result) string {
	rep := r.Report
	lines := []string{
		fmt.Sprintf("%s %s %s",
			LabelStyle.Render("Manifest:"),
			ValueStyle.Render(rep.ManifestID),
			MutedStyle.Render("v"+rep.ManifestVersion)),
	}
	if rep.Target != "" {
		lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render("Target:"), ValueStyle.Render(rep.Target)))
	}

	var ruleParts []string
	for _, rr := range rep.Rules {
		if rr.Passed {
			ruleParts = append(ruleParts, SuccessStyle.Render("✓ "+rr.ID))
		} else {
			ruleParts = append(ruleParts, ErrorStyle.Render("✗ "+rr.ID))
		}
	}
	if len(ruleParts) > 0 {
		lines = append(lines, LabelStyle.Render("Rules:")+" "+strings.Join(ruleParts, "  "))
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *TableFormatter) formatFooter(r *Result) string {
	var parts []string
	switch r.Kind {
	case KindReport:
		rep := r.Report
		parts = append(parts,
			fmt.Sprintf("%s %s", LabelStyle.Render("Entries:"), ValueStyle.Render(fmt.Sprint(rep.Entries))),
			fmt.Sprintf("%s %s", LabelStyle.Render("Took:"), ValueStyle.Render(formatDuration(rep.Duration.Seconds()))),
		)
		if rep.Success {
			parts = append(parts, SuccessStyle.Render(rep.Summary()))
		} else {
			parts = append(parts, ErrorStyle.Render(rep.Summary()))
		}
	case KindSnapshot:
		parts = append(parts,
			fmt.Sprintf("%s %s", LabelStyle.Render("Entries:"), ValueStyle.Render(fmt.Sprint(len(r.Snapshot)))),
			fmt.Sprintf("%s %s", LabelStyle.Render("Total:"), ValueStyle.Render(humanize.IBytes(uint64(r.Snapshot.TotalSize())))),
		)
		if r.Root != "" {
			parts = append(parts, MutedStyle.Render(r.Root))
		}
	case KindManifests:
		parts = append(parts,
			fmt.Sprintf("%s %s", LabelStyle.Render("Manifests:"), ValueStyle.Render(fmt.Sprint(len(r.Manifests)))),
			MutedStyle.Render("Use 'fsval manifest show <name>' for details"),
		)
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

func emptyMessage(k Kind) string {
	switch k {
	case KindReport:
		return "No failures"
	case KindSnapshot:
		return "No entries"
	default:
		return "No manifests found"
	}
}

// formatDuration formats seconds in a human-friendly way.
func formatDuration(sec float64) string {
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

func init() {
	Register("table", func() Formatter {
		return &TableFormatter{}
	})
}

// Ensure TableFormatter implements Formatter.
var _ Formatter = (*TableFormatter)(nil)
