package output

import (
	"bytes"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
)

// TemplateFormatter formats output with a Go text/template. The template
// receives the Result, so it reaches .Report, .Snapshot or .Manifests.
type TemplateFormatter struct {
	templateStr string
	template    *template.Template
	mu          sync.Mutex
}

// NewTemplateFormatter creates a template formatter.
func NewTemplateFormatter(templateStr string) *TemplateFormatter {
	return &TemplateFormatter{
		templateStr: templateStr,
	}
}

// SetTemplate replaces the template.
func (f *TemplateFormatter) SetTemplate(templateStr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templateStr = templateStr
	f.template = nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// Usage: {{bytes .Size}}
		"bytes": func(size int64) string {
			return humanize.IBytes(uint64(size))
		},

		// Usage: {{mtime .ModifyNS "2006-01-02"}}
		"mtime": func(ns int64, layout string) string {
			if ns == 0 {
				return ""
			}
			return time.Unix(0, ns).Format(layout)
		},

		// Usage: {{errors .Errors}}
		"errors": func(v any) string {
			return FormatErrors(v, "; ")
		},

		"join": strings.Join,
	}
}

// Format writes the formatted output to the buffer.
func (f *TemplateFormatter) Format(w *bytes.Buffer, r *Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.template == nil {
		tmpl, err := template.New("output").Funcs(templateFuncs()).Parse(f.templateStr)
		if err != nil {
			return err
		}
		f.template = tmpl
	}

	return f.template.Execute(w, r)
}

// defaultTemplate prints one line per failure, entry or manifest.
const defaultTemplate = `{{with .Report}}{{range .Failures}}{{.Rule}}	{{.Constraint}}	{{errors .Errors}}
{{end}}{{end}}{{range .Snapshot}}{{bytes .Size}}	{{.Path}}
{{end}}{{range .Manifests}}{{.Name}}	{{.ID}}
{{end}}`

func init() {
	Register("template", func() Formatter {
		return NewTemplateFormatter(defaultTemplate)
	})
}

// Ensure TemplateFormatter implements Formatter.
var _ Formatter = (*TemplateFormatter)(nil)
