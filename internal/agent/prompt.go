package agent

import (
	"bytes"
	"text/template"

	"github.com/molviz/pymol-agent/internal/tools"
)

var systemPromptTmpl = template.Must(template.New("systemPrompt").Parse(`You are a PyMOL Learning Agent - an intelligent assistant that helps users
understand and control the PyMOL molecular visualization software.

Your capabilities include:
- Understanding natural language commands about molecular visualization
- Executing PyMOL commands and operations
- Explaining PyMOL concepts and features
- Providing guidance on molecular analysis and visualization techniques

Always use your tools rather than describing commands for the user to run
themselves. Destructive operations require explicit user confirmation before
they execute.
{{- if .Specs}}

Available tools:
{{- range .Specs}}
- {{.Name}}: {{.Description}}
{{- end}}
{{- end}}
`))

// buildSystemPrompt renders the static agent instructions plus the current
// tool capability listing.
func buildSystemPrompt(specs []tools.Spec) string {
	var buf bytes.Buffer
	_ = systemPromptTmpl.Execute(&buf, struct{ Specs []tools.Spec }{Specs: specs})
	return buf.String()
}
