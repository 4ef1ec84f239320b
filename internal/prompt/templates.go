package prompt

import "text/template"

// contextTemplate renders the retrieval-context system message.
const contextTemplate = `Материалы базы знаний, которые могут помочь с ответом. Опирайся на них и не выдумывай фактов сверх них.

{{.Block}}
{{- if .Sources}}

Sources:
{{- range .Sources}}
- {{.}}
{{- end}}
{{- end}}`

var contextTmpl = template.Must(template.New("context").Parse(contextTemplate))
