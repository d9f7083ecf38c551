package report

import (
	"fmt"
	"html/template"
	"io"

	"github.com/ademuri/listening-identity/internal/metrics"
)

var htmlReport = template.Must(template.New("report").Parse(`
<html>
  <head>
<style>
td {
  padding: 0.1em 0.2em;
}
table, th, td {
  border: 1px solid black;
  border-collapse: collapse;
}
</style>
  </head>
  <body>
    <p>{{.Events}} events and {{.Rankings}} ranking records, {{.From}} to {{.To}}.</p>
{{- range .Sections}}
    <div>
      <h2>{{.Title}}</h2>
      {{- if .Rows}}
      <table>
        <thead>
          <tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr>
        </thead>
        <tbody>
        {{- range .Rows}}
          <tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
        {{- end}}
        </tbody>
      </table>
      {{- else}}
      <div>No data.</div>
      {{- end}}
      {{- if .Summary}}
      <div>{{.Summary}}</div>
      {{- end}}
    </div>
{{- end}}
  </body>
</html>
`))

// HTML writes the snapshot as a self-contained page for email clients.
func HTML(out io.Writer, snap metrics.Snapshot) error {
	data := struct {
		Events, Rankings int
		From, To         string
		Sections         []Section
	}{
		Events:   snap.Events,
		Rankings: snap.Rankings,
		From:     snap.From.Format("2006-01-02"),
		To:       snap.To.Format("2006-01-02"),
		Sections: Sections(snap),
	}
	if err := htmlReport.Execute(out, data); err != nil {
		return fmt.Errorf("rendering html: %w", err)
	}
	return nil
}
