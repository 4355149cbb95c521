package export

import (
	"bytes"
	"fmt"
	"html/template"

	"edusphere/internal/report"
)

var printTemplate = template.Must(template.New("print").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Header.Title}}</title>
<style>
  body { font-family: Arial, Helvetica, sans-serif; color: #222; margin: 24px; }
  header { display: flex; align-items: center; gap: 16px; border-bottom: 2px solid #28916c; padding-bottom: 12px; margin-bottom: 16px; }
  header img { max-height: 64px; }
  h1 { font-size: 20px; margin: 0; }
  h2 { font-size: 15px; margin: 4px 0; }
  .meta { font-size: 12px; margin: 2px 0; }
  table { width: 100%; border-collapse: collapse; font-size: 12px; }
  th { background: #28916c; color: #fff; padding: 6px; border: 1px solid #1f6f53; }
  td { padding: 5px 6px; border: 1px solid #ccc; }
  tr:nth-child(even) td { background: #f5f5f5; }
  .signature { margin-top: 40px; font-size: 12px; }
  .signature img { max-height: 60px; display: block; }
  .signature .line { border-top: 1px solid #222; width: 220px; padding-top: 4px; }
  footer { margin-top: 24px; font-size: 10px; font-style: italic; color: #666; }
  @media print { body { margin: 0; } }
</style>
</head>
<body>
<header>
  {{if .Logo}}<img src="{{.Logo}}" alt="logo">{{end}}
  <div>
    <h1>{{.Header.Institution}}</h1>
    <h2>{{.Header.Title}}</h2>
    {{if .Header.Teacher}}<p class="meta">Teacher: {{.Header.Teacher}}</p>{{end}}
    {{if .Header.ClassLabel}}<p class="meta">Class: {{.Header.ClassLabel}}</p>{{end}}
    {{with .Header.Generated}}<p class="meta">Generated: {{.}}</p>{{end}}
  </div>
</header>
<table>
  <thead><tr>{{range .Table.Headers}}<th>{{.}}</th>{{end}}</tr></thead>
  <tbody>
  {{range .Table.Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
  {{end}}
  </tbody>
</table>
<div class="signature">
  {{if .Signature}}<img src="{{.Signature}}" alt="signature">{{end}}
  <div class="line">{{.Header.Teacher}}</div>
</div>
<footer>{{.Disclaimer}}</footer>
<script>
  window.onafterprint = function () { window.close(); };
  window.onload = function () { window.focus(); window.print(); };
</script>
</body>
</html>
`))

// PrintHTML renders a standalone document that opens the print dialog on
// load and closes its window once printing finishes or is cancelled.
func PrintHTML(h Header, t report.Table, img Images) (string, error) {
	if h.Title == "" {
		h.Title = "Class Report"
	}
	data := struct {
		Header     Header
		Table      report.Table
		Logo       template.URL
		Signature  template.URL
		Disclaimer string
	}{Header: h, Table: t, Disclaimer: Disclaimer}
	// data URLs are produced by Image.DataURL and are safe to embed
	if img.Logo != nil {
		data.Logo = template.URL(img.Logo.DataURL())
	}
	if img.Signature != nil {
		data.Signature = template.URL(img.Signature.DataURL())
	}

	var buf bytes.Buffer
	if err := printTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render print document: %w", err)
	}
	return buf.String(), nil
}
