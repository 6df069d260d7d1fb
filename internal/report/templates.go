package report

import "html/template"

// htmlTmpl is the print-styled document attached to the email. The layout
// follows the report the pipeline historically produced: verdict banner,
// test summary, severity table, then one section per tool.
var htmlTmpl = template.Must(template.New("html").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Project}} Security &amp; Test Report</title>
<style>
@page { size: A4; margin: 20mm; }
body { font-family: Arial, sans-serif; margin: 40px; color: #222; }
h1 { color: #333; }
.verdict { font-size: 24px; font-weight: bold; padding: 10px 16px; display: inline-block; }
.verdict-pass { color: #2e7d32; background: #e8f5e9; }
.verdict-warn { color: #e65100; background: #fff3e0; }
.verdict-fail { color: #c62828; background: #ffebee; }
table { border-collapse: collapse; width: 100%; margin-top: 16px; }
th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
th { background-color: #f2f2f2; }
.sev-CRITICAL, .sev-HIGH { color: #c62828; font-weight: bold; }
.sev-MEDIUM { color: #e65100; }
.sev-LOW { color: #1565c0; }
.sev-INFO { color: #616161; }
.status { font-style: italic; color: #616161; }
.note { color: #8d6e63; font-size: 0.9em; }
</style>
</head>
<body>

<h1>{{.Project}} Security &amp; Test Report</h1>
<p>Generated: {{.Generated}}</p>
<div class="verdict {{.VerdictCSS}}">{{.Verdict}}</div>

{{if .NoScans}}
<h2>No scans executed</h2>
<p>No tool supplied an artifact for this run. Every stage is recorded as not run.</p>
{{end}}

<h2>Test Summary</h2>
<table>
<tr><th>Passed</th><th>Failed</th><th>Errors</th><th>Skipped</th><th>Pass Rate</th></tr>
<tr>
  <td>{{.Summary.TestsPassed}}</td>
  <td>{{.Summary.TestsFailed}}</td>
  <td>{{.Summary.TestsErrored}}</td>
  <td>{{.Summary.TestsSkipped}}</td>
  <td>{{.PassRate}}</td>
</tr>
</table>

<h2>Findings by Severity</h2>
<table>
<tr><th>Severity</th><th>Count</th></tr>
{{range .Severities}}<tr><td class="{{.CSS}}">{{.Label}}</td><td>{{.Count}}</td></tr>
{{end}}{{if .Unparseable}}<tr><td class="status">Unparseable tool reports</td><td>{{.Unparseable}}</td></tr>
{{end}}</table>

{{range .Tools}}
<h2>{{.Name}}</h2>
{{if eq .Status "completed"}}{{if .Findings}}
<table>
<tr><th>Severity</th><th>Title</th><th>Location</th><th>Description</th></tr>
{{range .Findings}}<tr>
  <td class="sev-{{.Severity}}">{{.Severity}}</td>
  <td>{{.Title}}{{if .Note}} <span class="note">({{.Note}})</span>{{end}}</td>
  <td>{{with .Location}}{{.File}}{{if .Line}}:{{.Line}}{{end}}{{.ImageLayer}}{{end}}</td>
  <td>{{.Description}}</td>
</tr>
{{end}}</table>
{{else}}<p>No findings.</p>
{{end}}{{else if eq .Status "parse_failed"}}<p class="status">Artifact could not be parsed. Raw report kept at {{.RawPath}}.</p>
{{else}}<p class="status">Not run.</p>
{{end}}{{end}}

{{if .Tests}}
<h2>Test Cases</h2>
<table>
<tr><th>Test</th><th>Outcome</th><th>Duration</th></tr>
{{range .Tests}}<tr><td>{{.Name}}</td><td>{{.Outcome}}</td><td>{{if .Duration}}{{.Duration}}{{end}}</td></tr>
{{end}}</table>
{{end}}

</body>
</html>
`))

// storageTmpl is the wiki page body in Confluence storage format. The
// attachments macro lists whatever the publisher uploads after the body
// write.
var storageTmpl = template.Must(template.New("storage").Parse(`<h2>{{.Project}} Security &amp; Test Report</h2>
<p><strong>Generated:</strong> {{.Generated}}</p>
<p><strong>Overall verdict:</strong> {{.Verdict}}</p>
{{if .NoScans}}<h3>No scans executed</h3>
<p>No tool supplied an artifact for this run.</p>
{{end}}<h3>Test Summary</h3>
<table><tbody>
<tr><th>Passed</th><th>Failed</th><th>Errors</th><th>Skipped</th><th>Pass Rate</th></tr>
<tr><td>{{.Summary.TestsPassed}}</td><td>{{.Summary.TestsFailed}}</td><td>{{.Summary.TestsErrored}}</td><td>{{.Summary.TestsSkipped}}</td><td>{{.PassRate}}</td></tr>
</tbody></table>
<h3>Findings by Severity</h3>
<table><tbody>
<tr><th>Severity</th><th>Count</th></tr>
{{range .Severities}}<tr><td>{{.Label}}</td><td>{{.Count}}</td></tr>
{{end}}{{if .Unparseable}}<tr><td>Unparseable tool reports</td><td>{{.Unparseable}}</td></tr>
{{end}}</tbody></table>
<h3>Tool Results</h3>
<table><tbody>
<tr><th>Tool</th><th>Status</th><th>Findings</th></tr>
{{range .Tools}}<tr><td>{{.Name}}</td><td>{{.StatusLabel}}</td><td>{{len .Findings}}</td></tr>
{{end}}</tbody></table>
<p><em>All rendered artifacts are attached below.</em></p>
<p><ac:structured-macro ac:name="attachments"></ac:structured-macro></p>
`))
