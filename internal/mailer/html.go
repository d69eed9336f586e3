package mailer

import (
	"html/template"
	"strings"

	"github.com/rotisserie/eris"
)

var htmlBodyTmpl = template.Must(template.New("body").Parse(
	`<html><body style="font-family:Arial,sans-serif;font-size:14px;line-height:1.5;color:#222">
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}</body></html>`))

// RenderHTML builds the HTML alternative for a plain-text body. Paragraphs
// are split on blank lines; template escaping keeps model output inert.
func RenderHTML(textBody string) (string, error) {
	var paragraphs []string
	for _, p := range strings.Split(textBody, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	var sb strings.Builder
	err := htmlBodyTmpl.Execute(&sb, struct{ Paragraphs []string }{paragraphs})
	if err != nil {
		return "", eris.Wrap(err, "mailer: render html body")
	}
	return sb.String(), nil
}
