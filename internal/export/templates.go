package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var articleTemplate = template.Must(template.New("article.html").Funcs(template.FuncMap{
	"upper": strings.ToUpper,
	"inc":   func(i int) int { return i + 1 },
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2 January 2006")
	},
}).ParseFS(templateFS, "templates/article.html"))

// RenderHTML renders the standalone annotated article page.
func RenderHTML(doc Document) (string, error) {
	var buf bytes.Buffer
	if err := articleTemplate.Execute(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}
