// goban/regen/templates.go
package regen

import (
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcMap = template.FuncMap{
	"formatTime": func(t time.Time) string {
		return t.UTC().Format("01/02/06(Mon)15:04:05")
	},
	"safeHTML": func(s string) template.HTML {
		return template.HTML(s)
	},
}

func loadTemplates() (*template.Template, error) {
	return template.New("").Funcs(funcMap).ParseFS(templateFS, "templates/*.html")
}
