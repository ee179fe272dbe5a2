package handler

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the embedded pages rendered by the handlers.
func Templates() *template.Template {
	return template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))
}

type loginView struct {
	Challenge string
	Username  string
	Error     string
}

type fallbackView struct {
	Title    string
	Location string
}
