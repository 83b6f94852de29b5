package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates renders pages composed with the base layout.
type Templates struct {
	pages map[string]*template.Template
}

// NewTemplates parses every page in fsys against templates/base.html.
func NewTemplates(fsys fs.FS) (*Templates, error) {
	base, err := template.New("base.html").Funcs(templateFuncs()).ParseFS(fsys, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing layout: %w", err)
	}

	pages, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("finding pages: %w", err)
	}

	t := &Templates{pages: map[string]*template.Template{}}
	for _, p := range pages {
		name := path.Base(p)
		if name == "base.html" {
			continue
		}
		layout, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning layout for %s: %w", name, err)
		}
		if t.pages[name], err = layout.ParseFS(fsys, p); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
	}
	return t, nil
}

// Render executes page into w. Output is buffered so a failed render never sends a partial page.
func (t *Templates) Render(w io.Writer, page string, data any) error {
	tmpl, ok := t.pages[page]
	if !ok {
		return fmt.Errorf("template %q not found", page)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("rendering %s: %w", page, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"duration": func(ms int) string {
			s := ms / 1000
			return fmt.Sprintf("%d:%02d", s/60, s%60)
		},
	}
}
