// Package page renders the reviewer's HTML pages.
//
// Templates and static assets are embedded in the binary, so the tool runs
// from any working directory.
package page

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"io"
	"io/fs"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed assets
var assetFS embed.FS

// View is what every page template receives.
type View struct {
	Title string

	// Nav marks the active menu entry.
	Nav string

	// AnnotationsEnabled shows the annotations menu entry and forms.
	AnnotationsEnabled bool

	// Model is the page specific data.
	Model any
}

// Renderer holds one parsed template set per page. Each set is the shared
// layout plus the page's own file, so every page can define "content".
type Renderer struct {
	pages map[Template]*template.Template
}

// NewRenderer parses every page template.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[Template]*template.Template, len(Templates))}

	for _, name := range Templates {
		tmpl, err := template.New(string(name)).
			Funcs(funcs()).
			ParseFS(templateFS, "templates/layout.html", "templates/"+string(name)+".html")
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse page template %s", name)
		}
		r.pages[name] = tmpl
	}

	return r, nil
}

// Execute renders a full page into w. Nothing is written when the template
// fails, so the caller can still send an error response.
func (r *Renderer) Execute(w io.Writer, name Template, view View) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return errors.Errorf("unknown page template %s", name)
	}

	var body bytes.Buffer
	if err := tmpl.ExecuteTemplate(&body, "layout", view); err != nil {
		return errors.Wrapf(err, "failed to execute page template %s", name)
	}

	_, err := body.WriteTo(w)
	return err
}

// Render implements echo.Renderer. Data that is not a View becomes the
// model of an otherwise empty one.
func (r *Renderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	view, ok := data.(View)
	if !ok {
		view = View{Model: data}
	}
	return r.Execute(w, Template(name), view)
}

// Assets returns the static files served under /assets.
func Assets() fs.FS {
	sub, err := fs.Sub(assetFS, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

var titleCaser = cases.Title(language.English)

// Label turns a folder name into a heading: "cluster_12" becomes "Cluster 12".
func Label(name string) string {
	return titleCaser.String(strings.ReplaceAll(name, "_", " "))
}

// Percent is done as a whole percentage of total, 0 when total is 0.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"label":   Label,
		"percent": Percent,
		"join":    strings.Join,
		"add":     func(a, b int) int { return a + b },
		"json": func(v any) (string, error) {
			b, err := json.MarshalIndent(v, "", "  ")
			return string(b), err
		},
	}
}
