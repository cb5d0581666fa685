package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/conneroisu/postcard/internal/catalog"
	"github.com/conneroisu/postcard/internal/livesync"
	"github.com/conneroisu/postcard/internal/preview"
)

//go:embed ui/page.html ui/preview.js
var uiFS embed.FS

var (
	pageTemplate = template.Must(template.New("page.html").
			Funcs(template.FuncMap{"previewURL": PreviewURL}).
			ParseFS(uiFS, "ui/page.html"))
	pageScript = template.JS(mustRead("ui/preview.js"))
)

func mustRead(name string) string {
	b, err := uiFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return string(b)
}

type hotkey struct {
	Key         string
	Description string
}

// Hotkeys handled by ui/preview.js.
var hotkeys = []hotkey{
	{"/", "Jump to previews"},
	{"]", "Next view mode"},
	{"[", "Previous view mode"},
	{"d", "Desktop view"},
	{"m", "Mobile view"},
	{"h", "HTML view"},
}

type pageState struct {
	Template string
	Function string
	Previews catalog.Catalog
	Result   *preview.Result
}

// initialData seeds the page script. It has the same shape as the render
// API so the script treats embedded and fetched data alike.
type initialData struct {
	Template string          `json:"template"`
	Function string          `json:"function"`
	Static   bool            `json:"static"`
	Preview  *preview.Result `json:"preview"`
	Previews catalog.Catalog `json:"previews"`
}

type pageData struct {
	Title       string
	Heading     string
	Template    string
	Function    string
	Selected    bool
	Previews    catalog.Catalog
	NullState   bool
	EmailsDir   string
	PreviewsDir string
	ViewModes   []livesync.ViewMode
	Hotkeys     []hotkey
	Initial     initialData
	Nonce       string
	Script      template.JS
}

func (s *PreviewServer) renderPage(w http.ResponseWriter, r *http.Request, status int, st pageState) {
	nonce, err := generateNonce()
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to generate nonce")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	previews := st.Previews
	if previews == nil {
		previews = catalog.Catalog{}
	}

	selected := st.Template != "" && st.Function != ""
	title, heading := "Postcard", "Postcard"
	if selected {
		heading = catalog.Title(st.Template) + " - " + st.Function
		title = heading + " | Postcard"
	}

	data := pageData{
		Title:       title,
		Heading:     heading,
		Template:    st.Template,
		Function:    st.Function,
		Selected:    selected,
		Previews:    previews,
		NullState:   catalog.IsDefaultExampleCatalog(previews, s.config.Static),
		EmailsDir:   s.config.Emails.Dir,
		PreviewsDir: s.config.Emails.PreviewsPath(),
		ViewModes:   livesync.ViewModes,
		Hotkeys:     hotkeys,
		Initial: initialData{
			Template: st.Template,
			Function: st.Function,
			Static:   s.config.Static,
			Preview:  st.Result,
			Previews: previews,
		},
		Nonce:  nonce,
		Script: pageScript,
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		s.logger.Error(r.Context(), err, "Failed to render page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", pageCSP(nonce))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
