package main

import (
	"embed"
	"html/template"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/oszuidwest/noisesense/internal/config"
	"github.com/oszuidwest/noisesense/internal/util"
)

//go:embed web
var webFS embed.FS

// pageTmpl holds the login page, the meter page and the favicon.
var pageTmpl = template.Must(template.ParseFS(webFS, "web/*.html", "web/favicon.svg"))

// assets are served verbatim. Everything else under web/ is a template.
var assets = map[string]bool{
	"style.css": true,
	"app.js":    true,
}

// pageData is shared by the login and meter pages.
type pageData struct {
	Version     string
	Year        int
	StationName string
	PrimaryCSS  template.CSS
	CSRFToken   string
	Error       bool
}

func newPageData(snap *config.Snapshot) pageData {
	return pageData{
		Version:     Version,
		Year:        time.Now().Year(),
		StationName: snap.StationName,
		PrimaryCSS:  template.CSS(util.GenerateBrandCSS(snap.StationColorLight, snap.StationColorDark)),
	}
}

// render executes a named template as a response with the given content type.
func render(w http.ResponseWriter, name, contentType string, data any) {
	w.Header().Set("Content-Type", contentType)
	if err := pageTmpl.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("failed to render page", "page", name, "error", err)
	}
}

// serveAsset writes an embedded asset and reports whether name is one.
func serveAsset(w http.ResponseWriter, name string) bool {
	if !assets[name] {
		return false
	}
	data, err := webFS.ReadFile("web/" + name)
	if err != nil {
		return false
	}
	w.Header().Set("Content-Type", mime.TypeByExtension(path.Ext(name)))
	if _, err := w.Write(data); err != nil {
		slog.Debug("failed to write asset", "asset", name, "error", err)
	}
	return true
}

// handleAsset serves public assets needed before login.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	if !serveAsset(w, path.Base(r.URL.Path)) {
		http.NotFound(w, r)
	}
}

// handleFavicon renders the favicon in the station color.
func (s *Server) handleFavicon(w http.ResponseWriter, _ *http.Request) {
	snap := s.config.Snapshot()
	render(w, "favicon.svg", "image/svg+xml", struct{ Color string }{snap.StationColorLight})
}

// handleIndex serves the meter page at the root and assets below it.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/", "/index.html":
		snap := s.config.Snapshot()
		render(w, "index.html", "text/html; charset=utf-8", newPageData(&snap))
	default:
		if !serveAsset(w, path.Base(r.URL.Path)) {
			http.NotFound(w, r)
		}
	}
}

// handleLogin shows the login form and processes submissions.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.sessions.Authenticated(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	snap := s.config.Snapshot()
	data := newPageData(&snap)

	if r.Method == http.MethodPost {
		if !s.sessions.ValidateCSRFToken(r.FormValue("csrf_token")) {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if s.sessions.Login(w, r, r.FormValue("username"), r.FormValue("password"), snap.WebUser, snap.WebPassword) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		data.Error = true
	}

	data.CSRFToken = s.sessions.CreateCSRFToken()
	render(w, "login.html", "text/html; charset=utf-8", data)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(w, r)
	http.Redirect(w, r, "/login", http.StatusFound)
}
