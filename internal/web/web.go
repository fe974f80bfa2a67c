// Package web serves the installable PWA shell: the index page, the service
// worker, the manifest, the offline fallback and static assets.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
)

//go:embed static/* templates/*.html
var content embed.FS

type Handler struct {
	static   fs.FS
	index    *template.Template
	vapidKey string
	logger   *slog.Logger
	fileSrv  http.Handler
}

// NewHandler builds the shell. vapidKey is exposed to the page so it can
// subscribe to push without an extra round trip; empty disables it.
func NewHandler(vapidKey string, logger *slog.Logger) *Handler {
	static, err := fs.Sub(content, "static")
	if err != nil {
		panic(err)
	}
	return &Handler{
		static:   static,
		index:    template.Must(template.ParseFS(content, "templates/index.html")),
		vapidKey: vapidKey,
		logger:   logger,
		fileSrv:  http.StripPrefix("/static/", http.FileServerFS(static)),
	}
}

// Register mounts the shell routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("GET /sw.js", h.ServiceWorker)
	mux.HandleFunc("GET /manifest.webmanifest", h.file("manifest.webmanifest", "application/manifest+json"))
	mux.HandleFunc("GET /offline.html", h.file("offline.html", "text/html; charset=utf-8"))
	mux.Handle("GET /static/", h.fileSrv)
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Title":          "RE:MIND",
		"VAPIDPublicKey": h.vapidKey,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.index.Execute(w, data); err != nil {
		h.logger.Error("render index", "error", err)
	}
}

// ServiceWorker serves sw.js with a root scope. It is never cached so a new
// deploy takes effect on the next navigation.
func (h *Handler) ServiceWorker(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Service-Worker-Allowed", "/")
	w.Header().Set("Cache-Control", "no-cache")
	h.file("sw.js", "application/javascript; charset=utf-8")(w, r)
}

func (h *Handler) file(name, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := fs.ReadFile(h.static, name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Write(data)
	}
}
