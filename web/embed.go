// Package web embeds the chat page (dist/). The page is a single document
// plus its script and stylesheet; all state comes from /api.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

const indexFile = "index.html"

// PageHandler serves the embedded chat page.
//
// Known files are served as is. Unknown paths without an extension get the
// page itself so bookmarked URLs still open the chat; unknown assets and
// unmatched /api paths are 404s.
func PageHandler() http.Handler {
	pageFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to open embedded page: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(pageFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" || name == indexFile {
			servePage(w, r, pageFS)
			return
		}
		if strings.HasPrefix(name, "api/") {
			http.NotFound(w, r)
			return
		}

		if f, err := pageFS.Open(name); err == nil {
			if closeErr := f.Close(); closeErr != nil {
				slog.Debug("web: failed to close embedded file", "path", name, "error", closeErr)
			}
			fileServer.ServeHTTP(w, r)
			return
		}

		if path.Ext(name) != "" {
			http.NotFound(w, r)
			return
		}
		servePage(w, r, pageFS)
	})
}

// servePage writes index.html directly; http.FileServer would redirect
// /index.html to /.
func servePage(w http.ResponseWriter, r *http.Request, pageFS fs.FS) {
	data, err := fs.ReadFile(pageFS, indexFile)
	if err != nil {
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(data); err != nil {
		slog.Debug("web: failed to write page", "error", err)
	}
}
