// Package site serves the embedded live scoreboard page.
package site

import (
	"context"
	"errors"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ErrServe is returned when the embedded page cannot be read.
var ErrServe = errors.New("scoreboard serve failed")

// Register attaches the scoreboard routes to r.
//
//	GET /            -> scoreboard page
//	GET /assets/*    -> page scripts and styles
func Register(_ context.Context, r chi.Router) {
	if r == nil {
		panic("router is nil")
	}
	files := http.FileServer(FS())
	r.Get("/", NewRootHandler().HandleRoot)
	r.Handle("/assets/*", http.StripPrefix("/assets/", files))
}

// RootHandler serves the scoreboard index page.
type RootHandler struct {
	index []byte
	err   error
}

// NewRootHandler reads the embedded index page once.
func NewRootHandler() *RootHandler {
	b, err := fs.ReadFile(staticFS, "static/index.html")
	if err != nil {
		err = errors.Join(ErrServe, err)
	}
	return &RootHandler{index: b, err: err}
}

// HandleRoot handles GET /.
func (h *RootHandler) HandleRoot(w http.ResponseWriter, _ *http.Request) {
	if h.err != nil {
		http.Error(w, h.err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(h.index)
}
