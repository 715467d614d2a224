package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSiteHandler(t *testing.T) {
	Convey("Given a router with the scoreboard registered", t, func() {
		r := chi.NewRouter()
		Register(context.Background(), r)

		Convey("Then / serves the page", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
			So(w.Body.String(), ShouldContainSubstring, "Crease Live")
		})

		Convey("And assets are served from the embedded directory", func() {
			req := httptest.NewRequest(http.MethodGet, "/assets/board.js", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "WebSocket")
		})

		Convey("And unknown assets are not found", func() {
			req := httptest.NewRequest(http.MethodGet, "/assets/missing.js", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("And other paths are not served", func() {
			req := httptest.NewRequest(http.MethodGet, "/some-asset", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestSiteHandlerWithNilRouter(t *testing.T) {
	Convey("Given a nil router", t, func() {
		So(func() {
			Register(context.Background(), nil)
		}, ShouldPanic)
	})
}

func TestRootHandler(t *testing.T) {
	Convey("The embedded index is loaded once", t, func() {
		h := NewRootHandler()
		So(h.err, ShouldBeNil)
		So(string(h.index), ShouldContainSubstring, "/assets/board.js")
	})
}
