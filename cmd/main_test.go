package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	app "github.com/okian/crease/internal/app"
	"github.com/okian/crease/internal/config"
	"github.com/okian/crease/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestMainConfiguration(t *testing.T) {
	convey.Convey("Given environment overrides", t, func() {
		t.Setenv("CREASE_ADDR", ":8080")
		t.Setenv("CREASE_QUEUE_SIZE", "1000")
		t.Setenv("CREASE_WORKER_COUNT", "4")

		convey.Convey("Then configuration should be loadable", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.EventQueueSize, convey.ShouldEqual, 1000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
		})
	})
}

func TestRouter(t *testing.T) {
	convey.Convey("Given a started service behind the router", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.WorkerCount = 1
		svc := app.New(app.WithConfig(cfg))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()
		h := newRouter(ctx, cfg, svc)

		get := func(path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
			return w
		}

		convey.Convey("Then docs, scoreboard and stats are mounted", func() {
			convey.So(get("/openapi.yaml").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/").Body.String(), convey.ShouldContainSubstring, "Crease Live")
			convey.So(get("/stats").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/healthz").Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then a match can be registered and read back", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/matches", strings.NewReader(`{"match_id":"m1","tier":"honor"}`))
			req.Header.Set("X-Actor-ID", "u1")
			req.Header.Set("X-Actor-Role", "umpire")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusCreated)

			convey.So(get("/v1/matches/m1/scorecard").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/v1/matches/nope/scorecard").Code, convey.ShouldEqual, http.StatusNotFound)
		})

		convey.Convey("Then service metrics can be refreshed", func() {
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})
	})
}

func TestOriginPolicy(t *testing.T) {
	convey.Convey("Given an origin allow list", t, func() {
		check := originPolicy([]string{"https://board.example/"})
		req := func(origin string) *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if origin != "" {
				r.Header.Set("Origin", origin)
			}
			return r
		}

		convey.So(check(req("https://board.example")), convey.ShouldBeTrue)
		convey.So(check(req("https://evil.example")), convey.ShouldBeFalse)
		convey.So(check(req("")), convey.ShouldBeTrue)
		convey.So(originPolicy([]string{"*"})(req("https://any.example")), convey.ShouldBeTrue)
	})
}
