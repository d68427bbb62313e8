package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/okian/smartsession/internal/adapters/http/api"
	"github.com/okian/smartsession/internal/adapters/http/swagger"
	app "github.com/okian/smartsession/internal/app"
	"github.com/okian/smartsession/internal/config"
	"github.com/okian/smartsession/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When configuration comes from the environment", func() {
			_ = os.Setenv("SMARTSESSION_ADDR", ":8080")
			_ = os.Setenv("SMARTSESSION_BROADCAST_QUEUE_SIZE", "1000")
			_ = os.Setenv("SMARTSESSION_DISPATCH_WORKERS", "4")
			_ = os.Setenv("SMARTSESSION_CONFUSION_WINDOW", "2s")
			defer func() {
				_ = os.Unsetenv("SMARTSESSION_ADDR")
				_ = os.Unsetenv("SMARTSESSION_BROADCAST_QUEUE_SIZE")
				_ = os.Unsetenv("SMARTSESSION_DISPATCH_WORKERS")
				_ = os.Unsetenv("SMARTSESSION_CONFUSION_WINDOW")
			}()

			convey.Convey("Then it maps onto service options", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")

				svc := app.New(serviceOptions(cfg, logger.Get())...)
				stats := svc.GetStats()
				convey.So(stats["queueSize"], convey.ShouldEqual, 1000)
				convey.So(stats["dispatchWorkers"], convey.ShouldEqual, 4)
				convey.So(stats["confusionWindow"], convey.ShouldEqual, "2s")
				convey.So(stats["started"], convey.ShouldEqual, false)
			})
		})

		convey.Convey("When the configuration is invalid", func() {
			_ = os.Setenv("SMARTSESSION_SHARD_COUNT", "0")
			defer func() { _ = os.Unsetenv("SMARTSESSION_SHARD_COUNT") }()

			convey.Convey("Then serve refuses to start", func() {
				err := runServe(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "failed to load config")
			})
		})
	})
}

func TestServeLifecycle(t *testing.T) {
	convey.Convey("Given serve on a free port", t, func() {
		_ = os.Setenv("SMARTSESSION_ADDR", "127.0.0.1:0")
		defer func() { _ = os.Unsetenv("SMARTSESSION_ADDR") }()

		convey.Convey("When its context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- runServe(ctx) }()
			time.Sleep(100 * time.Millisecond)
			cancel()

			convey.Convey("Then it shuts down cleanly", func() {
				select {
				case err := <-done:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(5 * time.Second):
					convey.So("serve", convey.ShouldEqual, "stopped")
				}
			})
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing the metrics updaters", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			svc := app.New()

			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
			convey.So(func() { updateSystemMetrics() }, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("When the full route set is assembled", func() {
			ctx := context.Background()
			svc := app.New()
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()

			mux := http.NewServeMux()
			swagger.Register(ctx, mux)
			server := api.NewServer(svc, svc, []string{"*"})
			server.Register(ctx, mux)
			h := server.Handler(mux)

			convey.Convey("Then docs and API routes coexist", func() {
				for _, path := range []string{"/", "/health", "/stats", "/metrics", "/teacher/sessions", "/openapi.yaml", "/api-docs"} {
					w := httptest.NewRecorder()
					h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				}
			})

			convey.Convey("And updateServiceMetrics reads a running service", func() {
				convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
			})
		})
	})
}

func TestCommands(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		names := map[string]bool{}
		for _, c := range rootCmd.Commands() {
			names[c.Name()] = true
		}

		convey.Convey("Then serve and simulate are registered", func() {
			convey.So(names["serve"], convey.ShouldBeTrue)
			convey.So(names["simulate"], convey.ShouldBeTrue)
			convey.So(rootCmd.Version, convey.ShouldEqual, Version)
		})

		convey.Convey("Then simulate exposes its flags", func() {
			for _, flag := range []string{"url", "subjects", "frames", "interval", "workers", "scenario", "verbose"} {
				convey.So(simulateCmd.Flags().Lookup(flag), convey.ShouldNotBeNil)
			}
		})
	})
}
