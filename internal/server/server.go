package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ggoodman/mcp-chatmi-bridge/internal/config"
)

// New constructs the HTTP handler for the bridge. The message and stream
// handlers enforce their own method contracts, so they are mounted for every
// method. A nil gatherer leaves /metrics unmounted.
func New(cfg config.Config, message, stream http.Handler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Handle(cfg.MessagePath, message)
	r.Handle(cfg.SSEPath, stream)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}
