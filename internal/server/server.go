package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/schmackofatz/recipes/internal/api"
	"github.com/schmackofatz/recipes/internal/config"
	"github.com/schmackofatz/recipes/internal/inflight"
	"github.com/schmackofatz/recipes/internal/metrics"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Relay   api.Starter
	Streams *inflight.Counter
	Version string
}

// New constructs the HTTP handler for the server. It installs a fresh
// Prometheus registry as the process default.
func New(cfg config.ServerConfig, deps Deps) (http.Handler, error) {
	if deps.Streams == nil {
		deps.Streams = inflight.Streams()
	}
	doc := api.Document(deps.Version)
	validate, err := api.ValidateRequests(doc)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	for _, m := range api.MiddlewareChain() {
		r.Use(m)
	}

	preg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = preg
	prometheus.DefaultGatherer = preg
	preg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(preg)

	state := api.NewStateHandler(deps.Streams, deps.Version)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/api", func(ar chi.Router) {
		ar.Get("/openapi.json", api.OpenAPIHandler(doc))
		ar.Get("/state", state.GetState)
		ar.Group(func(g chi.Router) {
			g.Use(api.RejectWhenDraining, deps.Streams.Middleware(), validate)
			g.Post("/recipes/stream", api.RecipeStreamHandler(deps.Relay))
		})
	})

	if cfg.MetricsOnMainPort() {
		r.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{}))
	}
	return r, nil
}
