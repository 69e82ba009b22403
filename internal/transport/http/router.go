package http

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linksight/linksight/internal/config"
	"github.com/linksight/linksight/internal/infrastructure/telemetry"
	"github.com/linksight/linksight/internal/processing/links"
	"github.com/linksight/linksight/internal/processing/visits"
	"github.com/linksight/linksight/internal/transport/http/middleware"
)

var spanNames = map[string]string{
	"GET /health":               "health",
	"GET /metrics":              "metrics",
	"POST /api/links":           "links.create",
	"GET /api/links":            "links.list",
	"GET /api/links/tag/{tag}":  "links.list_by_tag",
	"DELETE /api/links/{id}":    "links.delete",
	"GET /api/analytics/{code}": "analytics.link",
	"GET /api/stats":            "analytics.stats",
	"GET /api/activity":         "analytics.activity",
	"GET /{code}":               "links.redirect",
}

type RouterOptions struct {
	EnableCORS    bool
	EnableLogging bool
	EnableMetrics bool
}

func DefaultRouterOptions() RouterOptions {
	return RouterOptions{
		EnableCORS:    true,
		EnableLogging: true,
		EnableMetrics: true,
	}
}

func NewRouter(cfg *config.Config, svc *links.Service, recorder *visits.Recorder, anonymizer *visits.Anonymizer) http.Handler {
	return NewRouterWithOptions(cfg, svc, recorder, anonymizer, DefaultRouterOptions())
}

func NewRouterWithOptions(cfg *config.Config, svc *links.Service, recorder *visits.Recorder, anonymizer *visits.Anonymizer, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()

	healthHandler := NewHealthHandler()
	linksHandler := NewLinksHandler(cfg, svc, recorder, anonymizer)
	analyticsHandler := NewAnalyticsHandler(svc)

	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.Handle("GET /metrics", healthHandler.Metrics())

	writeMiddlewares := []func(http.Handler) http.Handler{
		middleware.APIKeyMiddleware(cfg.Security.APIKeys),
	}

	mux.Handle("POST /api/links", middleware.Chain(
		http.HandlerFunc(linksHandler.Create),
		writeMiddlewares...,
	))
	mux.Handle("DELETE /api/links/{id}", middleware.Chain(
		http.HandlerFunc(linksHandler.Delete),
		writeMiddlewares...,
	))

	mux.HandleFunc("GET /api/links", linksHandler.List)
	mux.HandleFunc("GET /api/links/tag/{tag}", linksHandler.ListByTag)
	mux.HandleFunc("GET /api/analytics/{code}", analyticsHandler.Analytics)
	mux.HandleFunc("GET /api/stats", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/activity", analyticsHandler.Activity)
	mux.HandleFunc("GET /{code}", linksHandler.Redirect)

	var innerHandler http.Handler = mux
	if opts.EnableCORS {
		innerHandler = middleware.CORSMiddleware(innerHandler)
	}
	if opts.EnableLogging {
		innerHandler = middleware.LoggingMiddleware(innerHandler)
	}
	if opts.EnableMetrics {
		innerHandler = middleware.MetricsMiddleware(innerHandler)
	}

	otelOptions := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			key := r.Method + " " + r.Pattern
			if name, ok := spanNames[key]; ok {
				return name
			}
			if r.Pattern != "" {
				return r.Pattern
			}
			path := strings.TrimSpace(r.URL.Path)
			if path == "" {
				path = "/"
			}
			return path
		}),
	}

	if telemetry.TracerProvider != nil {
		otelOptions = append(otelOptions, otelhttp.WithTracerProvider(telemetry.TracerProvider))
	}

	return otelhttp.NewHandler(innerHandler, cfg.App.Name, otelOptions...)
}
