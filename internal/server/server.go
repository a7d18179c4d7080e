package server

import (
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter mounts the local view API. reloader may be nil when the process
// does not watch its config file.
func NewRouter(h *Handlers, reloader *Reloader, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)
	r.Use(zapLoggerMiddleware(logger))

	r.Get("/health", h.Health)
	r.Get("/status", h.Status)
	r.Get("/summary", h.Summary)
	r.Post("/refresh", h.Refresh)

	r.Route("/cargo", func(r chi.Router) {
		r.Get("/", h.ListCargo)
		r.Post("/", h.CreateCargo)
		r.Patch("/{id}", h.UpdateCargo)
		r.Put("/{id}/status", h.UpdateCargoStatus)
		r.Delete("/{id}", h.DeleteCargo)
	})

	r.Route("/areas", func(r chi.Router) {
		r.Get("/", h.ListAreas)
		r.Post("/", h.CreateArea)
		r.Patch("/{id}", h.UpdateArea)
		r.Delete("/{id}", h.DeleteArea)
	})

	r.Get("/events", h.Events)
	r.Get("/convoys/{id}/messages", h.ConvoyMessages)
	r.Get("/vehicles", h.Vehicles)

	if reloader != nil {
		r.Get("/reload", reloader.ServeHTTP)
	}

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", maskQuerySecrets(r.URL.RawQuery)),
				zap.String("requestId", middleware.GetReqID(r.Context())),
			)
			next.ServeHTTP(w, r)
		})
	}
}

var secretParams = []string{"token", "access_token"}

// maskQuerySecrets hides all but the first four characters of token
// parameters. Output keys are sorted.
func maskQuerySecrets(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	for _, name := range secretParams {
		if v := values.Get(name); v != "" {
			if len(v) > 4 {
				values.Set(name, v[:4]+"****")
			} else {
				values.Set(name, "****")
			}
		}
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		for _, v := range values[k] {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, "&")
}
