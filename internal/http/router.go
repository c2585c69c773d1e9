// Package httpapi is the HTTP transport. Handlers decode requests, delegate
// to domain services and map results onto JSON; no business logic lives here.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	doiservice "doria/internal/doi/service"
	eventservice "doria/internal/event/service"
	registryservice "doria/internal/registry/service"
	"doria/internal/search"
	"doria/pkg/requestcontext"
)

// Handler wires the public API endpoints to their services.
type Handler struct {
	dois     *doiservice.Service
	registry *registryservice.Service
	events   *eventservice.Service
	searcher *search.Builder
	log      *zap.Logger
}

func NewHandler(dois *doiservice.Service, registry *registryservice.Service,
	events *eventservice.Service, searcher *search.Builder, log *zap.Logger) *Handler {
	return &Handler{dois: dois, registry: registry, events: events, searcher: searcher, log: log}
}

// NewRouter builds the service router.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/heartbeat", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/dois", func(r chi.Router) {
		r.Get("/", h.queryKind(search.KindDOI))
		r.Post("/", h.createDOI)
		// Identifiers contain a slash, so the suffix is a wildcard segment.
		r.Get("/{prefix}/*", h.getDOI)
		r.Put("/{prefix}/*", h.updateDOI)
		r.Delete("/{prefix}/*", h.destroyDOI)
		r.Post("/{prefix}/*", h.transitionDOI)
	})

	r.Route("/providers", func(r chi.Router) {
		r.Get("/", h.queryKind(search.KindProvider))
		r.Post("/", h.createProvider)
		r.Get("/{symbol}", h.getProvider)
		r.Delete("/{symbol}", h.deleteProvider)
	})

	r.Route("/clients", func(r chi.Router) {
		r.Get("/", h.queryKind(search.KindClient))
		r.Post("/", h.createClient)
		r.Get("/{symbol}", h.getClient)
		r.Delete("/{symbol}", h.deleteClient)
		r.Post("/{symbol}/transfer", h.transferClient)
	})

	r.Route("/prefixes", func(r chi.Router) {
		r.Post("/", h.createPrefix)
		r.Put("/{uid}/provider", h.assignPrefixProvider)
		r.Put("/{uid}/client", h.assignPrefixClient)
		r.Delete("/{uid}/client", h.releasePrefix)
	})

	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.queryKind(search.KindEvent))
		r.Post("/", h.createEvent)
		r.Get("/{uuid}", h.getEvent)
	})

	return r
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithRequestID(r.Context(), r.Header.Get("X-Request-Id"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
