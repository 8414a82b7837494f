package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperterse/queryengine/core/application/services"
	"github.com/hyperterse/queryengine/core/logger"
)

// RegisterRoutes registers the engine routes on r
func RegisterRoutes(r chi.Router, service *services.EngineService, current HandleFunc) {
	log := logger.New("routes")
	h := NewEngineHandler(service, current)

	r.Post("/", h.Query)
	r.Route("/transaction", func(r chi.Router) {
		r.Post("/start", h.StartTransaction)
		r.Post("/{id}/commit", h.CommitTransaction)
		r.Post("/{id}/rollback", h.RollbackTransaction)
	})
	r.Post("/connect", h.Connect)
	r.Post("/disconnect", h.Disconnect)

	r.Get("/status", h.Status)
	r.Get("/dmmf", h.Dmmf)
	r.Get("/version", h.Version)
	r.Get("/docs", h.Docs)
	r.Handle("/metrics", promhttp.Handler())

	routes := []string{
		"POST /",
		"POST /transaction/start",
		"POST /transaction/{id}/commit",
		"POST /transaction/{id}/rollback",
		"POST /connect",
		"POST /disconnect",
		"GET /status",
		"GET /dmmf",
		"GET /version",
		"GET /docs",
		"GET /metrics",
	}
	log.Infof("Routes registered: %d", len(routes))
	for _, route := range routes {
		log.Debugf("  %s", route)
	}
}
