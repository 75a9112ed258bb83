// Package rest assembles the chi router: middleware stack, CORS and the
// full endpoint surface.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"graphserver/application/services"
	"graphserver/infrastructure/config"
	"graphserver/interfaces/http/rest/handlers"
	"graphserver/interfaces/http/rest/middleware"
)

// Router creates and configures the HTTP router
type Router struct {
	service *services.GraphService
	cfg     *config.Config
	logger  *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(service *services.GraphService, cfg *config.Config, logger *zap.Logger) *Router {
	return &Router{service: service, cfg: cfg, logger: logger}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	router.Use(middleware.ResponseTime)
	router.Use(middleware.Compress(5))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-Engine", "X-Cache", "X-Response-Time-Ms"},
		MaxAge:         300,
	}))

	graphHandler := handlers.NewGraphHandler(rt.service, rt.logger, rt.cfg.MaxBodyBytes)
	queryHandler := handlers.NewQueryHandler(rt.service, rt.logger, rt.cfg.MaxBodyBytes)
	systemHandler := handlers.NewSystemHandler(rt.service, rt.logger)

	router.Route("/api", func(r chi.Router) {
		r.Get("/health", systemHandler.Health)
		r.Get("/engines", systemHandler.ListEngines)
		r.Get("/databases", systemHandler.ListDatabases)

		r.Route("/graphs", func(r chi.Router) {
			r.Get("/", graphHandler.ListGraphs)
			r.Post("/", graphHandler.CreateGraph)
			r.Get("/{graphID}", graphHandler.GetGraph)
			r.Delete("/{graphID}", graphHandler.DeleteGraph)
			r.Get("/{graphID}/stats", graphHandler.GetGraphStats)
			r.Get("/{graphID}/neighbors/{nodeID}", graphHandler.GetNodeNeighbors)
			r.Post("/{graphID}/impact", graphHandler.ComputeImpact)
			r.Post("/{graphID}/recount", graphHandler.RecountGraph)
		})

		r.Post("/query", queryHandler.Execute)
	})

	router.Get("/optim/cache/stats", systemHandler.CacheStats)

	return router
}
