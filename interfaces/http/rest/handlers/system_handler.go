package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"graphserver/application/services"
	"graphserver/infrastructure/cache"
	"graphserver/pkg/common"
)

// SystemHandler serves the introspection endpoints: health, engine and
// database listings, and the cache counters.
type SystemHandler struct {
	service *services.GraphService
	logger  *zap.Logger
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(service *services.GraphService, logger *zap.Logger) *SystemHandler {
	return &SystemHandler{service: service, logger: logger}
}

// Health handles GET /api/health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type enginesResponse struct {
	Available []string `json:"available"`
	Default   string   `json:"default"`
}

// ListEngines handles GET /api/engines
func (h *SystemHandler) ListEngines(w http.ResponseWriter, r *http.Request) {
	available, defaultName := h.service.Engines()
	common.RespondJSON(w, http.StatusOK, enginesResponse{Available: available, Default: defaultName})
}

// ListDatabases handles GET /api/databases
func (h *SystemHandler) ListDatabases(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	engine, databases, err := h.service.ListDatabases(r.Context(), opts)
	setDataHeaders(w, engine, cache.OutcomeNone)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, databases)
}

// CacheStats handles GET /optim/cache/stats
func (h *SystemHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, h.service.CacheStats())
}
