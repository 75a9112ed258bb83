package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"graphserver/application/services"
	"graphserver/infrastructure/cache"
	"graphserver/pkg/common"
	apperrors "graphserver/pkg/errors"
)

// GraphHandler serves the graph CRUD, traversal and impact endpoints.
type GraphHandler struct {
	service      *services.GraphService
	logger       *zap.Logger
	maxBodyBytes int64
}

// NewGraphHandler creates a new GraphHandler
func NewGraphHandler(service *services.GraphService, logger *zap.Logger, maxBodyBytes int64) *GraphHandler {
	return &GraphHandler{service: service, logger: logger, maxBodyBytes: maxBodyBytes}
}

// ListGraphs handles GET /api/graphs
func (h *GraphHandler) ListGraphs(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	engine, body, outcome, err := h.service.ListGraphs(r.Context(), opts)
	setDataHeaders(w, engine, outcome)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondRaw(w, http.StatusOK, body)
}

// GetGraph handles GET /api/graphs/{graphID}
func (h *GraphHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	engine, body, outcome, err := h.service.GetGraph(r.Context(), opts, chi.URLParam(r, "graphID"))
	setDataHeaders(w, engine, outcome)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondRaw(w, http.StatusOK, body)
}

// GetGraphStats handles GET /api/graphs/{graphID}/stats
func (h *GraphHandler) GetGraphStats(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	engine, body, outcome, err := h.service.GetGraphStats(r.Context(), opts, chi.URLParam(r, "graphID"))
	setDataHeaders(w, engine, outcome)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondRaw(w, http.StatusOK, body)
}

// GetNodeNeighbors handles GET /api/graphs/{graphID}/neighbors/{nodeID}
func (h *GraphHandler) GetNodeNeighbors(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}

	hops := 1
	if raw := r.URL.Query().Get("hops"); raw != "" {
		hops, err = strconv.Atoi(raw)
		if err != nil {
			common.RespondError(w, apperrors.NewInvalid("hops must be an integer, got %q", raw))
			return
		}
	}

	engine, body, outcome, err := h.service.GetNodeNeighbors(r.Context(), opts,
		chi.URLParam(r, "graphID"), chi.URLParam(r, "nodeID"), hops)
	setDataHeaders(w, engine, outcome)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondRaw(w, http.StatusOK, body)
}

// CreateGraph handles POST /api/graphs
func (h *GraphHandler) CreateGraph(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}

	var req services.CreateGraphRequest
	if err := common.ParseJSONBody(w, r, &req, h.maxBodyBytes); err != nil {
		common.RespondError(w, err)
		return
	}

	engine, summary, err := h.service.CreateGraph(r.Context(), opts, req)
	setDataHeaders(w, engine, cache.OutcomeNone)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, summary)
}

// DeleteGraph handles DELETE /api/graphs/{graphID}
func (h *GraphHandler) DeleteGraph(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	engine, err := h.service.DeleteGraph(r.Context(), opts, chi.URLParam(r, "graphID"))
	setDataHeaders(w, engine, cache.OutcomeNone)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type impactRequest struct {
	NodeID string `json:"nodeId"`
	Depth  int    `json:"depth"`
}

// ComputeImpact handles POST /api/graphs/{graphID}/impact
func (h *GraphHandler) ComputeImpact(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}

	var req impactRequest
	if err := common.ParseJSONBody(w, r, &req, h.maxBodyBytes); err != nil {
		common.RespondError(w, err)
		return
	}

	engine, result, err := h.service.ComputeImpact(r.Context(), opts, chi.URLParam(r, "graphID"), req.NodeID, req.Depth)
	setDataHeaders(w, engine, cache.OutcomeNone)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// RecountGraph handles POST /api/graphs/{graphID}/recount
func (h *GraphHandler) RecountGraph(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	engine, summary, err := h.service.RecountGraph(r.Context(), opts, chi.URLParam(r, "graphID"))
	setDataHeaders(w, engine, cache.OutcomeNone)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, summary)
}
