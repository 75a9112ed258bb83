package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"graphserver/application/services"
	"graphserver/infrastructure/cache"
	"graphserver/pkg/common"
)

// QueryHandler serves the raw dialect-specific query endpoint.
type QueryHandler struct {
	service      *services.GraphService
	logger       *zap.Logger
	maxBodyBytes int64
}

// NewQueryHandler creates a new QueryHandler
func NewQueryHandler(service *services.GraphService, logger *zap.Logger, maxBodyBytes int64) *QueryHandler {
	return &QueryHandler{service: service, logger: logger, maxBodyBytes: maxBodyBytes}
}

type queryRequest struct {
	Query string `json:"query"`
}

// Execute handles POST /api/query
func (h *QueryHandler) Execute(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}

	var req queryRequest
	if err := common.ParseJSONBody(w, r, &req, h.maxBodyBytes); err != nil {
		common.RespondError(w, err)
		return
	}

	engine, result, err := h.service.ExecuteRawQuery(r.Context(), opts, req.Query)
	setDataHeaders(w, engine, cache.OutcomeNone)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}
