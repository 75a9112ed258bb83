package handlers

import (
	"net/http"
	"strconv"

	"graphserver/application/services"
	"graphserver/infrastructure/cache"
	apperrors "graphserver/pkg/errors"
)

// parseOptions extracts the routing parameters every data endpoint accepts.
// A malformed boolean is Invalid rather than silently false.
func parseOptions(r *http.Request) (services.RequestOptions, error) {
	q := r.URL.Query()
	opts := services.RequestOptions{
		Engine:   q.Get("engine"),
		Database: q.Get("database"),
	}
	if raw := q.Get("nocache"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, apperrors.NewInvalid("nocache must be a boolean, got %q", raw)
		}
		opts.NoCache = v
	}
	return opts, nil
}

// setDataHeaders stamps the engine and cache-outcome headers on a data
// response. An empty engine (resolution failed) leaves X-Engine unset.
func setDataHeaders(w http.ResponseWriter, engine string, outcome cache.Outcome) {
	if engine != "" {
		w.Header().Set("X-Engine", engine)
	}
	w.Header().Set("X-Cache", string(outcome))
}
