// Package common holds the HTTP response and body-parsing helpers shared by
// every handler.
package common

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "graphserver/pkg/errors"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondRaw sends an already-serialised JSON body, typically a cache
// snapshot.
func RespondRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// RespondError maps the error's Kind onto a status code and sends the
// uniform error body. Unclassified errors surface as Internal with a
// generic message; their details stay in the server log.
func RespondError(w http.ResponseWriter, err error) {
	body := ErrorBody{
		Error:   string(apperrors.KindInternal),
		Message: "internal server error",
	}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		body.Error = string(appErr.Kind)
		body.Message = appErr.Message
	}
	RespondJSON(w, apperrors.HTTPStatusOf(err), body)
}

// ParseJSONBody parses a JSON request body with a size limit.
func ParseJSONBody(w http.ResponseWriter, r *http.Request, v interface{}, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.NewInvalid("request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperrors.NewInvalid("malformed JSON body: %v", err)
	}
	return nil
}
