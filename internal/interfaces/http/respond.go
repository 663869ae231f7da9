package http

import (
	"encoding/json"
	"net/http"

	"mailledger/internal/shared/apperr"
	"mailledger/internal/shared/logger"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status by kind. Internal errors are logged and
// their text is not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := apperr.HTTPStatus(err)
	body := ErrorResponse{Error: err.Error(), Code: apperr.Code(err)}
	if status == http.StatusInternalServerError {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("path", r.URL.Path).Msg(msg)
		body.Error = msg
	}
	writeJSON(w, status, body)
}

// HandleHealth reports liveness.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
