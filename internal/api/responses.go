package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the JSON body sent for any failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// RespondWithJSON writes data as a JSON response with the given status code.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err, "path", r.URL.Path)
	}
}

// RespondWithError writes a JSON error response with the given status code
// and message. The raw internal error is logged, never sent to the client.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if err != nil {
		slog.Error("request failed",
			"status_code", status,
			"message", message,
			"path", r.URL.Path,
			"method", r.Method,
			"error", err)
	}
	RespondWithJSON(w, r, status, ErrorResponse{Error: message, Code: status})
}
