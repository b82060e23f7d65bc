package utils

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"payments-playground-api/models"
)

func SendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encoding response", "err", err)
	}
}

func SendErrorResponse(w http.ResponseWriter, status int, message string) {
	SendJSON(w, status, models.ErrorResponse{Error: message})
}

func SendError(w http.ResponseWriter, status int, resp models.ErrorResponse) {
	SendJSON(w, status, resp)
}

// SendRawJSON writes an already encoded JSON document.
func SendRawJSON(w http.ResponseWriter, status int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
