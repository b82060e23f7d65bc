package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"payments-playground-api/middleware"
	"payments-playground-api/services/btai"
	"payments-playground-api/utils"
)

const (
	maxBodyBytes = 1 << 20

	msgInternalError = "Internal server error"
	msgInvalidBody   = "Invalid request body"
)

// respondError forwards payments API statuses and hides everything else
// behind a generic 500.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, action string) {
	if rich, ok := btai.IsUpstreamStatus(err); ok {
		logger.Info(action+" rejected by payments API",
			"status", rich.Code,
			"error", rich.Message,
			"request_id", middleware.RequestIDFromContext(r.Context()),
		)
		utils.SendErrorResponse(w, rich.Code, rich.Message)
		return
	}

	logger.Error(action+" failed",
		"err", err,
		"request_id", middleware.RequestIDFromContext(r.Context()),
	)
	utils.SendErrorResponse(w, http.StatusInternalServerError, msgInternalError)
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched when
// allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
