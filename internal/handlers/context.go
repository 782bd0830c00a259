package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/notifar/notifar/internal/apperr"
	"github.com/notifar/notifar/internal/notification"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the core's error taxonomy to HTTP status families.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, notification.ErrUnknownUser):
		http.Error(w, "Unknown user", http.StatusNotFound)
	case errors.Is(err, sql.ErrNoRows):
		http.Error(w, "Not found", http.StatusNotFound)
	case apperr.IsKind(err, apperr.KindConfigNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case apperr.IsKind(err, apperr.KindConfigInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case apperr.IsKind(err, apperr.KindConfigConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logger.Error().Err(err).Msg(fallback)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}
