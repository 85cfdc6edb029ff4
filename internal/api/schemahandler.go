package api

import (
	"net/http"
	"strconv"
)

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	refresh := false
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "VALIDATION_ERROR", "refresh must be a boolean", false, nil)
			return
		}
		refresh = parsed
	}

	snapshot, err := deps.Schemas.Get(r.Context(), refresh)
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_DISCOVERY_FAILURE", "the database schema is currently unavailable", true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": snapshot})
}
