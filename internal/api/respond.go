package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Daemonophobic/phalerum-api/internal/operr"
)

// errorBody is the stable JSON error shape.
type errorBody struct {
	Error      string   `json:"error"`
	Parameters []string `json:"parameters,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Error().Err(err).Msg("Failed to encode response")
		}
	}
}

// writeError maps an error kind to its fixed status and JSON shape.
// Anything unclassified is logged and returned as a generic server error.
func writeError(w http.ResponseWriter, err error) {
	var paramErr *operr.ParameterError
	if errors.As(err, &paramErr) {
		msg := "Invalid parameter(s)"
		if paramErr.Missing {
			msg = "Missing (some) required parameter(s)"
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Parameters: paramErr.Fields})
		return
	}

	switch {
	case errors.Is(err, operr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Could not find any records for the requested source"})
	case errors.Is(err, operr.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Sorry, but you are not authenticated to use this endpoint"})
	case errors.Is(err, operr.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "Sorry, but you are not allowed to access this resource"})
	case errors.Is(err, operr.ErrDuplicateKey):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "The provided details are not unique"})
	case errors.Is(err, operr.ErrCompilerError):
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "The compiler failed to build the binary/executable file"})
	default:
		log.Error().Err(err).Msg("Unhandled error")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "An unexpected server error occurred and the operation was not successful"})
	}
}

// writeErrorMessage is writeError with a custom message for the kind.
func writeErrorMessage(w http.ResponseWriter, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, operr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, operr.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, operr.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, operr.ErrDuplicateKey), errors.Is(err, operr.ErrInvalidResult):
		status = http.StatusForbidden
	}
	writeJSON(w, status, errorBody{Error: message})
}

func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return operr.InvalidParameters("body")
	}
	return nil
}
