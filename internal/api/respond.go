package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-appointments/internal/appointment"
	"github.com/hackgods/hospital-appointments/internal/apperrors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func statusForKind(k apperrors.Kind) int {
	switch k {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict, apperrors.KindIllegalState:
		return http.StatusConflict
	case apperrors.KindInvalidInput:
		return http.StatusBadRequest
	case apperrors.KindUnavailable:
		return http.StatusUnprocessableEntity
	case apperrors.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps a domain error to its HTTP status. Unclassified
// errors are logged and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForKind(apperrors.KindOf(err))
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, status, "internal_error", "internal server error")
		return
	}

	resp := ErrorResponse{Error: apperrors.CodeOf(err), Details: err.Error()}
	var dup *appointment.DuplicatePatientError
	if errors.As(err, &dup) {
		resp.ExistingPatientID = dup.ExistingPatientID
	}
	writeJSON(w, status, resp)
}
