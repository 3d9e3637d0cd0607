package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/medlink/doctor-referrals/internal/referral"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps the referral error taxonomy onto HTTP statuses.
// Illegal transitions carry the referral's current status so the caller can
// refresh and retry.
func writeServiceError(w http.ResponseWriter, err error) {
	var transErr *referral.TransitionError

	switch {
	case errors.As(err, &transErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:         "illegal_transition",
			Details:       transErr.Error(),
			CurrentStatus: string(transErr.Current),
		})
	case errors.Is(err, referral.ErrIllegalTransition):
		writeError(w, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, referral.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, referral.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, referral.ErrReferralNotFound):
		writeError(w, http.StatusNotFound, "referral_not_found", err.Error())
	case errors.Is(err, referral.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, referral.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, referral.ErrEncounterNotFound):
		writeError(w, http.StatusNotFound, "encounter_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
