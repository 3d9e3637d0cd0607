package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medlink/doctor-referrals/internal/auth"
	"github.com/medlink/doctor-referrals/internal/referral"
)

// requireActor pulls the authenticated actor out of the context, optionally
// restricting by role. A missing actor means the auth middleware was
// bypassed, which is a server wiring bug, not a client error.
func requireActor(w http.ResponseWriter, r *http.Request, role referral.ActorRole) (auth.Actor, bool) {
	actor, ok := GetActor(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "no authenticated actor")
		return auth.Actor{}, false
	}
	if role != "" && actor.Role != role {
		writeError(w, http.StatusForbidden, "forbidden", "operation not available for role "+string(actor.Role))
		return auth.Actor{}, false
	}
	return actor, true
}

func parseReferralID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_referral_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseFacet(w http.ResponseWriter, r *http.Request) (referral.Facet, bool) {
	facet, err := referral.ParseFacet(r.URL.Query().Get("filter"))
	if err != nil {
		writeServiceError(w, err)
		return "", false
	}
	return facet, true
}

// respondDetail re-reads the referral with party names attached after a
// mutation, projected for the actor.
func respondDetail(w http.ResponseWriter, r *http.Request, svc *referral.Service, id uuid.UUID, actorID uuid.UUID, status int) {
	detail, err := svc.Detail(r.Context(), id, actorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, status, toReferralResponse(*detail))
}

func createReferralHandler(svc *referral.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, referral.RoleDoctor)
		if !ok {
			return
		}

		var req CreateReferralRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		referredToID, err := uuid.Parse(req.ReferredToDoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "referred_to_doctor_id must be a valid UUID")
			return
		}

		var sourceEncounterID *uuid.UUID
		if req.SourceEncounterID != nil {
			parsed, err := uuid.Parse(*req.SourceEncounterID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_encounter_id", "source_encounter_id must be a valid UUID")
				return
			}
			sourceEncounterID = &parsed
		}

		created, err := svc.Create(r.Context(), referral.CreateInput{
			ReferringDoctorID:  actor.ID,
			ReferredToDoctorID: referredToID,
			PatientID:          patientID,
			Reason:             req.Reason,
			Priority:           referral.Priority(req.Priority),
			ClinicalNotes:      req.ClinicalNotes,
			SpecialtyNeeded:    req.SpecialtyNeeded,
			SourceEncounterID:  sourceEncounterID,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		respondDetail(w, r, svc, created.ID, actor.ID, http.StatusCreated)
	}
}

func listMadeHandler(svc *referral.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, referral.RoleDoctor)
		if !ok {
			return
		}
		facet, ok := parseFacet(w, r)
		if !ok {
			return
		}

		details, err := svc.ListMade(r.Context(), actor.ID, facet)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toReferralResponses(details))
	}
}

func listReceivedHandler(svc *referral.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, referral.RoleDoctor)
		if !ok {
			return
		}
		facet, ok := parseFacet(w, r)
		if !ok {
			return
		}

		details, err := svc.ListReceived(r.Context(), actor.ID, facet)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toReferralResponses(details))
	}
}

func listMineHandler(svc *referral.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, referral.RolePatient)
		if !ok {
			return
		}
		facet, ok := parseFacet(w, r)
		if !ok {
			return
		}

		details, err := svc.ListForPatient(r.Context(), actor.ID, facet)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toReferralResponses(details))
	}
}

func patientHistoryHandler(svc *referral.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, referral.RoleDoctor)
		if !ok {
			return
		}

		patientID, err := uuid.Parse(chi.URLParam(r, "patientID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientID must be a valid UUID")
			return
		}

		details, err := svc.ListForPatientAsDoctor(r.Context(), patientID, actor.ID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toReferralResponses(details))
	}
}

func getReferralHandler(svc *referral.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, "")
		if !ok {
			return
		}
		id, ok := parseReferralID(w, r)
		if !ok {
			return
		}

		detail, err := svc.GetForViewer(r.Context(), id, actor.ID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toReferralResponse(*detail))
	}
}

func acceptReferralHandler(svc *referral.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, referral.RoleDoctor)
		if !ok {
			return
		}
		id, ok := parseReferralID(w, r)
		if !ok {
			return
		}

		var req AcceptReferralRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		updated, err := svc.Accept(r.Context(), id, actor.ID, req.Notes)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		respondDetail(w, r, svc, updated.ID, actor.ID, http.StatusOK)
	}
}

func declineReferralHandler(svc *referral.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, referral.RoleDoctor)
		if !ok {
			return
		}
		id, ok := parseReferralID(w, r)
		if !ok {
			return
		}

		var req DeclineReferralRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		updated, err := svc.Decline(r.Context(), id, actor.ID, req.Reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		respondDetail(w, r, svc, updated.ID, actor.ID, http.StatusOK)
	}
}

func linkAppointmentHandler(svc *referral.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, "")
		if !ok {
			return
		}
		id, ok := parseReferralID(w, r)
		if !ok {
			return
		}

		var req LinkAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		encounterID, err := uuid.Parse(req.EncounterID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_encounter_id", "encounter_id must be a valid UUID")
			return
		}

		updated, err := svc.LinkAppointment(r.Context(), id, actor.ID, encounterID, req.ScheduledTime)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		respondDetail(w, r, svc, updated.ID, actor.ID, http.StatusOK)
	}
}

func completeReferralHandler(svc *referral.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, referral.RoleDoctor)
		if !ok {
			return
		}
		id, ok := parseReferralID(w, r)
		if !ok {
			return
		}

		updated, err := svc.Complete(r.Context(), id, actor.ID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		respondDetail(w, r, svc, updated.ID, actor.ID, http.StatusOK)
	}
}

func cancelReferralHandler(svc *referral.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, referral.RoleDoctor)
		if !ok {
			return
		}
		id, ok := parseReferralID(w, r)
		if !ok {
			return
		}

		updated, err := svc.Cancel(r.Context(), id, actor.ID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		respondDetail(w, r, svc, updated.ID, actor.ID, http.StatusOK)
	}
}

func markViewedHandler(svc *referral.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, "")
		if !ok {
			return
		}
		id, ok := parseReferralID(w, r)
		if !ok {
			return
		}

		if _, err := svc.MarkViewed(r.Context(), id, actor.ID); err != nil {
			writeServiceError(w, err)
			return
		}
		respondDetail(w, r, svc, id, actor.ID, http.StatusOK)
	}
}

func statsHandler(svc *referral.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, "")
		if !ok {
			return
		}

		stats, err := svc.Stats(r.Context(), actor.ID, actor.Role)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
