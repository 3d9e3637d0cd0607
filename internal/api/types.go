package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medlink/doctor-referrals/internal/referral"
)

type CreateReferralRequest struct {
	PatientID          string  `json:"patient_id"`
	ReferredToDoctorID string  `json:"referred_to_doctor_id"`
	Reason             string  `json:"reason"`
	Priority           string  `json:"priority,omitempty"`
	ClinicalNotes      *string `json:"clinical_notes,omitempty"`
	SpecialtyNeeded    *string `json:"specialty_needed,omitempty"`
	SourceEncounterID  *string `json:"source_encounter_id,omitempty"`
}

type AcceptReferralRequest struct {
	Notes *string `json:"notes,omitempty"`
}

type DeclineReferralRequest struct {
	Reason string `json:"reason"`
}

type LinkAppointmentRequest struct {
	EncounterID   string    `json:"encounter_id"`
	ScheduledTime time.Time `json:"scheduled_time"`
}

type ReferralResponse struct {
	ReferralID uuid.UUID `json:"referral_id"`

	PatientID    uuid.UUID `json:"patient_id"`
	PatientName  string    `json:"patient_name"`
	PatientPhone *string   `json:"patient_phone,omitempty"`

	ReferringDoctorID        uuid.UUID `json:"referring_doctor_id"`
	ReferringDoctorName      string    `json:"referring_doctor_name"`
	ReferringDoctorSpecialty *string   `json:"referring_doctor_specialty,omitempty"`

	ReferredToDoctorID   uuid.UUID `json:"referred_to_doctor_id"`
	ReferredToDoctorName string    `json:"referred_to_doctor_name"`

	Reason          string  `json:"reason"`
	ClinicalNotes   *string `json:"clinical_notes,omitempty"`
	Priority        string  `json:"priority"`
	SpecialtyNeeded *string `json:"specialty_needed,omitempty"`

	Status string `json:"status"`

	HasAppointment           bool       `json:"has_appointment"`
	AppointmentEncounterID   *uuid.UUID `json:"appointment_encounter_id,omitempty"`
	AppointmentScheduledTime *time.Time `json:"appointment_scheduled_time,omitempty"`
	AppointmentCompletedTime *time.Time `json:"appointment_completed_time,omitempty"`
	SourceEncounterID        *uuid.UUID `json:"source_encounter_id,omitempty"`

	ReferredDoctorNotes *string `json:"referred_doctor_notes,omitempty"`
	DeclinedReason      *string `json:"declined_reason,omitempty"`

	PatientViewed        bool `json:"patient_viewed"`
	ReferredDoctorViewed bool `json:"referred_doctor_viewed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ErrorResponse struct {
	Error         string `json:"error"`
	Details       string `json:"details,omitempty"`
	CurrentStatus string `json:"current_status,omitempty"`
}

func toReferralResponse(d referral.Detail) ReferralResponse {
	resp := ReferralResponse{
		ReferralID:               d.ID,
		PatientID:                d.PatientID,
		PatientName:              "Unknown Patient",
		ReferringDoctorID:        d.ReferringDoctorID,
		ReferringDoctorName:      "Unknown Doctor",
		ReferredToDoctorID:       d.ReferredToDoctorID,
		ReferredToDoctorName:     "Unknown Doctor",
		Reason:                   d.Reason,
		ClinicalNotes:            d.ClinicalNotes,
		Priority:                 string(d.Priority),
		SpecialtyNeeded:          d.SpecialtyNeeded,
		Status:                   string(d.Status),
		HasAppointment:           d.AppointmentEncounterID != nil,
		AppointmentEncounterID:   d.AppointmentEncounterID,
		AppointmentScheduledTime: d.AppointmentScheduledTime,
		AppointmentCompletedTime: d.AppointmentCompletedTime,
		SourceEncounterID:        d.SourceEncounterID,
		ReferredDoctorNotes:      d.ReferredDoctorNotes,
		DeclinedReason:           d.DeclinedReason,
		PatientViewed:            d.PatientViewed,
		ReferredDoctorViewed:     d.ReferredDoctorViewed,
		CreatedAt:                d.CreatedAt,
		UpdatedAt:                d.UpdatedAt,
	}

	if d.Patient != nil {
		resp.PatientName = d.Patient.Name
		resp.PatientPhone = d.Patient.Phone
	}
	if d.ReferringDoctor != nil {
		resp.ReferringDoctorName = d.ReferringDoctor.Name
		resp.ReferringDoctorSpecialty = d.ReferringDoctor.Specialty
	}
	if d.ReferredToDoctor != nil {
		resp.ReferredToDoctorName = d.ReferredToDoctor.Name
	}

	return resp
}

func toReferralResponses(details []referral.Detail) []ReferralResponse {
	out := make([]ReferralResponse, 0, len(details))
	for _, d := range details {
		out = append(out, toReferralResponse(d))
	}
	return out
}
