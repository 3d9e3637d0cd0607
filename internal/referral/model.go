package referral

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending              Status = "PENDING"
	StatusAccepted             Status = "ACCEPTED"
	StatusAppointmentScheduled Status = "APPOINTMENT_SCHEDULED"
	StatusCompleted            Status = "COMPLETED"
	StatusDeclined             Status = "DECLINED"
	StatusCancelled            Status = "CANCELLED"
)

// transitions is the full state graph. A status missing from the map is
// terminal.
var transitions = map[Status][]Status{
	StatusPending:              {StatusAccepted, StatusDeclined, StatusCancelled},
	StatusAccepted:             {StatusAppointmentScheduled, StatusCancelled},
	StatusAppointmentScheduled: {StatusCompleted, StatusCancelled},
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ViewerRole identifies which read-tracking flag a viewer owns. Only the
// patient and the referred-to doctor have one; the referring doctor made the
// referral and has nothing to acknowledge.
type ViewerRole string

const (
	ViewerPatient        ViewerRole = "patient"
	ViewerReferredDoctor ViewerRole = "referred_doctor"
)

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Referral struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	ReferringDoctorID  uuid.UUID
	ReferredToDoctorID uuid.UUID

	Reason          string
	ClinicalNotes   *string
	Priority        Priority
	SpecialtyNeeded *string

	Status Status

	AppointmentEncounterID   *uuid.UUID
	AppointmentScheduledTime *time.Time
	AppointmentCompletedTime *time.Time
	SourceEncounterID        *uuid.UUID

	ReferredDoctorNotes *string
	DeclinedReason      *string

	PatientViewed        bool
	ReferredDoctorViewed bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Viewed reports whether the given party has acknowledged this referral.
func (r *Referral) Viewed(role ViewerRole) bool {
	if role == ViewerPatient {
		return r.PatientViewed
	}
	return r.ReferredDoctorViewed
}

// AddresseeID returns the user whose badge the given flag drives.
func (r *Referral) AddresseeID(role ViewerRole) uuid.UUID {
	if role == ViewerPatient {
		return r.PatientID
	}
	return r.ReferredToDoctorID
}

// Detail is a referral hydrated with the display identities of its three
// parties, matching what list and detail endpoints return.
type Detail struct {
	Referral
	Patient          *Patient
	ReferringDoctor  *Doctor
	ReferredToDoctor *Doctor
}

type EventLog struct {
	ID         int64
	EventType  string
	ReferralID *uuid.UUID
	Payload    []byte
	CreatedAt  time.Time
}
