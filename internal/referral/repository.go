package referral

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StatusUpdate is the full set of field writes a single transition may carry.
// The repository applies it together with the status change in one
// compare-and-swap write, so a losing racer never leaves partial state.
type StatusUpdate struct {
	To Status

	ReferredDoctorNotes      *string
	DeclinedReason           *string
	AppointmentEncounterID   *uuid.UUID
	AppointmentScheduledTime *time.Time
	AppointmentCompletedTime *time.Time
}

// Repository contains all store interactions needed by the service.
type Repository interface {
	// Directory lookups used for create-time validation.
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	EncounterExists(ctx context.Context, id uuid.UUID) (bool, error)

	GetReferralByID(ctx context.Context, id uuid.UUID) (*Referral, error)
	GetReferralDetail(ctx context.Context, id uuid.UUID) (*Detail, error)

	ListByReferringDoctor(ctx context.Context, doctorID uuid.UUID) ([]Detail, error)
	ListByReferredDoctor(ctx context.Context, doctorID uuid.UUID) ([]Detail, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Detail, error)

	InsertReferral(ctx context.Context, ref *Referral) (*Referral, error)

	// UpdateStatus applies upd only if the referral is still in the expected
	// status; otherwise it returns ErrStatusConflict and writes nothing.
	UpdateStatus(ctx context.Context, id uuid.UUID, expected Status, upd StatusUpdate) (*Referral, error)

	// SetViewed sets the role's viewed flag. It never unsets one.
	SetViewed(ctx context.Context, id uuid.UUID, role ViewerRole) (*Referral, error)

	// FindStalePending returns PENDING referrals created before the cutoff
	// that the referred-to doctor has not yet viewed.
	FindStalePending(ctx context.Context, cutoff time.Time) ([]Referral, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
