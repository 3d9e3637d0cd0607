package referral

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const referralColumns = `
	id, patient_id, referring_doctor_id, referred_to_doctor_id,
	reason, clinical_notes, priority, specialty_needed, status,
	appointment_encounter_id, appointment_scheduled_time, appointment_completed_time,
	source_encounter_id, referred_doctor_notes, declined_reason,
	patient_viewed, referred_doctor_viewed, created_at, updated_at`

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanReferral(row pgx.Row) (*Referral, error) {
	var r Referral
	err := row.Scan(
		&r.ID,
		&r.PatientID,
		&r.ReferringDoctorID,
		&r.ReferredToDoctorID,
		&r.Reason,
		&r.ClinicalNotes,
		&r.Priority,
		&r.SpecialtyNeeded,
		&r.Status,
		&r.AppointmentEncounterID,
		&r.AppointmentScheduledTime,
		&r.AppointmentCompletedTime,
		&r.SourceEncounterID,
		&r.ReferredDoctorNotes,
		&r.DeclinedReason,
		&r.PatientViewed,
		&r.ReferredDoctorViewed,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReferralNotFound
		}
		return nil, err
	}
	return &r, nil
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) EncounterExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM encounters WHERE id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) GetReferralByID(ctx context.Context, id uuid.UUID) (*Referral, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+referralColumns+`
		FROM referrals
		WHERE id = $1
	`, id)
	return scanReferral(row)
}

func (r *PgRepository) GetReferralDetail(ctx context.Context, id uuid.UUID) (*Detail, error) {
	ref, err := r.GetReferralByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.hydrate(ctx, ref)
}

func (r *PgRepository) ListByReferringDoctor(ctx context.Context, doctorID uuid.UUID) ([]Detail, error) {
	return r.listWhere(ctx, `referring_doctor_id = $1`, doctorID)
}

func (r *PgRepository) ListByReferredDoctor(ctx context.Context, doctorID uuid.UUID) ([]Detail, error) {
	return r.listWhere(ctx, `referred_to_doctor_id = $1`, doctorID)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Detail, error) {
	return r.listWhere(ctx, `patient_id = $1`, patientID)
}

func (r *PgRepository) listWhere(ctx context.Context, where string, arg any) ([]Detail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+referralColumns+`
		FROM referrals
		WHERE `+where+`
		ORDER BY created_at DESC
	`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, *ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]Detail, 0, len(refs))
	for i := range refs {
		d, err := r.hydrate(ctx, &refs[i])
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, nil
}

// hydrate attaches the three party records. Missing directory rows are left
// nil rather than failing the whole list.
func (r *PgRepository) hydrate(ctx context.Context, ref *Referral) (*Detail, error) {
	d := Detail{Referral: *ref}

	patient, err := r.GetPatientByID(ctx, ref.PatientID)
	if err != nil && !errors.Is(err, ErrPatientNotFound) {
		return nil, err
	}
	d.Patient = patient

	referring, err := r.GetDoctorByID(ctx, ref.ReferringDoctorID)
	if err != nil && !errors.Is(err, ErrDoctorNotFound) {
		return nil, err
	}
	d.ReferringDoctor = referring

	referred, err := r.GetDoctorByID(ctx, ref.ReferredToDoctorID)
	if err != nil && !errors.Is(err, ErrDoctorNotFound) {
		return nil, err
	}
	d.ReferredToDoctor = referred

	return &d, nil
}

func (r *PgRepository) InsertReferral(ctx context.Context, ref *Referral) (*Referral, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO referrals (
			id, patient_id, referring_doctor_id, referred_to_doctor_id,
			reason, clinical_notes, priority, specialty_needed, status,
			source_encounter_id, patient_viewed, referred_doctor_viewed,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, FALSE, now(), now())
		RETURNING `+referralColumns+`
	`,
		ref.ID, ref.PatientID, ref.ReferringDoctorID, ref.ReferredToDoctorID,
		ref.Reason, ref.ClinicalNotes, ref.Priority, ref.SpecialtyNeeded, ref.Status,
		ref.SourceEncounterID,
	)
	return scanReferral(row)
}

// UpdateStatus is the single compare-and-swap write for all transitions.
// COALESCE keeps every field the transition does not carry.
func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected Status, upd StatusUpdate) (*Referral, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE referrals
		SET status = $2,
		    referred_doctor_notes = COALESCE($3, referred_doctor_notes),
		    declined_reason = COALESCE($4, declined_reason),
		    appointment_encounter_id = COALESCE($5, appointment_encounter_id),
		    appointment_scheduled_time = COALESCE($6, appointment_scheduled_time),
		    appointment_completed_time = COALESCE($7, appointment_completed_time),
		    updated_at = now()
		WHERE id = $1
		  AND status = $8
		RETURNING `+referralColumns+`
	`,
		id, upd.To,
		upd.ReferredDoctorNotes, upd.DeclinedReason,
		upd.AppointmentEncounterID, upd.AppointmentScheduledTime, upd.AppointmentCompletedTime,
		expected,
	)

	ref, err := scanReferral(row)
	if errors.Is(err, ErrReferralNotFound) {
		// Either the referral does not exist or the status precondition no
		// longer holds; the caller disambiguates with a fresh read.
		return nil, ErrStatusConflict
	}
	return ref, err
}

func (r *PgRepository) SetViewed(ctx context.Context, id uuid.UUID, role ViewerRole) (*Referral, error) {
	column := "referred_doctor_viewed"
	if role == ViewerPatient {
		column = "patient_viewed"
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE referrals
		SET `+column+` = TRUE,
		    updated_at = now()
		WHERE id = $1
		  AND `+column+` = FALSE
		RETURNING `+referralColumns+`
	`, id)

	ref, err := scanReferral(row)
	if errors.Is(err, ErrReferralNotFound) {
		// Flag already set; idempotent success as long as the row exists.
		return r.GetReferralByID(ctx, id)
	}
	return ref, err
}

func (r *PgRepository) FindStalePending(ctx context.Context, cutoff time.Time) ([]Referral, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+referralColumns+`
		FROM referrals
		WHERE status = $1
		  AND referred_doctor_viewed = FALSE
		  AND created_at < $2
	`, StatusPending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO referral_events (event_type, referral_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.ReferralID, ev.Payload, nullableTime(ev.CreatedAt))
	return err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
