package referral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/medlink/doctor-referrals/internal/redis"
)

const (
	EventReferralCreated     = "REFERRAL_CREATED"
	EventReferralAccepted    = "REFERRAL_ACCEPTED"
	EventReferralDeclined    = "REFERRAL_DECLINED"
	EventAppointmentLinked   = "REFERRAL_APPOINTMENT_LINKED"
	EventReferralCompleted   = "REFERRAL_COMPLETED"
	EventReferralCancelled   = "REFERRAL_CANCELLED"
	EventReferralViewed      = "REFERRAL_VIEWED"
	EventReferralReminderDue = "REFERRAL_REMINDER_DUE"
)

// ActorRole is the authenticated caller's role as asserted by the identity
// provider.
type ActorRole string

const (
	RoleDoctor  ActorRole = "doctor"
	RolePatient ActorRole = "patient"
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	badges redisclient.BadgeCache
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, badges redisclient.BadgeCache, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		badges: badges,
		log:    log,
	}
}

type CreateInput struct {
	ReferringDoctorID  uuid.UUID
	ReferredToDoctorID uuid.UUID
	PatientID          uuid.UUID
	Reason             string
	Priority           Priority
	ClinicalNotes      *string
	SpecialtyNeeded    *string
	SourceEncounterID  *uuid.UUID
}

// Create produces a new PENDING referral after validating the input and the
// three parties against the directory.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Referral, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, validationErr("reason is required")
	}
	if in.ReferringDoctorID == in.ReferredToDoctorID {
		return nil, validationErr("cannot refer a patient to yourself")
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, validationErr("priority must be HIGH, MEDIUM or LOW")
	}

	if _, err := s.repo.GetDoctorByID(ctx, in.ReferringDoctorID); err != nil {
		return nil, fmt.Errorf("load referring doctor: %w", err)
	}
	if _, err := s.repo.GetDoctorByID(ctx, in.ReferredToDoctorID); err != nil {
		return nil, fmt.Errorf("load referred-to doctor: %w", err)
	}
	if _, err := s.repo.GetPatientByID(ctx, in.PatientID); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	ref := &Referral{
		ID:                 uuid.New(),
		PatientID:          in.PatientID,
		ReferringDoctorID:  in.ReferringDoctorID,
		ReferredToDoctorID: in.ReferredToDoctorID,
		Reason:             in.Reason,
		ClinicalNotes:      in.ClinicalNotes,
		Priority:           in.Priority,
		SpecialtyNeeded:    in.SpecialtyNeeded,
		SourceEncounterID:  in.SourceEncounterID,
		Status:             StatusPending,
	}

	created, err := s.repo.InsertReferral(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("insert referral: %w", err)
	}

	s.logEvent(ctx, created.ID, EventReferralCreated, map[string]any{
		"referring_doctor_id":   in.ReferringDoctorID.String(),
		"referred_to_doctor_id": in.ReferredToDoctorID.String(),
		"patient_id":            in.PatientID.String(),
		"priority":              string(in.Priority),
	})

	// A new referral changes both addressees' badge counts.
	s.invalidateBadge(ctx, created.PatientID)
	s.invalidateBadge(ctx, created.ReferredToDoctorID)

	return created, nil
}

// Accept moves a PENDING referral to ACCEPTED. Only the referred-to doctor
// may accept; notes are optional.
func (s *Service) Accept(ctx context.Context, id, actorID uuid.UUID, notes *string) (*Referral, error) {
	return s.transition(ctx, id, StatusAccepted, func(ref *Referral) (StatusUpdate, error) {
		if ref.ReferredToDoctorID != actorID {
			return StatusUpdate{}, forbiddenErr("only the referred-to doctor can accept this referral")
		}
		return StatusUpdate{To: StatusAccepted, ReferredDoctorNotes: notes}, nil
	})
}

// Decline moves a PENDING referral to DECLINED. A non-empty reason is
// mandatory so the referring doctor learns why.
func (s *Service) Decline(ctx context.Context, id, actorID uuid.UUID, reason string) (*Referral, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, validationErr("a decline reason is required")
	}
	return s.transition(ctx, id, StatusDeclined, func(ref *Referral) (StatusUpdate, error) {
		if ref.ReferredToDoctorID != actorID {
			return StatusUpdate{}, forbiddenErr("only the referred-to doctor can decline this referral")
		}
		return StatusUpdate{To: StatusDeclined, DeclinedReason: &reason}, nil
	})
}

// LinkAppointment attaches a booked encounter to an ACCEPTED referral. The
// patient booking the visit or the referred-to doctor may link it.
func (s *Service) LinkAppointment(ctx context.Context, id, actorID, encounterID uuid.UUID, scheduledTime time.Time) (*Referral, error) {
	if scheduledTime.IsZero() {
		return nil, validationErr("scheduled_time is required")
	}

	exists, err := s.repo.EncounterExists(ctx, encounterID)
	if err != nil {
		return nil, fmt.Errorf("check encounter: %w", err)
	}
	if !exists {
		return nil, ErrEncounterNotFound
	}

	return s.transition(ctx, id, StatusAppointmentScheduled, func(ref *Referral) (StatusUpdate, error) {
		if actorID != ref.PatientID && actorID != ref.ReferredToDoctorID {
			return StatusUpdate{}, forbiddenErr("only the patient or the referred-to doctor can link an appointment")
		}
		return StatusUpdate{
			To:                       StatusAppointmentScheduled,
			AppointmentEncounterID:   &encounterID,
			AppointmentScheduledTime: &scheduledTime,
		}, nil
	})
}

// Complete closes out a referral whose appointment took place.
func (s *Service) Complete(ctx context.Context, id, actorID uuid.UUID) (*Referral, error) {
	now := time.Now()
	return s.transition(ctx, id, StatusCompleted, func(ref *Referral) (StatusUpdate, error) {
		if ref.ReferredToDoctorID != actorID {
			return StatusUpdate{}, forbiddenErr("only the referred-to doctor can complete this referral")
		}
		return StatusUpdate{To: StatusCompleted, AppointmentCompletedTime: &now}, nil
	})
}

// Cancel withdraws a non-terminal referral. Either doctor party may cancel;
// the patient cannot.
func (s *Service) Cancel(ctx context.Context, id, actorID uuid.UUID) (*Referral, error) {
	return s.transition(ctx, id, StatusCancelled, func(ref *Referral) (StatusUpdate, error) {
		if actorID != ref.ReferringDoctorID && actorID != ref.ReferredToDoctorID {
			return StatusUpdate{}, forbiddenErr("only a doctor party on the referral can cancel it")
		}
		return StatusUpdate{To: StatusCancelled}, nil
	})
}

// transition runs the common validate-then-swap flow under the per-referral
// lock. decide sees the current record and returns the field writes; the
// status precondition is taken from the transition table, and the
// compare-and-swap write re-checks it so a lost race surfaces as
// ErrIllegalTransition with the fresh status attached.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, decide func(*Referral) (StatusUpdate, error)) (*Referral, error) {
	var updated *Referral

	err := s.locker.WithReferralLock(ctx, id, func(lockCtx context.Context) error {
		ref, err := s.repo.GetReferralByID(lockCtx, id)
		if err != nil {
			return err
		}

		upd, err := decide(ref)
		if err != nil {
			return err
		}
		if !ref.Status.CanTransitionTo(to) {
			return &TransitionError{Current: ref.Status, Attempted: to}
		}

		updated, err = s.repo.UpdateStatus(lockCtx, id, ref.Status, upd)
		if errors.Is(err, ErrStatusConflict) {
			fresh, readErr := s.repo.GetReferralByID(lockCtx, id)
			if readErr != nil {
				return readErr
			}
			return &TransitionError{Current: fresh.Status, Attempted: to}
		}
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			// Another actor holds the referral; tell the caller to refresh.
			ref, readErr := s.repo.GetReferralByID(ctx, id)
			if readErr != nil {
				return nil, readErr
			}
			return nil, &TransitionError{Current: ref.Status, Attempted: to}
		}
		return nil, err
	}

	s.logEvent(ctx, updated.ID, eventForStatus(to), map[string]any{
		"status": string(updated.Status),
	})
	s.invalidateBadge(ctx, updated.PatientID)
	s.invalidateBadge(ctx, updated.ReferredToDoctorID)

	return updated, nil
}

func eventForStatus(to Status) string {
	switch to {
	case StatusAccepted:
		return EventReferralAccepted
	case StatusDeclined:
		return EventReferralDeclined
	case StatusAppointmentScheduled:
		return EventAppointmentLinked
	case StatusCompleted:
		return EventReferralCompleted
	case StatusCancelled:
		return EventReferralCancelled
	}
	return "REFERRAL_STATUS_CHANGED"
}

// MarkViewed records that the acting party has seen the referral. It is
// idempotent and never unsets a flag. The referring doctor has no flag, so
// for them this is a no-op read.
func (s *Service) MarkViewed(ctx context.Context, id, viewerID uuid.UUID) (*Referral, error) {
	ref, err := s.repo.GetReferralByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var role ViewerRole
	switch viewerID {
	case ref.PatientID:
		role = ViewerPatient
	case ref.ReferredToDoctorID:
		role = ViewerReferredDoctor
	case ref.ReferringDoctorID:
		return ref, nil
	default:
		return nil, forbiddenErr("not a party on this referral")
	}

	if ref.Viewed(role) {
		return ref, nil
	}

	updated, err := s.repo.SetViewed(ctx, id, role)
	if err != nil {
		return nil, fmt.Errorf("set viewed flag: %w", err)
	}

	s.logEvent(ctx, id, EventReferralViewed, map[string]any{"viewer_role": string(role)})
	s.invalidateBadge(ctx, viewerID)

	return updated, nil
}

// Detail returns a referral projected for the given viewer without touching
// viewed flags. Strangers get Forbidden.
func (s *Service) Detail(ctx context.Context, id, viewerID uuid.UUID) (*Detail, error) {
	detail, err := s.repo.GetReferralDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	switch viewerID {
	case detail.PatientID, detail.ReferredToDoctorID, detail.ReferringDoctorID:
	default:
		return nil, forbiddenErr("not a party on this referral")
	}

	projected := ProjectDetail(*detail, viewerID)
	return &projected, nil
}

// GetForViewer is the detail read used by screens: it additionally marks the
// referral viewed when the viewer is the patient or the referred-to doctor.
func (s *Service) GetForViewer(ctx context.Context, id, viewerID uuid.UUID) (*Detail, error) {
	detail, err := s.Detail(ctx, id, viewerID)
	if err != nil {
		return nil, err
	}
	if viewerID == detail.PatientID || viewerID == detail.ReferredToDoctorID {
		if _, err := s.MarkViewed(ctx, id, viewerID); err != nil {
			return nil, err
		}
	}
	return detail, nil
}

// ListMade returns the referring doctor's view, newest first.
func (s *Service) ListMade(ctx context.Context, doctorID uuid.UUID, facet Facet) ([]Detail, error) {
	details, err := s.repo.ListByReferringDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list made referrals: %w", err)
	}
	return ApplyFacet(details, facet), nil
}

// ListReceived returns the referred-to doctor's view. The returned snapshot
// keeps the pre-fetch viewed flags so callers can render NEW markers, while
// the flags themselves are flipped for next time.
func (s *Service) ListReceived(ctx context.Context, doctorID uuid.UUID, facet Facet) ([]Detail, error) {
	details, err := s.repo.ListByReferredDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list received referrals: %w", err)
	}
	snapshot := ApplyFacet(details, facet)
	s.markAllViewed(ctx, snapshot, doctorID)
	return snapshot, nil
}

// ListForPatient returns the patient's view with clinical notes stripped.
// Viewed flags flip the same way as ListReceived.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, facet Facet) ([]Detail, error) {
	details, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list patient referrals: %w", err)
	}
	snapshot := ApplyFacet(details, facet)
	s.markAllViewed(ctx, snapshot, patientID)

	projected := make([]Detail, 0, len(snapshot))
	for _, d := range snapshot {
		projected = append(projected, ProjectDetail(d, patientID))
	}
	return projected, nil
}

func (s *Service) markAllViewed(ctx context.Context, snapshot []Detail, viewerID uuid.UUID) {
	for i := range snapshot {
		if _, err := s.MarkViewed(ctx, snapshot[i].ID, viewerID); err != nil {
			s.log.Warn().Err(err).
				Str("referral_id", snapshot[i].ID.String()).
				Msg("mark viewed after list failed")
		}
	}
}

// ListForPatientAsDoctor returns a patient's referral history limited to
// referrals the requesting doctor is a party on.
func (s *Service) ListForPatientAsDoctor(ctx context.Context, patientID, doctorID uuid.UUID) ([]Detail, error) {
	details, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list patient referrals: %w", err)
	}

	visible := make([]Detail, 0, len(details))
	for _, d := range details {
		if d.ReferringDoctorID == doctorID || d.ReferredToDoctorID == doctorID {
			visible = append(visible, d)
		}
	}
	return visible, nil
}

// UnreadCount returns the badge count for a viewer: referrals addressed to
// them whose viewed flag is still false, regardless of status.
func (s *Service) UnreadCount(ctx context.Context, viewerID uuid.UUID, role ActorRole) (int, error) {
	if n, ok, err := s.badges.Get(ctx, viewerID); err == nil && ok {
		return n, nil
	} else if err != nil {
		s.log.Warn().Err(err).Msg("badge cache read failed, recomputing")
	}

	var (
		details []Detail
		err     error
		viewer  ViewerRole
	)
	if role == RolePatient {
		details, err = s.repo.ListByPatient(ctx, viewerID)
		viewer = ViewerPatient
	} else {
		details, err = s.repo.ListByReferredDoctor(ctx, viewerID)
		viewer = ViewerReferredDoctor
	}
	if err != nil {
		return 0, fmt.Errorf("count unread referrals: %w", err)
	}

	n := CountUnread(details, viewer)

	if err := s.badges.Set(ctx, viewerID, n); err != nil {
		s.log.Warn().Err(err).Msg("badge cache write failed")
	}
	return n, nil
}

// Stats returns the badge summary for the caller. Doctors see their received
// side; patients see their own pending and unread counts.
func (s *Service) Stats(ctx context.Context, viewerID uuid.UUID, role ActorRole) (*Stats, error) {
	var (
		details []Detail
		err     error
	)
	if role == RolePatient {
		details, err = s.repo.ListByPatient(ctx, viewerID)
	} else {
		details, err = s.repo.ListByReferredDoctor(ctx, viewerID)
	}
	if err != nil {
		return nil, fmt.Errorf("load referrals for stats: %w", err)
	}

	unread, err := s.UnreadCount(ctx, viewerID, role)
	if err != nil {
		return nil, err
	}

	return ComputeStats(details, role, unread), nil
}

// RemindStalePending is run periodically by the notify worker. It records a
// reminder event for each PENDING referral older than the cutoff that the
// referred-to doctor has not looked at yet.
func (s *Service) RemindStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	stale, err := s.repo.FindStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale pending referrals: %w", err)
	}

	for _, ref := range stale {
		s.logEvent(ctx, ref.ID, EventReferralReminderDue, map[string]any{
			"referred_to_doctor_id": ref.ReferredToDoctorID.String(),
			"pending_since":         ref.CreatedAt,
		})
		s.invalidateBadge(ctx, ref.ReferredToDoctorID)
	}
	return len(stale), nil
}

func (s *Service) invalidateBadge(ctx context.Context, userID uuid.UUID) {
	if err := s.badges.Invalidate(ctx, userID); err != nil {
		s.log.Warn().Err(err).
			Str("user_id", userID.String()).
			Msg("badge invalidation failed")
	}
}

func (s *Service) logEvent(ctx context.Context, referralID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}

	refID := referralID
	ev := EventLog{
		EventType:  eventType,
		ReferralID: &refID,
		Payload:    data,
		CreatedAt:  time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event_type", eventType).
			Str("referral_id", referralID.String()).
			Msg("insert event log")
	}
}
