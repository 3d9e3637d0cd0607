package referral

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a map-backed store with the same compare-and-swap
// semantics as PgRepository. It backs STORE_DRIVER=memory and the test
// suites.
type MemoryRepository struct {
	mu         sync.RWMutex
	doctors    map[uuid.UUID]Doctor
	patients   map[uuid.UUID]Patient
	encounters map[uuid.UUID]struct{}
	referrals  map[uuid.UUID]Referral
	events     []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:    make(map[uuid.UUID]Doctor),
		patients:   make(map[uuid.UUID]Patient),
		encounters: make(map[uuid.UUID]struct{}),
		referrals:  make(map[uuid.UUID]Referral),
	}
}

// Directory fixtures

func (m *MemoryRepository) AddDoctor(d Doctor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[d.ID] = d
}

func (m *MemoryRepository) AddPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
}

func (m *MemoryRepository) AddEncounter(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.encounters[id] = struct{}{}
}

// Events returns a copy of the recorded event log.
func (m *MemoryRepository) Events() []EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]EventLog, len(m.events))
	copy(out, m.events)
	return out
}

// Interface methods

func (m *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) EncounterExists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.encounters[id]
	return ok, nil
}

func (m *MemoryRepository) GetReferralByID(_ context.Context, id uuid.UUID) (*Referral, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.referrals[id]
	if !ok {
		return nil, ErrReferralNotFound
	}
	return &ref, nil
}

func (m *MemoryRepository) GetReferralDetail(ctx context.Context, id uuid.UUID) (*Detail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.referrals[id]
	if !ok {
		return nil, ErrReferralNotFound
	}
	d := m.hydrateLocked(ref)
	return &d, nil
}

func (m *MemoryRepository) hydrateLocked(ref Referral) Detail {
	d := Detail{Referral: ref}
	if p, ok := m.patients[ref.PatientID]; ok {
		d.Patient = &p
	}
	if doc, ok := m.doctors[ref.ReferringDoctorID]; ok {
		d.ReferringDoctor = &doc
	}
	if doc, ok := m.doctors[ref.ReferredToDoctorID]; ok {
		d.ReferredToDoctor = &doc
	}
	return d
}

func (m *MemoryRepository) ListByReferringDoctor(_ context.Context, doctorID uuid.UUID) ([]Detail, error) {
	return m.list(func(r Referral) bool { return r.ReferringDoctorID == doctorID })
}

func (m *MemoryRepository) ListByReferredDoctor(_ context.Context, doctorID uuid.UUID) ([]Detail, error) {
	return m.list(func(r Referral) bool { return r.ReferredToDoctorID == doctorID })
}

func (m *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID) ([]Detail, error) {
	return m.list(func(r Referral) bool { return r.PatientID == patientID })
}

func (m *MemoryRepository) list(match func(Referral) bool) ([]Detail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Detail, 0)
	for _, ref := range m.referrals {
		if match(ref) {
			result = append(result, m.hydrateLocked(ref))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryRepository) InsertReferral(_ context.Context, ref *Referral) (*Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	stored := *ref
	stored.PatientViewed = false
	stored.ReferredDoctorViewed = false
	stored.CreatedAt = now
	stored.UpdatedAt = now

	m.referrals[stored.ID] = stored
	return &stored, nil
}

func (m *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, expected Status, upd StatusUpdate) (*Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.referrals[id]
	if !ok || ref.Status != expected {
		return nil, ErrStatusConflict
	}

	ref.Status = upd.To
	if upd.ReferredDoctorNotes != nil {
		ref.ReferredDoctorNotes = upd.ReferredDoctorNotes
	}
	if upd.DeclinedReason != nil {
		ref.DeclinedReason = upd.DeclinedReason
	}
	if upd.AppointmentEncounterID != nil {
		ref.AppointmentEncounterID = upd.AppointmentEncounterID
	}
	if upd.AppointmentScheduledTime != nil {
		ref.AppointmentScheduledTime = upd.AppointmentScheduledTime
	}
	if upd.AppointmentCompletedTime != nil {
		ref.AppointmentCompletedTime = upd.AppointmentCompletedTime
	}
	ref.UpdatedAt = time.Now()

	m.referrals[id] = ref
	return &ref, nil
}

func (m *MemoryRepository) SetViewed(_ context.Context, id uuid.UUID, role ViewerRole) (*Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.referrals[id]
	if !ok {
		return nil, ErrReferralNotFound
	}

	if role == ViewerPatient && !ref.PatientViewed {
		ref.PatientViewed = true
		ref.UpdatedAt = time.Now()
	} else if role == ViewerReferredDoctor && !ref.ReferredDoctorViewed {
		ref.ReferredDoctorViewed = true
		ref.UpdatedAt = time.Now()
	}

	m.referrals[id] = ref
	return &ref, nil
}

func (m *MemoryRepository) FindStalePending(_ context.Context, cutoff time.Time) ([]Referral, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Referral
	for _, ref := range m.referrals {
		if ref.Status == StatusPending && !ref.ReferredDoctorViewed && ref.CreatedAt.Before(cutoff) {
			result = append(result, ref)
		}
	}
	return result, nil
}

func (m *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.ID = int64(len(m.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	m.events = append(m.events, ev)
	return nil
}
