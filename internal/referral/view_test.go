package referral

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseFacet(t *testing.T) {
	cases := []struct {
		in   string
		want Facet
	}{
		{"", FacetAll},
		{"all", FacetAll},
		{"pending", FacetPending},
		{"active", FacetActive},
		{"accepted", FacetActive},
		{"done", FacetDone},
		{"completed", FacetDone},
	}
	for _, tc := range cases {
		got, err := ParseFacet(tc.in)
		if err != nil {
			t.Errorf("ParseFacet(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseFacet(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}

	if _, err := ParseFacet("archived"); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown facet err = %v, want ErrValidation", err)
	}
}

func TestFacetMatches(t *testing.T) {
	cases := []struct {
		facet  Facet
		status Status
		want   bool
	}{
		{FacetAll, StatusPending, true},
		{FacetAll, StatusCancelled, true},
		{FacetPending, StatusPending, true},
		{FacetPending, StatusAccepted, false},
		{FacetActive, StatusAccepted, true},
		{FacetActive, StatusAppointmentScheduled, true},
		{FacetActive, StatusCompleted, false},
		{FacetDone, StatusCompleted, true},
		{FacetDone, StatusDeclined, true},
		{FacetDone, StatusCancelled, true},
		{FacetDone, StatusPending, false},
	}
	for _, tc := range cases {
		if got := tc.facet.Matches(tc.status); got != tc.want {
			t.Errorf("%s.Matches(%s) = %v, want %v", tc.facet, tc.status, got, tc.want)
		}
	}
}

func TestProjectDetailRedaction(t *testing.T) {
	notes := "suspected arrhythmia, prior ECG attached"
	patientID := uuid.New()
	doctorID := uuid.New()
	d := Detail{Referral: Referral{
		ID:                 uuid.New(),
		PatientID:          patientID,
		ReferredToDoctorID: doctorID,
		ClinicalNotes:      &notes,
	}}

	forPatient := ProjectDetail(d, patientID)
	if forPatient.ClinicalNotes != nil {
		t.Error("patient projection must not carry clinical notes")
	}

	forDoctor := ProjectDetail(d, doctorID)
	if forDoctor.ClinicalNotes == nil || *forDoctor.ClinicalNotes != notes {
		t.Error("doctor projection must keep clinical notes")
	}

	// Redaction works on a copy; the source record is untouched.
	if d.ClinicalNotes == nil {
		t.Error("projection must not mutate the stored record")
	}
}

func TestCountUnreadIgnoresStatus(t *testing.T) {
	details := []Detail{
		{Referral: Referral{Status: StatusPending, PatientViewed: false}},
		{Referral: Referral{Status: StatusDeclined, PatientViewed: false}},
		{Referral: Referral{Status: StatusCompleted, PatientViewed: true}},
		{Referral: Referral{Status: StatusCancelled, PatientViewed: false}},
	}

	if got := CountUnread(details, ViewerPatient); got != 3 {
		t.Errorf("unread = %d, want 3", got)
	}
}

func TestComputeStats(t *testing.T) {
	details := []Detail{
		{Referral: Referral{Status: StatusPending}},
		{Referral: Referral{Status: StatusPending}},
		{Referral: Referral{Status: StatusAccepted}},
		{Referral: Referral{Status: StatusCompleted}},
		{Referral: Referral{Status: StatusDeclined}},
	}

	doc := ComputeStats(details, RoleDoctor, 4)
	if doc.TotalPending != 2 || doc.TotalAccepted != 1 || doc.TotalCompleted != 1 || doc.UnreadCount != 4 {
		t.Errorf("doctor stats = %+v", doc)
	}

	// Patients only surface pending and unread.
	pat := ComputeStats(details, RolePatient, 4)
	if pat.TotalPending != 2 || pat.TotalAccepted != 0 || pat.TotalCompleted != 0 || pat.UnreadCount != 4 {
		t.Errorf("patient stats = %+v", pat)
	}
}

func TestListForPatientStripsClinicalNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	notes := "prior imaging shows a 4mm nodule"
	if _, err := f.svc.Create(ctx, CreateInput{
		ReferringDoctorID:  f.drReferring,
		ReferredToDoctorID: f.drReferred,
		PatientID:          f.patient,
		Reason:             "nodule follow-up",
		ClinicalNotes:      &notes,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	mine, err := f.svc.ListForPatient(ctx, f.patient, FacetAll)
	if err != nil {
		t.Fatalf("list for patient: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("len = %d, want 1", len(mine))
	}
	if mine[0].ClinicalNotes != nil {
		t.Error("patient list leaked clinical notes")
	}

	received, err := f.svc.ListReceived(ctx, f.drReferred, FacetAll)
	if err != nil {
		t.Fatalf("list received: %v", err)
	}
	if len(received) != 1 || received[0].ClinicalNotes == nil {
		t.Error("received list must include clinical notes")
	}
}

func TestListReceivedMarksViewed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.mustCreate(t, "chest pain")

	first, err := f.svc.ListReceived(ctx, f.drReferred, FacetAll)
	if err != nil {
		t.Fatalf("list received: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("len = %d, want 1", len(first))
	}
	// The snapshot keeps the pre-fetch flag so the client can render NEW.
	if first[0].ReferredDoctorViewed {
		t.Error("snapshot should show the referral as not yet viewed")
	}

	// The flag itself flipped.
	stored, _ := f.repo.GetReferralByID(ctx, ref.ID)
	if !stored.ReferredDoctorViewed {
		t.Error("list fetch should flip the viewed flag")
	}

	n, err := f.svc.UnreadCount(ctx, f.drReferred, RoleDoctor)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if n != 0 {
		t.Errorf("unread after list = %d, want 0", n)
	}
}

func TestListMadeNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reasons := []string{"first", "second", "third"}
	for _, r := range reasons {
		f.mustCreate(t, r)
		time.Sleep(2 * time.Millisecond)
	}

	made, err := f.svc.ListMade(ctx, f.drReferring, FacetAll)
	if err != nil {
		t.Fatalf("list made: %v", err)
	}
	if len(made) != 3 {
		t.Fatalf("len = %d, want 3", len(made))
	}
	if made[0].Reason != "third" || made[2].Reason != "first" {
		t.Errorf("order = [%s %s %s], want newest first", made[0].Reason, made[1].Reason, made[2].Reason)
	}

	// Facets never change ordering or flags, only membership.
	pending, err := f.svc.ListMade(ctx, f.drReferring, FacetPending)
	if err != nil {
		t.Fatalf("list made pending: %v", err)
	}
	if len(pending) != 3 {
		t.Errorf("pending len = %d, want 3", len(pending))
	}
	done, err := f.svc.ListMade(ctx, f.drReferring, FacetDone)
	if err != nil {
		t.Fatalf("list made done: %v", err)
	}
	if len(done) != 0 {
		t.Errorf("done len = %d, want 0", len(done))
	}
}

func TestListForPatientAsDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustCreate(t, "chest pain")

	// A doctor with no part in the patient's referrals sees nothing.
	outsider := uuid.New()
	f.repo.AddDoctor(Doctor{ID: outsider, Name: "Dr. Outsider"})

	visible, err := f.svc.ListForPatientAsDoctor(ctx, f.patient, outsider)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visible) != 0 {
		t.Errorf("outsider sees %d referrals, want 0", len(visible))
	}

	visible, err = f.svc.ListForPatientAsDoctor(ctx, f.patient, f.drReferring)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visible) != 1 {
		t.Errorf("referring doctor sees %d referrals, want 1", len(visible))
	}
}

func TestStatsService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.mustCreate(t, "chest pain")
	f.mustCreate(t, "migraines")
	if _, err := f.svc.Accept(ctx, a.ID, f.drReferred, nil); err != nil {
		t.Fatalf("accept: %v", err)
	}

	stats, err := f.svc.Stats(ctx, f.drReferred, RoleDoctor)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalPending != 1 {
		t.Errorf("total_pending = %d, want 1", stats.TotalPending)
	}
	if stats.TotalAccepted != 1 {
		t.Errorf("total_accepted = %d, want 1", stats.TotalAccepted)
	}
	if stats.UnreadCount != 2 {
		t.Errorf("unread_count = %d, want 2", stats.UnreadCount)
	}

	patientStats, err := f.svc.Stats(ctx, f.patient, RolePatient)
	if err != nil {
		t.Fatalf("patient stats: %v", err)
	}
	if patientStats.UnreadCount != 2 {
		t.Errorf("patient unread = %d, want 2", patientStats.UnreadCount)
	}
}
