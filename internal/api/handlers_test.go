package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medlink/doctor-referrals/internal/auth"
	"github.com/medlink/doctor-referrals/internal/referral"
	redisclient "github.com/medlink/doctor-referrals/internal/redis"
)

var testSecret = []byte("handlers-test-secret")

type testEnv struct {
	router      http.Handler
	repo        *referral.MemoryRepository
	drReferring uuid.UUID
	drReferred  uuid.UUID
	patient     uuid.UUID
	encounter   uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := referral.NewMemoryRepository()
	env := &testEnv{
		repo:        repo,
		drReferring: uuid.New(),
		drReferred:  uuid.New(),
		patient:     uuid.New(),
		encounter:   uuid.New(),
	}

	repo.AddDoctor(referral.Doctor{ID: env.drReferring, Name: "Dr. Asha Rao"})
	repo.AddDoctor(referral.Doctor{ID: env.drReferred, Name: "Dr. Ben Okafor"})
	repo.AddPatient(referral.Patient{ID: env.patient, Name: "Priya Nair"})
	repo.AddEncounter(env.encounter)

	svc := referral.NewService(repo, redisclient.NopLocker(), redisclient.NopBadgeCache(), zerolog.Nop())
	env.router = NewRouter(RouterConfig{
		Service:   svc,
		JWTSecret: testSecret,
		Env:       "test",
		Version:   "test",
		Logger:    zerolog.Nop(),
	})
	return env
}

func (e *testEnv) token(t *testing.T, id uuid.UUID, role referral.ActorRole) string {
	t.Helper()
	token, err := auth.IssueToken(testSecret, auth.Actor{ID: id, Role: role}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createReferral(t *testing.T, clinicalNotes *string) ReferralResponse {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/referrals", e.token(t, e.drReferring, referral.RoleDoctor), CreateReferralRequest{
		PatientID:          e.patient.String(),
		ReferredToDoctorID: e.drReferred.String(),
		Reason:             "chest pain",
		ClinicalNotes:      clinicalNotes,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp ReferralResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return resp
}

func TestCreateReferralEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.createReferral(t, nil)

	if resp.Status != "PENDING" {
		t.Errorf("status = %s, want PENDING", resp.Status)
	}
	if resp.PatientName != "Priya Nair" {
		t.Errorf("patient_name = %q", resp.PatientName)
	}
	if resp.ReferringDoctorName != "Dr. Asha Rao" {
		t.Errorf("referring_doctor_name = %q", resp.ReferringDoctorName)
	}
	if resp.Priority != "MEDIUM" {
		t.Errorf("priority = %s, want MEDIUM", resp.Priority)
	}
	if resp.PatientViewed || resp.ReferredDoctorViewed {
		t.Error("viewed flags should start false")
	}
}

func TestCreateReferralEmptyReason(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/referrals", env.token(t, env.drReferring, referral.RoleDoctor), CreateReferralRequest{
		PatientID:          env.patient.String(),
		ReferredToDoctorID: env.drReferred.String(),
		Reason:             "",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateReferralRequiresDoctor(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/referrals", env.token(t, env.patient, referral.RolePatient), CreateReferralRequest{
		PatientID:          env.patient.String(),
		ReferredToDoctorID: env.drReferred.String(),
		Reason:             "self-referral attempt",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestMissingToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/referrals/made", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAcceptEndpoint(t *testing.T) {
	env := newTestEnv(t)
	created := env.createReferral(t, nil)

	notes := "will see Monday"
	rec := env.do(t, http.MethodPost, "/referrals/"+created.ReferralID.String()+"/accept",
		env.token(t, env.drReferred, referral.RoleDoctor), AcceptReferralRequest{Notes: &notes})
	if rec.Code != http.StatusOK {
		t.Fatalf("accept status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp ReferralResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ACCEPTED" {
		t.Errorf("status = %s, want ACCEPTED", resp.Status)
	}
	if resp.ReferredDoctorNotes == nil || *resp.ReferredDoctorNotes != notes {
		t.Errorf("referred_doctor_notes = %v", resp.ReferredDoctorNotes)
	}

	// Accepting again conflicts and reports the current status.
	rec = env.do(t, http.MethodPost, "/referrals/"+created.ReferralID.String()+"/accept",
		env.token(t, env.drReferred, referral.RoleDoctor), nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second accept status = %d, want 409", rec.Code)
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errResp.CurrentStatus != "ACCEPTED" {
		t.Errorf("current_status = %q, want ACCEPTED", errResp.CurrentStatus)
	}
}

func TestAcceptByWrongDoctor(t *testing.T) {
	env := newTestEnv(t)
	created := env.createReferral(t, nil)

	rec := env.do(t, http.MethodPost, "/referrals/"+created.ReferralID.String()+"/accept",
		env.token(t, env.drReferring, referral.RoleDoctor), nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestDeclineEndpointEmptyReason(t *testing.T) {
	env := newTestEnv(t)
	created := env.createReferral(t, nil)

	rec := env.do(t, http.MethodPost, "/referrals/"+created.ReferralID.String()+"/decline",
		env.token(t, env.drReferred, referral.RoleDoctor), DeclineReferralRequest{Reason: ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	// 400 leaves the referral untouched.
	rec = env.do(t, http.MethodGet, "/referrals/"+created.ReferralID.String(),
		env.token(t, env.drReferred, referral.RoleDoctor), nil)
	var resp ReferralResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "PENDING" {
		t.Errorf("status = %s, want PENDING", resp.Status)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)
	created := env.createReferral(t, nil)
	id := created.ReferralID.String()
	docToken := env.token(t, env.drReferred, referral.RoleDoctor)

	// Complete straight after create is a conflict.
	rec := env.do(t, http.MethodPost, "/referrals/"+id+"/complete", docToken, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("premature complete status = %d, want 409", rec.Code)
	}

	if rec = env.do(t, http.MethodPost, "/referrals/"+id+"/accept", docToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("accept status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/referrals/"+id+"/link-appointment",
		env.token(t, env.patient, referral.RolePatient), LinkAppointmentRequest{
			EncounterID:   env.encounter.String(),
			ScheduledTime: time.Now().Add(48 * time.Hour),
		})
	if rec.Code != http.StatusOK {
		t.Fatalf("link status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/referrals/"+id+"/complete", docToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp ReferralResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "COMPLETED" {
		t.Errorf("status = %s, want COMPLETED", resp.Status)
	}
	if resp.AppointmentCompletedTime == nil {
		t.Error("appointment_completed_time should be set")
	}
	if !resp.HasAppointment {
		t.Error("has_appointment should be true")
	}
}

func TestGetReferralNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/referrals/"+uuid.NewString(),
		env.token(t, env.drReferred, referral.RoleDoctor), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestPatientListRedactsClinicalNotes(t *testing.T) {
	env := newTestEnv(t)
	notes := "prior ECG shows arrhythmia"
	env.createReferral(t, &notes)

	rec := env.do(t, http.MethodGet, "/referrals/mine", env.token(t, env.patient, referral.RolePatient), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	// Check the raw body: the key must be absent, not just empty.
	if bytes.Contains(rec.Body.Bytes(), []byte("clinical_notes")) {
		t.Error("patient list response contains clinical_notes")
	}

	// The receiving doctor still sees them.
	rec = env.do(t, http.MethodGet, "/referrals/received", env.token(t, env.drReferred, referral.RoleDoctor), nil)
	if !bytes.Contains(rec.Body.Bytes(), []byte("clinical_notes")) {
		t.Error("received list should contain clinical_notes")
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.createReferral(t, nil)

	rec := env.do(t, http.MethodGet, "/referrals/stats/summary",
		env.token(t, env.drReferred, referral.RoleDoctor), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var stats referral.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalPending != 1 {
		t.Errorf("total_pending = %d, want 1", stats.TotalPending)
	}
	if stats.UnreadCount != 1 {
		t.Errorf("unread_count = %d, want 1", stats.UnreadCount)
	}
}

func TestMarkViewedEndpoint(t *testing.T) {
	env := newTestEnv(t)
	created := env.createReferral(t, nil)

	rec := env.do(t, http.MethodPost, "/referrals/"+created.ReferralID.String()+"/viewed",
		env.token(t, env.patient, referral.RolePatient), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp ReferralResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.PatientViewed {
		t.Error("patient_viewed should be true")
	}

	// Same call again stays 200.
	rec = env.do(t, http.MethodPost, "/referrals/"+created.ReferralID.String()+"/viewed",
		env.token(t, env.patient, referral.RolePatient), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("repeat status = %d, want 200", rec.Code)
	}
}

func TestPatientHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.createReferral(t, nil)

	rec := env.do(t, http.MethodGet, "/referrals/patient/"+env.patient.String(),
		env.token(t, env.drReferring, referral.RoleDoctor), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var list []ReferralResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("len = %d, want 1", len(list))
	}
}
