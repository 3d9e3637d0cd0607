package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medlink/doctor-referrals/internal/db"
	"github.com/medlink/doctor-referrals/internal/referral"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctors, err := seedDoctors(context.Background(), pool, 40)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	patients, err := seedPatients(context.Background(), pool, 400)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	encounters, err := seedEncounters(context.Background(), pool, patients, doctors, 200)
	if err != nil {
		log.Fatalf("seed encounters: %v", err)
	}
	if err := seedReferrals(context.Background(), pool, doctors, patients, encounters, 600); err != nil {
		log.Fatalf("seed referrals: %v", err)
	}

	log.Println("seed complete")
}

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		phone := gofakeit.Phone()

		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, name, phone, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, phone)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedEncounters(ctx context.Context, pool *pgxpool.Pool, patients, doctors []uuid.UUID, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d encounters", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		patient := patients[gofakeit.Number(0, len(patients)-1)]
		doctor := doctors[gofakeit.Number(0, len(doctors)-1)]
		scheduled := gofakeit.DateRange(time.Now(), time.Now().AddDate(0, 1, 0))

		_, err := tx.Exec(ctx, `
			INSERT INTO encounters (id, patient_id, doctor_id, scheduled_time, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, patient, doctor, scheduled)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

var reasons = []string{
	"chest pain on exertion",
	"persistent migraines",
	"suspicious skin lesion",
	"uncontrolled blood sugar",
	"chronic lower back pain",
	"recurring ear infections",
	"anxiety and sleep disturbance",
	"blurred vision in left eye",
}

func seedReferrals(ctx context.Context, pool *pgxpool.Pool, doctors, patients, encounters []uuid.UUID, count int) error {
	log.Printf("seeding %d referrals", count)

	priorities := []referral.Priority{referral.PriorityHigh, referral.PriorityMedium, referral.PriorityLow}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		referring := doctors[gofakeit.Number(0, len(doctors)-1)]
		referredTo := doctors[gofakeit.Number(0, len(doctors)-1)]
		if referring == referredTo {
			continue
		}
		patient := patients[gofakeit.Number(0, len(patients)-1)]
		reason := reasons[gofakeit.Number(0, len(reasons)-1)]
		priority := priorities[gofakeit.Number(0, len(priorities)-1)]

		status := referral.StatusPending
		var notes, declinedReason *string
		var encounterID *uuid.UUID
		var scheduledTime, completedTime *time.Time

		// Spread referrals across the lifecycle.
		switch gofakeit.Number(0, 5) {
		case 1:
			status = referral.StatusAccepted
			n := gofakeit.Sentence(6)
			notes = &n
		case 2:
			status = referral.StatusAppointmentScheduled
			enc := encounters[gofakeit.Number(0, len(encounters)-1)]
			when := gofakeit.DateRange(time.Now(), time.Now().AddDate(0, 1, 0))
			encounterID = &enc
			scheduledTime = &when
		case 3:
			status = referral.StatusCompleted
			enc := encounters[gofakeit.Number(0, len(encounters)-1)]
			sched := gofakeit.DateRange(time.Now().AddDate(0, -1, 0), time.Now())
			done := sched.Add(time.Hour)
			encounterID = &enc
			scheduledTime = &sched
			completedTime = &done
		case 4:
			status = referral.StatusDeclined
			dr := "outside my specialty"
			declinedReason = &dr
		case 5:
			status = referral.StatusCancelled
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO referrals (
				id, patient_id, referring_doctor_id, referred_to_doctor_id,
				reason, priority, status,
				referred_doctor_notes, declined_reason,
				appointment_encounter_id, appointment_scheduled_time, appointment_completed_time,
				patient_viewed, referred_doctor_viewed, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		`,
			uuid.New(), patient, referring, referredTo,
			reason, priority, status,
			notes, declinedReason,
			encounterID, scheduledTime, completedTime,
			gofakeit.Bool(), status != referral.StatusPending || gofakeit.Bool(),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
