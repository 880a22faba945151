package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicdesk/booking-service/internal/booking"
	"github.com/clinicdesk/booking-service/internal/db"
)

// doctors mirrors the practitioner+specialty labels the booking dialogs
// offer; there is no separate doctor entity.
var doctors = []string{
	"Dr. Juan Pérez - Cardiología",
	"Dra. María González - Pediatría",
	"Dr. Carlos Rodríguez - Traumatología",
	"Dra. Ana Silva - Dermatología",
	"Dr. Luis Martínez - Oftalmología",
	"Dra. Carmen Ruiz - Ginecología",
	"Dr. Roberto Sánchez - Neurología",
	"Dra. Patricia López - Endocrinología",
	"Dr. Miguel Ángel Torres - Urología",
	"Dra. Isabel Castro - Psiquiatría",
	"Dr. Francisco Morales - Otorrinolaringología",
	"Dra. Laura Mendoza - Medicina Interna",
}

const seedPassword = "changeme"

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

	patients, err := seedUsers(context.Background(), pool, "patients", "patient", 50)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	receptionists, err := seedUsers(context.Background(), pool, "receptionists", "receptionist", 5)
	if err != nil {
		log.Fatalf("seed receptionists: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, patients, receptionists, 120); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

type seededUser struct {
	id   string
	name string
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, table, role string, count int) ([]seededUser, error) {
	log.Printf("seeding %d %s", count, table)

	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	users := make([]seededUser, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.NewString()
		name := gofakeit.Name()
		email := fmt.Sprintf("%s.%d@%s", gofakeit.Username(), i, gofakeit.DomainName())

		_, err := tx.Exec(ctx, `
			INSERT INTO credentials (user_id, email, password_hash, created_at)
			VALUES ($1, $2, $3, now())
		`, id, email, string(hash))
		if err != nil {
			return nil, err
		}

		_, err = tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, name, email, role, phone, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
		`, table), id, name, email, role, gofakeit.Phone())
		if err != nil {
			return nil, err
		}

		users = append(users, seededUser{id: id, name: name})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return users, nil
}

func seedAppointments(ctx context.Context, pool *pgxpool.Pool, patients, receptionists []seededUser, count int) error {
	log.Printf("seeding %d appointments", count)

	slots := booking.TimeSlots()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	taken := make(map[string]bool)
	inserted := 0
	for inserted < count {
		patient := patients[gofakeit.Number(0, len(patients)-1)]
		scheduler := patient
		if gofakeit.Bool() {
			scheduler = receptionists[gofakeit.Number(0, len(receptionists)-1)]
		}

		doctor := doctors[gofakeit.Number(0, len(doctors)-1)]
		date := time.Now().AddDate(0, 0, gofakeit.Number(1, 60)).Format("02/01/2006")
		slot := slots[gofakeit.Number(0, len(slots)-1)]

		key := booking.SlotKey(doctor, date, slot)
		if taken[key] {
			continue
		}
		taken[key] = true

		status := booking.StatusPending
		if gofakeit.Bool() {
			status = booking.StatusConfirmed
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO appointments (id, patient_id, patient_name, doctor_name, date, time, status, scheduled_by, scheduled_by_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		`, uuid.NewString(), patient.id, patient.name, doctor, date, slot, status, scheduler.name, scheduler.id)
		if err != nil {
			return err
		}
		inserted++
	}

	return tx.Commit(ctx)
}
